package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/taskboard/internal/config"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and initialize configuration",
		Long: `View and initialize taskboard configuration.

Configuration is loaded with this priority:
  1. Environment variables (TASKBOARD_SECTION_KEY, e.g. TASKBOARD_SYNC_INTERVAL)
  2. The file given by --config, or .taskboard/config.yaml
  3. Built-in defaults`,
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, used, err := config.Load(".", cfgFile)
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(cfg)
			}
			if used == "" {
				used = "none (defaults)"
			}
			out.Println(out.style(dimStyle, "# config file: "+used))
			return printConfigAsYAML(out.w, cfg)
		},
	}
}

func printConfigAsYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .taskboard/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(".", force)
			if err != nil {
				return err
			}
			newOutput(cmd).Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}
