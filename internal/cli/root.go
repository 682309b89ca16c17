// Package cli implements the taskboard command-line interface.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Tracker providers register themselves with the hosting factory.
	_ "github.com/randalmurphal/taskboard/internal/hosting/github"
	_ "github.com/randalmurphal/taskboard/internal/hosting/gitlab"
	_ "github.com/randalmurphal/taskboard/internal/hosting/jira"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
	logFile string
)

// newRootCmd builds the command tree. Flag variables are reset on every
// call so tests can run commands back to back.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskboard",
		Short: "Task lifecycle and dependency scheduling",
		Long: `taskboard tracks tasks through backlog, ready, in-progress, blocked and
completed, resolves blocked_by dependencies, and picks the next task for a
worker to pick up. Projects linked to GitHub, GitLab or Jira are kept in
sync with their open issues.

Quick start:
  taskboard config init                 Write .taskboard/config.yaml
  taskboard task new "Fix login bug"    Create a task in the backlog
  taskboard task move 1 ready           Triage it
  taskboard next                        Ask what to work on
  taskboard serve                       Run the worker and sync loops`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .taskboard/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")
	flags.BoolVar(&jsonOut, "json", false, "output as JSON")
	flags.StringVar(&logFile, "log-file", "", "write logs to a rotated file instead of stderr")

	root.AddCommand(newTaskCmd())
	root.AddCommand(newProjectCmd())
	root.AddCommand(newNextCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newCompleteCmd())
	root.AddCommand(newBlockCmd())
	root.AddCommand(newReviewCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// Execute runs the CLI and prints any error. SIGINT and SIGTERM cancel the
// command context, which stops the worker and sync loops cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		PrintError(err)
	}
	return err
}
