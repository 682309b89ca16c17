package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskboard/internal/git"
	"github.com/randalmurphal/taskboard/internal/hosting"
	"github.com/randalmurphal/taskboard/internal/task"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects",
		Long: `Manage projects. A project groups tasks and may link to a GitHub, GitLab,
or Jira project whose open issues are imported by "taskboard sync".`,
	}
	cmd.AddCommand(newProjectAddCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectRemoveCmd())
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	var (
		repoURL   string
		localPath string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Long: `Create a project.

When --path points at a git checkout and --repo is not given, the origin
remote is used as the repository URL if it is a GitHub or GitLab remote.

Examples:
  taskboard project add api --repo https://github.com/acme/api
  taskboard project add ops --repo https://acme.atlassian.net/browse/OPS
  taskboard project add web --path ~/src/web`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			p := &task.Project{Name: args[0], ExternalRepoURL: repoURL}
			if localPath != "" {
				abs, err := filepath.Abs(localPath)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				p.LocalPath = abs
				if p.ExternalRepoURL == "" {
					inspector := git.NewInspector(git.NewExecRunner(a.cfg.Worker.GitTimeout))
					if remote := inspector.RemoteURL(ctx, abs, "origin"); hosting.DetectProvider(remote) != hosting.ProviderUnknown {
						p.ExternalRepoURL = remote
					}
				}
			}
			if p.ExternalRepoURL != "" {
				if _, err := hosting.ResolveProviderType(p.ExternalRepoURL, a.cfg.TrackerConfig(p.ExternalRepoURL)); err != nil {
					return err
				}
			}
			if err := a.store.CreateProject(ctx, p); err != nil {
				return err
			}

			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(p)
			}
			out.Printf("Created project %s\n", p.Name)
			if p.ExternalRepoURL != "" {
				out.Printf("  syncs from %s (%s)\n", p.ExternalRepoURL, hosting.DetectProvider(p.ExternalRepoURL))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoURL, "repo", "", "GitHub/GitLab repository or Jira project URL")
	cmd.Flags().StringVar(&localPath, "path", "", "local checkout used for stuck-task diagnosis")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			projects, err := a.store.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				if projects == nil {
					projects = []*task.Project{}
				}
				return out.JSON(projects)
			}
			if len(projects) == 0 {
				out.Println("No projects. Create one with: taskboard project add <name>")
				return nil
			}
			w := out.table()
			fmt.Fprintln(w, "NAME\tREPOSITORY\tLAST SYNC")
			for _, p := range projects {
				synced := "never"
				if p.LastSyncAt != nil {
					synced = p.LastSyncAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, orDash(p.ExternalRepoURL), synced)
			}
			return w.Flush()
		},
	}
}

func newProjectRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a project; its tasks move to the inbox",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			p, err := a.store.ResolveProject(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteProject(ctx, p.ID); err != nil {
				return err
			}
			newOutput(cmd).Printf("Removed project %s\n", p.Name)
			return nil
		},
	}
}
