package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/taskboard/internal/config"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/lock"
	"github.com/randalmurphal/taskboard/internal/reconcile"
	"github.com/randalmurphal/taskboard/internal/task"
)

func newWorkerCmd() *cobra.Command {
	var (
		scope    scopeFlags
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduler loop",
		Long: `Run the scheduler loop until interrupted.

Every interval the worker decides what to do next: resume the task in
progress (diagnosing it if stuck) or report the next ready task. The
decision and its reason are logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if interval > 0 {
				a.cfg.Worker.Interval = interval
			}
			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			a.logger.Info("worker running", "interval", a.cfg.Worker.Interval)
			return w.Run(cmd.Context())
		},
	}
	scope.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from worker.interval)")
	return cmd
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [project...]",
		Short: "Import open issues from linked trackers",
		Long: `Run one reconciliation cycle.

Every named project (or every project with a repository URL) has its open
issues imported: new issues become backlog tasks, changed issues update
their task. Running it twice in a row changes nothing the second time.

If the tracker reports a rate limit, the remaining projects are skipped,
the cycle reports when it is safe to retry, and the command exits with a
RATE_LIMITED error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			var res *reconcile.CycleResult
			if len(args) == 0 {
				res, err = engine.SyncAll(ctx)
			} else {
				projects := make([]*task.Project, 0, len(args))
				for _, ref := range args {
					p, err := a.store.ResolveProject(ctx, ref)
					if err != nil {
						return err
					}
					projects = append(projects, p)
				}
				res, err = engine.RunCycle(ctx, projects)
			}
			if err != nil {
				return err
			}

			out := newOutput(cmd)
			if jsonOut {
				if err := out.JSON(res); err != nil {
					return err
				}
			} else {
				printCycle(out, res)
			}
			return cycleErr(res)
		},
	}
	return cmd
}

// cycleErr turns a rate-limited cycle into the command's exit error.
func cycleErr(res *reconcile.CycleResult) error {
	if res.RateLimited {
		return boarderrors.ErrRateLimited(res.RetryAfter)
	}
	return nil
}

func printCycle(out *output, res *reconcile.CycleResult) {
	if len(res.Projects) > 0 {
		w := out.table()
		fmt.Fprintln(w, "PROJECT\tCREATED\tUPDATED\tUNCHANGED\tSKIPPED\tERRORS")
		for _, p := range res.Projects {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				p.ProjectName, p.Created, p.Updated, p.Unchanged, p.SkippedPRs+p.Ignored, len(p.Errors))
		}
		_ = w.Flush()
		for _, p := range res.Projects {
			for _, e := range p.Errors {
				out.Printf("%s: %s\n", p.ProjectName, e)
			}
		}
	}
	summary := res.Explain()
	if res.RateLimited {
		summary = out.style(warnStyle, summary)
	}
	out.Println(summary)
}

func newServeCmd() *cobra.Command {
	var (
		scope  scopeFlags
		noSync bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker and sync loops together",
		Long: `Run the scheduler loop and the tracker sync loop until interrupted.

The loops run independently: a tracker outage or rate limit never delays
the scheduler. Use --log-file to keep rotated logs for long runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			guard := lock.NewPIDGuard(filepath.Join(".", config.BoardDir), "serve")
			if err := guard.Acquire(); err != nil {
				var running *lock.AlreadyRunningError
				if errors.As(err, &running) {
					return fmt.Errorf("serve is %w", err)
				}
				return err
			}
			defer guard.Release()

			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			var poller *reconcile.Poller
			if !noSync {
				engine, err := a.newEngine()
				if err != nil {
					return err
				}
				poller = reconcile.NewPoller(engine, reconcile.PollerConfig{
					Interval: a.cfg.Sync.Interval,
					Logger:   a.logger,
				})
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := w.Run(ctx); err != nil {
					return fmt.Errorf("worker: %w", err)
				}
				return nil
			})
			loops := []string{"worker"}
			if poller != nil {
				loops = append(loops, "sync")
				g.Go(func() error {
					if err := poller.Run(ctx); err != nil {
						return fmt.Errorf("sync: %w", err)
					}
					return nil
				})
			}
			a.logger.Info("serving", "loops", strings.Join(loops, ","))
			return g.Wait()
		},
	}
	scope.register(cmd)
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "run the worker loop only")
	return cmd
}
