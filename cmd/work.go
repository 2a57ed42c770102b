package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// newWorkCmd creates the `work` command, the local worker loop.
func newWorkCmd(a *app) *cobra.Command {
	workCmd := &cobra.Command{
		Use:   "work",
		Short: "Claims jobs and submits their contact forms until stopped",
		Long: `Claims pending (or queued) jobs for an owner, fills and submits each form in a fresh
browser session, and records the outcome. Runs until interrupted, or until the queue
is empty with --exit-when-idle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if _, err := a.requireOwner(); err != nil {
				return err
			}
			if headed, _ := cmd.Flags().GetBool("headed"); headed {
				a.cfg.SetBrowserHeadless(false)
			}

			components, err := a.factory.Create(ctx, a.cfg, service.Options{SeedPath: a.seed, Executor: true}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize worker components: %w", err)
			}
			defer components.Shutdown()

			stats, err := components.Executor.Run(ctx)
			if err != nil {
				return fmt.Errorf("worker stopped with error: %w", err)
			}

			out := cmd.OutOrStdout()
			if ctx.Err() != nil {
				logger.Warn("Worker interrupted; in-flight jobs were finalized.", zap.Error(ctx.Err()))
				pterm.Warning.WithWriter(out).Println("Interrupted.")
			}
			return renderStats(out, stats)
		},
	}

	flags := workCmd.Flags()
	flags.String("owner", "", "owner whose jobs are claimed (overrides engine.owner_id)")
	flags.String("batch", "", "only claim jobs of this package (overrides engine.batch_name)")
	flags.String("profile", "", "sender profile id; defaults to the job's or the newest profile")
	flags.IntP("concurrency", "j", 0, "number of claim loops (overrides engine.concurrency)")
	flags.Bool("exit-when-idle", false, "exit once no eligible job is left")
	flags.Bool("queued-only", false, "only claim jobs moved to queued by the dispatch command")
	flags.Bool("headed", false, "show the browser window")

	a.bind(workCmd, "engine.owner_id", "owner")
	a.bind(workCmd, "engine.batch_name", "batch")
	a.bind(workCmd, "engine.profile_id", "profile")
	a.bind(workCmd, "engine.concurrency", "concurrency")
	a.bind(workCmd, "engine.exit_when_idle", "exit-when-idle")
	a.bind(workCmd, "engine.queued_only", "queued-only")

	return workCmd
}

func renderStats(w io.Writer, s engine.Stats) error {
	return pterm.DefaultTable.
		WithHasHeader().
		WithWriter(w).
		WithData(pterm.TableData{
			{"Claimed", "Completed", "Errored", "Lost races"},
			{strconv.Itoa(s.Claimed), strconv.Itoa(s.Completed), strconv.Itoa(s.Errored), strconv.Itoa(s.LostRaces)},
		}).
		Render()
}
