package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// newDispatchCmd creates the `dispatch` command, which releases pending jobs to
// workers running with --queued-only.
func newDispatchCmd(a *app) *cobra.Command {
	var limit int

	dispatchCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Moves pending jobs of a batch to queued",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			batch := a.cfg.Engine().BatchName

			components, err := a.factory.Create(ctx, a.cfg, service.Options{SeedPath: a.seed}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			queued, err := components.Dispatcher.Dispatch(ctx, owner, batch, limit)
			if err != nil {
				return fmt.Errorf("dispatch stopped after %d jobs: %w", queued, err)
			}

			out := cmd.OutOrStdout()
			if queued == 0 {
				pterm.Warning.WithWriter(out).Printfln("No pending jobs for owner %s batch %q.", owner, batch)
				return nil
			}
			pterm.Success.WithWriter(out).Printfln("Queued %d job(s) for owner %s batch %q.", queued, owner, batch)
			return nil
		},
	}

	flags := dispatchCmd.Flags()
	flags.String("owner", "", "owner of the batch (overrides engine.owner_id)")
	flags.String("batch", "", "package name; empty dispatches every batch of the owner")
	flags.IntVar(&limit, "limit", 0, "maximum number of jobs to queue; 0 queues all")

	a.bind(dispatchCmd, "engine.owner_id", "owner")
	a.bind(dispatchCmd, "engine.batch_name", "batch")

	return dispatchCmd
}
