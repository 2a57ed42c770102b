package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// newStatusCmd creates the `status` command.
func newStatusCmd(a *app) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Shows job counts per status for a batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			batch := a.cfg.Engine().BatchName
			if batch == "" {
				return errors.New("batch name is required (--batch)")
			}

			components, err := a.factory.Create(ctx, a.cfg, service.Options{SeedPath: a.seed}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			summary, err := components.Jobs.BatchSummary(ctx, owner, batch)
			if err != nil {
				return fmt.Errorf("failed to load batch summary: %w", err)
			}
			return renderSummary(cmd.OutOrStdout(), summary)
		},
	}

	flags := statusCmd.Flags()
	flags.String("owner", "", "owner of the batch (overrides engine.owner_id)")
	flags.String("batch", "", "package name of the batch")

	a.bind(statusCmd, "engine.owner_id", "owner")
	a.bind(statusCmd, "engine.batch_name", "batch")

	return statusCmd
}

func renderSummary(w io.Writer, s schemas.BatchSummary) error {
	err := pterm.DefaultTable.
		WithHasHeader().
		WithWriter(w).
		WithData(pterm.TableData{
			{"Batch", "Total", "Pending", "Queued", "Processing", "Completed", "Errored"},
			{
				s.PackageName,
				strconv.Itoa(s.Total),
				strconv.Itoa(s.Pending),
				strconv.Itoa(s.Queued),
				strconv.Itoa(s.Processing),
				strconv.Itoa(s.Completed),
				strconv.Itoa(s.Errored),
			},
		}).
		Render()
	if err != nil {
		return err
	}

	switch {
	case s.Total == 0:
		pterm.Warning.WithWriter(w).Printfln("Batch %q has no jobs.", s.PackageName)
	case s.Done():
		pterm.Success.WithWriter(w).Printfln("Batch %q is complete.", s.PackageName)
	default:
		pterm.Info.WithWriter(w).Printfln("%d job(s) outstanding.", s.Outstanding())
	}
	return nil
}
