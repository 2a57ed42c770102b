package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// newTagsCmd creates the `tags` command, which suggests industry tags for a site.
func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <url>",
		Short: "Suggests industry tags for the page at url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			url := strings.TrimSpace(args[0])
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				url = "https://" + url
			}

			components, err := a.factory.Create(ctx, a.cfg, service.Options{SeedPath: a.seed, Browser: true, Resolver: true}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			session, err := components.Sessions.Open(ctx)
			if err != nil {
				return fmt.Errorf("open browser session: %w", err)
			}
			defer func() {
				if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
					logger.Warn("Failed to close browser session.", zap.Error(cerr))
				}
			}()

			if err := session.Navigate(ctx, url); err != nil {
				return err
			}
			page, err := session.HTML(ctx)
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}
			tags, err := components.Tags.SuggestTags(ctx, url, page)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tags) == 0 {
				pterm.Warning.WithWriter(out).Printfln("No tags suggested for %s.", url)
				return nil
			}
			pterm.Success.WithWriter(out).Printfln("%s: %s", url, strings.Join(tags, ", "))
			return nil
		},
	}
}
