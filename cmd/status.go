package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/partybot/internal/adapters/render/status"
	"github.com/bnema/partybot/internal/application"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored groups and their parties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := app.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			groups, err := application.NewQueries(app.sessionStore(repo)).ListGroups(cmd.Context())
			if err != nil {
				return fmt.Errorf("list groups: %w", err)
			}
			return writeGroupsOutput(cmd, app, groups, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of the terminal view")
	return cmd
}

func writeGroupsOutput(cmd *cobra.Command, app *app, groups []application.GroupView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	rendered, err := app.statusRenderer(groups, statusadapter.RenderOptions{
		Now:          app.clock.Now(),
		MaxCountdown: app.cfg.Reclaim.Countdown,
		TickInterval: app.cfg.Reclaim.Interval,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
