package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/partybot/internal/application"
	"github.com/bnema/partybot/internal/domain"
	"github.com/spf13/cobra"
)

func newGroupCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage stored groups",
	}

	cmd.AddCommand(newGroupDeleteCmd(app))
	return cmd
}

func newGroupDeleteCmd(app *app) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Tear down every party of a group and delete its record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := app.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			store := app.sessionStore(repo)
			group := domain.GroupID(groupID)
			record, err := store.Get(cmd.Context(), group)
			if err != nil {
				return err
			}

			service, err := app.adminService(cmd.Context(), store)
			if err != nil {
				return err
			}

			subject := fmt.Sprintf("group %s", group)
			err = runTeardown(cmd.Context(), cmd.ErrOrStderr(), subject, len(record.Parties), func(ctx context.Context, report func(domain.UserID, error)) error {
				return service.DeleteGroup(ctx, application.DeleteGroupCommand{Group: group, Progress: report})
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted group %s (%d parties)\n", group, len(record.Parties))
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "group (guild) id")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
