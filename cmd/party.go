package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/partybot/internal/application"
	"github.com/bnema/partybot/internal/domain"
	"github.com/spf13/cobra"
)

func newPartyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "party",
		Short: "Inspect and remove parties",
	}

	cmd.AddCommand(
		newPartyListCmd(app),
		newPartyDeleteCmd(app),
	)

	return cmd
}

func newPartyListCmd(app *app) *cobra.Command {
	var (
		groupID string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the parties of one group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := app.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			group, err := application.NewQueries(app.sessionStore(repo)).Group(cmd.Context(), domain.GroupID(groupID))
			if err != nil {
				return err
			}
			return writeGroupsOutput(cmd, app, []application.GroupView{group}, asJSON)
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "group (guild) id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of the terminal view")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newPartyDeleteCmd(app *app) *cobra.Command {
	var groupID, ownerID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Tear down a party and forget it",
		Long:  "delete removes the party's role, channels and messages through the Discord REST API and then drops it from the store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := app.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			store := app.sessionStore(repo)
			group, owner := domain.GroupID(groupID), domain.UserID(ownerID)
			if _, err := store.Party(cmd.Context(), group, owner); err != nil {
				return err
			}

			service, err := app.adminService(cmd.Context(), store)
			if err != nil {
				return err
			}

			subject := fmt.Sprintf("party of %s", owner)
			err = runTeardown(cmd.Context(), cmd.ErrOrStderr(), subject, 1, func(ctx context.Context, report func(domain.UserID, error)) error {
				err := service.DeleteParty(ctx, application.DeletePartyCommand{Group: group, Owner: owner})
				report(owner, err)
				return err
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted party of %s in group %s\n", owner, group)
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "group (guild) id")
	cmd.Flags().StringVar(&ownerID, "owner", "", "party owner user id")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
