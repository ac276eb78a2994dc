package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "partybot",
		Short:         "partybot: reaction driven game parties for Discord",
		Long:          "partybot creates a private role, text and voice channel for every party announced in a guild, keeps membership in sync with reactions and reclaims parties nobody uses.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.wire(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.partybot/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newStatusCmd(app),
		newPartyCmd(app),
		newGroupCmd(app),
		newTokenCmd(app),
	)

	return rootCmd
}
