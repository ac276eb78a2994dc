package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored Discord bot token",
	}

	cmd.AddCommand(
		newTokenSetCmd(app),
		newTokenShowCmd(app),
		newTokenRemoveCmd(app),
	)

	return cmd
}

func newTokenSetCmd(app *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the bot token (reads stdin when --value is omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := strings.TrimSpace(value)
			if token == "" {
				read, err := readToken(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = read
			}

			if err := app.secrets.Put(cmd.Context(), app.tokenRef(), token); err != nil {
				return fmt.Errorf("store discord token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored token under %s\n", app.tokenRef())
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "token value")
	return cmd
}

func newTokenShowCmd(app *app) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the token partybot would use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := app.resolveToken(cmd.Context())
			if err != nil {
				return err
			}
			if !reveal {
				token = maskToken(token)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full token")
	return cmd
}

func newTokenRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Delete the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.secrets.Delete(cmd.Context(), app.tokenRef()); err != nil {
				return fmt.Errorf("delete discord token: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed token %s\n", app.tokenRef())
			return nil
		},
	}
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New("token is empty: pass --value or pipe it on stdin")
	}
	return token, nil
}

// maskToken keeps the first and last four characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
