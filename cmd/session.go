package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or renew the stored session",
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token now",
	Long: `Exchange the stored refresh token for a new access token. When the
server rejects the refresh token the stored session is cleared.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		renewed, err := app.client.RefreshSession(cmd.Context())
		if err != nil {
			return err
		}
		if !renewed {
			return &apierr.AuthenticationError{Reason: apierr.ReasonRefreshFailed}
		}
		app.printer.Success("Session renewed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionRefreshCmd)
}
