package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BASIL960/FinalYearProject/internal/api"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/output"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Long: `Create an individual or organization account. On success the new
session is stored, so no separate login is needed.`,
	Example: `  compliancectl register --username auditor --email a@example.com \
      --password-stdin --first-name Sara --last-name Ali --job-title CISO
  compliancectl register --user-type organization --username acme \
      --email sec@acme.example --password-stdin --company-name Acme --industry Finance`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in and store the session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on the server and forget it locally",
	Long: `Blacklist the refresh token on the server, then clear the stored session.
The local session is cleared even when the server cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)

	f := registerCmd.Flags()
	f.String("username", "", "account username")
	f.String("email", "", "account email address")
	f.String("password", "", "account password (prefer --password-stdin)")
	f.Bool("password-stdin", false, "read the password from stdin")
	f.String("user-type", "individual", "account type: individual or organization")
	f.String("first-name", "", "first name (individual)")
	f.String("last-name", "", "last name (individual)")
	f.String("job-title", "", "job title (individual)")
	f.String("company-name", "", "company name (organization)")
	f.String("industry", "", "industry (organization)")
	f.String("location", "", "location (organization)")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().String("username", "", "account username")
	loginCmd.Flags().String("password", "", "account password (prefer --password-stdin)")
	loginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	whoamiCmd.Flags().Bool("json", false, "output as JSON")
}

func runRegister(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	userType, err := domain.ParseUserType(flag("user-type"))
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError}
	}

	s, err := app.client.Register(cmd.Context(), api.RegisterRequest{
		Username:    flag("username"),
		Email:       flag("email"),
		Password:    password,
		UserType:    userType,
		FirstName:   flag("first-name"),
		LastName:    flag("last-name"),
		JobTitle:    flag("job-title"),
		CompanyName: flag("company-name"),
		Industry:    flag("industry"),
		Location:    flag("location"),
	})
	if err != nil {
		return err
	}
	app.manager.LoginSucceeded(s)
	app.printer.Success("Registered and signed in as %s", app.printer.Bold(s.User.DisplayName()))
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	if len(args) == 1 {
		username = args[0]
	}
	if username == "" {
		return &output.CLIError{
			Summary:    "username is required",
			Suggestion: "Pass it as an argument or with --username",
			ExitCode:   output.ExitUsageError,
		}
	}
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	s, err := app.client.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}
	app.manager.LoginSucceeded(s)
	app.printer.Success("Signed in as %s", app.printer.Bold(s.User.DisplayName()))
	return nil
}

// readPassword takes --password or the first line of stdin
func readPassword(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	password, _ := cmd.Flags().GetString("password")

	switch {
	case fromStdin && password != "":
		return "", &output.CLIError{
			Summary:  "--password and --password-stdin are mutually exclusive",
			ExitCode: output.ExitUsageError,
		}
	case fromStdin:
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", &output.CLIError{
			Summary:    "password is required",
			Suggestion: "Use --password-stdin to pipe it in",
			ExitCode:   output.ExitUsageError,
		}
	}
	return password, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := app.manager.Restore(cmd.Context()); err != nil {
		logger.Debug("No readable session before logout", "error", err)
	}
	wasSignedIn := app.manager.IsAuthenticated()

	if err := app.manager.Logout(cmd.Context(), app.client); err != nil {
		return err
	}
	if wasSignedIn {
		app.printer.Success("Signed out")
	} else {
		app.printer.Info("No active session")
	}
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	if err := app.manager.Restore(cmd.Context()); err != nil {
		return err
	}
	user, ok := app.manager.CurrentUser()
	if !ok {
		return &output.CLIError{
			Summary:    "You are not logged in.",
			Suggestion: "Run 'compliancectl login' to start a new session",
			ExitCode:   output.ExitAuthError,
		}
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	}

	table := app.printer.NewTable([]string{"Field", "Value"})
	table.AddRow("Name", user.DisplayName())
	table.AddRow("Username", user.Username)
	table.AddRow("Email", user.Email)
	table.AddRow("Type", string(user.UserType))
	switch user.UserType {
	case domain.UserTypeOrganization:
		table.AddRow("Company", user.CompanyName)
		table.AddRow("Industry", user.Industry)
		table.AddRow("Location", user.Location)
	default:
		table.AddRow("Job title", user.JobTitle)
	}
	table.AddRow("Profile", cfg.Store.Profile)
	return table.Render()
}
