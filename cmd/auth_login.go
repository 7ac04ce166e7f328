package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"carrel/internal/auth"
	"carrel/internal/config"
)

var loginNoBrowser bool

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to the configured server",
	Long: `Authenticate to the configured content server.

For OAuth2 servers this runs the browser-based authorization flow and
stores the resulting tokens securely. For basic-auth servers it validates
the configured credential pair.

Examples:
  carrel auth login                    # Authenticate, opening the browser
  carrel auth login --no-browser       # Print the authorization URL only`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(authConfigFile)
	if err != nil {
		return err
	}
	if loginNoBrowser {
		cfg.EnableBrowserAuth = false
	}

	coord, err := auth.NewCoordinator(cfg)
	if err != nil {
		return err
	}

	authPrint("Authenticating to %s...\n", cfg.URL)
	if err := coord.Middleware().EnsureAuthenticated(cmd.Context()); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	authPrintln("Authentication successful.")
	return nil
}
