package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"carrel/internal/auth"
	"carrel/internal/client"
	"carrel/internal/config"
)

var (
	authConfigFile string
	authQuiet      bool
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for carrel",
	Long: `Manage authentication for carrel CLI commands.

The auth command group provides subcommands to login, logout, check status,
refresh tokens, and show the current identity for the configured server.

Examples:
  carrel auth login                    # Authenticate to the configured server
  carrel auth login --no-browser       # Print the URL instead of opening a browser
  carrel auth status                   # Show authentication status
  carrel auth whoami                   # Show current identity
  carrel auth refresh                  # Force a token refresh
  carrel auth logout                   # Discard stored tokens
  carrel auth logout --all             # Clear tokens for every known server`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored authentication tokens",
	Long: `Clear stored OAuth tokens.

This command removes cached authentication tokens, requiring you to
re-authenticate on the next connection to the server.

Examples:
  carrel auth logout                   # Logout from the configured server
  carrel auth logout --all             # Clear all stored tokens
  carrel auth logout --all --yes       # Clear all without confirmation`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Force a refresh of the authentication token.

This command attempts a refresh-token grant for the configured server,
which can be useful if you're experiencing authentication issues.`,
	RunE: runAuthRefresh,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show current authenticated identity",
	Long: `Show the identity the server associates with your credentials.

This command performs an authenticated request against the server's
identity endpoint and prints the result.`,
	RunE: runAuthWhoami,
}

// Logout-specific flags
var (
	logoutAll bool
	logoutYes bool
)

// authPrint prints output only if the --quiet flag is not set.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authCmd.PersistentFlags().StringVar(&authConfigFile, "config", "", "Configuration file (default is the per-OS user config directory)")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")

	authLogoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Clear all stored tokens")
	authLogoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Skip confirmation prompt for --all")
}

// loadCoordinator loads the configuration and assembles the auth
// subsystem for it.
func loadCoordinator() (*auth.Coordinator, error) {
	cfg, err := config.Load(authConfigFile)
	if err != nil {
		return nil, err
	}
	return auth.NewCoordinator(cfg)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	coord, err := loadCoordinator()
	if err != nil {
		return err
	}

	if logoutAll {
		tokens := coord.TokenManager()
		if tokens == nil {
			authPrintln("No stored tokens to clear.")
			return nil
		}

		servers := tokens.ListServers()
		if len(servers) == 0 {
			authPrintln("No stored tokens to clear.")
			return nil
		}

		if !logoutYes {
			fmt.Printf("The following %d token(s) will be cleared:\n", len(servers))
			for _, server := range servers {
				fmt.Printf("  - %s\n", server)
			}
			fmt.Print("\nAre you sure you want to clear all tokens? [y/N]: ")

			reader := bufio.NewReader(os.Stdin)
			response, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := tokens.ClearAll(); err != nil {
			return fmt.Errorf("failed to clear all tokens: %w", err)
		}
		authPrint("Cleared %d stored token(s).\n", len(servers))
		return nil
	}

	if err := coord.Middleware().Logout(cmd.Context()); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	authPrint("Logged out from %s\n", coord.Config().URL)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	coord, err := loadCoordinator()
	if err != nil {
		return err
	}

	authPrint("Refreshing token for %s...\n", coord.Config().URL)
	if !coord.Refresh(cmd.Context()) {
		return fmt.Errorf("failed to refresh token for %s", coord.Config().URL)
	}

	authPrintln("Token refreshed successfully.")
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	coord, err := loadCoordinator()
	if err != nil {
		return err
	}

	c, err := coord.GetClient(cmd.Context())
	if err != nil {
		return &auth.AuthRequiredError{Err: err}
	}

	ident, err := auth.Invoke(cmd.Context(), coord.Middleware(), func(ctx context.Context) (*client.Identity, error) {
		return c.WhoAmI(ctx)
	})
	if err != nil {
		return err
	}

	if ident.Email != "" {
		fmt.Printf("Identity:  %s\n", ident.Email)
	} else {
		fmt.Printf("Identity:  %s\n", ident.ID)
	}
	fmt.Printf("Server:    %s\n", coord.Config().URL)
	return nil
}
