package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"carrel/internal/config"
	"carrel/internal/tokenstore"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the authentication status for the configured server.

This command inspects the local token store without any network traffic:
the selected storage backend, the servers with stored tokens, and whether
the configured server's token is still valid.`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(authConfigFile)
	if err != nil {
		return err
	}

	fmt.Printf("Server:       %s\n", cfg.URL)
	fmt.Printf("Auth method:  %s\n", cfg.AuthMethod)

	if cfg.AuthMethod != config.AuthMethodOAuth2 {
		fmt.Println("Status:       credentials configured (validated on use)")
		return nil
	}

	tokens, err := tokenstore.NewManager(cfg.TokenStorageBackend)
	if err != nil {
		return err
	}
	fmt.Printf("Storage:      %s\n", tokens.BackendName())

	rec := tokens.GetIncludingExpired(cfg.URL)
	switch {
	case rec == nil:
		fmt.Println("Status:       not authenticated")
		fmt.Println("\nTo authenticate, run:")
		fmt.Println("  carrel auth login")
	case rec.Expired() && rec.RefreshToken != "":
		fmt.Println("Status:       token expired (refreshable)")
	case rec.Expired():
		fmt.Println("Status:       token expired")
		fmt.Println("\nTo re-authenticate, run:")
		fmt.Println("  carrel auth login")
	default:
		fmt.Println("Status:       authenticated")
		if rec.ExpiresAt > 0 {
			fmt.Printf("Expires:      %s\n", formatExpiry(time.Unix(rec.ExpiresAt, 0)))
		}
	}

	if others := tokens.ListServers(); len(others) > 1 {
		fmt.Println("\nOther servers with stored tokens:")
		for _, server := range others {
			if server != cfg.URL {
				fmt.Printf("  - %s\n", server)
			}
		}
	}
	return nil
}

// formatExpiry renders an expiry time with its direction relative to now,
// e.g. "2026-08-27 14:03:00 (in 58m)".
func formatExpiry(at time.Time) string {
	delta := time.Until(at).Round(time.Minute)
	if delta >= 0 {
		return fmt.Sprintf("%s (in %s)", at.Format("2006-01-02 15:04:05"), delta)
	}
	return fmt.Sprintf("%s (%s ago)", at.Format("2006-01-02 15:04:05"), -delta)
}
