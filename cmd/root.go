package cmd

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"carrel/internal/auth"
	"carrel/internal/oauth"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can react to auth state.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authentication flow itself failed.
	ExitCodeAuthFailed = 3
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "carrel",
	Short: "Authenticate against protected content servers",
	Long: `carrel manages authentication for protected content servers:
browser-based OAuth2 login with PKCE, secure local token storage,
and basic-auth sessions for servers that use password credentials.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application. Called by
// main.main().
func Execute() {
	// A .env file in the working directory may carry CARREL_* overrides.
	// Absence is not an error.
	_ = godotenv.Load()

	rootCmd.SetVersionTemplate(`{{printf "carrel version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error
// type. This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *auth.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var denied *oauth.DeniedError
	if errors.As(err, &denied) {
		return ExitCodeAuthFailed
	}
	var exchange *oauth.ExchangeError
	if errors.As(err, &exchange) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrAuthTimeout) || errors.Is(err, oauth.ErrStateMismatch) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
