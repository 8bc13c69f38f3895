package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"signet/internal/flow"
	"signet/pkg/oauth"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can tell "not signed in" apart from "the flow failed".
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed or was cancelled.
	ExitCodeAuthFailed = 3
)

// Global flags shared by all subcommands.
var (
	configPath string
	quiet      bool
)

// rootCmd represents the base command for the signet application.
var rootCmd = &cobra.Command{
	Use:   "signet",
	Short: "Sign in to OAuth providers from the command line",
	Long: `signet runs the OAuth 2.0 Authorization Code flow with PKCE for a
configured provider: it opens the browser, receives the redirect on a
loopback server, exchanges the code, and keeps the resulting tokens
refreshed in local storage for other tools to use.`,
	// SilenceUsage prevents cobra from printing the usage message on
	// errors the application handles itself.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "signet version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	if errors.Is(err, flow.ErrAuthRequired) || errors.Is(err, oauth.ErrNoSession) {
		return ExitCodeAuthRequired
	}

	if errors.Is(err, oauth.ErrUserCancelled) || errors.Is(err, oauth.ErrInvalidGrant) {
		return ExitCodeAuthFailed
	}
	var providerErr *oauth.ProviderError
	if errors.As(err, &providerErr) {
		return ExitCodeAuthFailed
	}
	var scopeErr *oauth.ScopeDeniedError
	if errors.As(err, &scopeErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "config directory (default: ~/.config/signet)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newRefreshCmd())
}
