package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"signet/internal/flow"
	"signet/pkg/oauth"
)

// Login-specific flags
var (
	loginNoBrowser bool
	loginForce     bool
	loginHint      string
	loginScopes    []string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the configured provider",
		Long: `Sign in to the configured OAuth provider.

A still-valid stored session is reused without opening a browser; an expired
one is refreshed silently. Only when neither works does the interactive flow
start: the browser opens the provider's consent page and the redirect is
received on the loopback callback server.

Examples:
  signet login                       # Reuse or establish a session
  signet login --force               # Always run the interactive flow
  signet login --no-browser          # Print the URL, paste the redirect back
  signet login --hint me@example.com # Pre-select the account
  signet login --scope calendar      # Request extra scopes on top of config`,
		RunE: runLogin,
	}

	cmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	cmd.Flags().BoolVar(&loginForce, "force", false, "run the interactive flow even if a session exists")
	cmd.Flags().StringVar(&loginHint, "hint", "", "login hint passed to the provider")
	cmd.Flags().StringSliceVar(&loginScopes, "scope", nil, "additional scopes to request")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	controller, cleanup, err := buildController(loginNoBrowser)
	if err != nil {
		return err
	}
	defer cleanup()

	if !loginForce {
		if profile, err := controller.SignInSilently(ctx); err == nil {
			printSignedIn(profile)
			return requestExtraScopes(cmd, controller)
		} else if !errors.Is(err, oauth.ErrNoSession) && !errors.Is(err, oauth.ErrInvalidGrant) {
			return err
		}
	}

	var s *spinner.Spinner
	if !quiet && !loginNoBrowser {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for sign-in in the browser..."
		s.Start()
	}

	var opts []flow.SignInOption
	if loginHint != "" {
		opts = append(opts, flow.WithLoginHint(loginHint))
	}

	profile, err := controller.SignIn(ctx, opts...)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		if errors.Is(err, oauth.ErrUserCancelled) {
			infoPrint("%s\n", text.FgYellow.Sprint("Sign-in cancelled"))
		}
		return err
	}

	printSignedIn(profile)
	return requestExtraScopes(cmd, controller)
}

// requestExtraScopes runs the incremental flow for --scope values not
// already granted.
func requestExtraScopes(cmd *cobra.Command, controller *flow.Controller) error {
	if len(loginScopes) == 0 {
		return nil
	}

	if err := controller.RequestScopes(cmd.Context(), loginScopes...); err != nil {
		var denied *oauth.ScopeDeniedError
		if errors.As(err, &denied) {
			infoPrint("%s %v\n", text.FgYellow.Sprint("Additional scopes denied:"), denied.Scopes)
		}
		return err
	}
	return nil
}

func printSignedIn(profile *oauth.UserProfile) {
	if profile == nil {
		infoPrint("%s\n", text.FgGreen.Sprint("Signed in"))
		return
	}

	who := profile.Email
	if who == "" {
		who = profile.ID
	}
	if profile.DisplayName != "" {
		who = fmt.Sprintf("%s (%s)", profile.DisplayName, who)
	}
	infoPrint("%s as %s\n", text.FgGreen.Sprint("Signed in"), who)
}
