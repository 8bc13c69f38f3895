package flow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"signet/pkg/oauth"
)

// Callback is the authorization response delivered to the redirect target:
// either an authorization code bound to the request's state, or a
// provider-reported error.
type Callback struct {
	// Code is the authorization code, empty on error.
	Code string

	// State echoes the state parameter from the authorization request.
	State string

	// Error is the OAuth error code if authorization failed, e.g.
	// "access_denied" when the user declined.
	Error string

	// ErrorDescription is the human-readable description, if supplied.
	ErrorDescription string
}

// IsError reports whether the callback carries a provider error.
func (c *Callback) IsError() bool {
	return c.Error != ""
}

// Launcher presents an authorization URL to the user and returns the
// resulting redirect. It is the flow's only UI touchpoint: hosts select an
// implementation (loopback server plus browser, manual copy/paste, an
// embedded web view) at construction time instead of compiling in platform
// conditionals.
type Launcher interface {
	// Start prepares the launcher and returns the redirect URI to embed
	// in the authorization request.
	Start(ctx context.Context) (redirectURI string, err error)

	// Present opens authURL and blocks until the redirect arrives, the
	// user cancels, or ctx is done. Cancellation is reported as an error
	// matching oauth.ErrUserCancelled.
	Present(ctx context.Context, authURL string) (*Callback, error)

	// Close releases any resources held between attempts.
	Close() error
}

// OpenBrowser opens url in the platform's default web browser. The command
// is started, not waited for.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}

// ManualLauncher is a Launcher for hosts without a browser or a reachable
// loopback interface: it prints the authorization URL and reads the full
// redirect URL the user pastes back. An empty line cancels.
type ManualLauncher struct {
	// RedirectURI is the redirect target registered with the provider.
	RedirectURI string

	// Out receives the prompt and authorization URL.
	Out io.Writer

	// In supplies the pasted redirect URL.
	In io.Reader
}

// Start returns the configured redirect URI.
func (l *ManualLauncher) Start(ctx context.Context) (string, error) {
	if l.RedirectURI == "" {
		return "", fmt.Errorf("manual launcher requires a redirect URI")
	}
	return l.RedirectURI, nil
}

// Present prints the URL and parses the pasted redirect.
func (l *ManualLauncher) Present(ctx context.Context, authURL string) (*Callback, error) {
	fmt.Fprintf(l.Out, "Open this URL in a browser and sign in:\n\n  %s\n\n", authURL)
	fmt.Fprintf(l.Out, "Paste the full redirect URL here (empty line to cancel): ")

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(l.In)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		lines <- strings.TrimSpace(line)
	}()

	var line string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errs:
		return nil, fmt.Errorf("failed to read redirect URL: %w", err)
	case line = <-lines:
	}

	if line == "" {
		return nil, oauth.ErrUserCancelled
	}

	return parseRedirect(line)
}

// Close is a no-op; the launcher holds no resources.
func (l *ManualLauncher) Close() error {
	return nil
}

// parseRedirect extracts the authorization response from a redirect URL.
func parseRedirect(redirect string) (*Callback, error) {
	parsed, err := url.Parse(redirect)
	if err != nil {
		return nil, fmt.Errorf("redirect URL is malformed: %w", err)
	}

	query := parsed.Query()
	return &Callback{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}, nil
}
