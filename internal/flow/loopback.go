package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signet/pkg/oauth"
)

// LoopbackLauncher presents authorization requests through the user's
// default browser and receives the redirect on a temporary loopback HTTP
// server. This is the standard presenter for desktop and CLI hosts.
type LoopbackLauncher struct {
	// Port for the callback server; 0 uses DefaultCallbackPort.
	Port int

	// SuccessURL and FailURL optionally redirect the browser after the
	// callback instead of showing the inline result pages.
	SuccessURL string
	FailURL    string

	// OpenURL overrides how the authorization URL is opened. Defaults to
	// OpenBrowser. A failed open is not fatal: the URL is logged so the
	// user can open it by hand.
	OpenURL func(url string) error

	// Timeout bounds the wait for the redirect. Defaults to
	// CallbackTimeout.
	Timeout time.Duration

	mu     sync.Mutex
	server *CallbackServer
}

// Start spins up the callback server and returns its redirect URI.
func (l *LoopbackLauncher) Start(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		l.server.Stop()
	}

	l.server = NewCallbackServer(l.Port, l.SuccessURL, l.FailURL)
	redirectURI, err := l.server.Start(ctx)
	if err != nil {
		l.server = nil
		return "", err
	}
	return redirectURI, nil
}

// Present opens the authorization URL and waits for the redirect.
func (l *LoopbackLauncher) Present(ctx context.Context, authURL string) (*Callback, error) {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()

	if server == nil {
		return nil, errors.New("launcher not started")
	}

	openURL := l.OpenURL
	if openURL == nil {
		openURL = OpenBrowser
	}
	if err := openURL(authURL); err != nil {
		slog.Warn("failed to open browser, open the URL manually",
			"url", authURL,
			"error", err.Error(),
		)
	}

	timeout := l.Timeout
	if timeout == 0 {
		timeout = CallbackTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The user walked away or closed the browser tab.
			return nil, fmt.Errorf("%w: no redirect received within %s", oauth.ErrUserCancelled, timeout)
		}
		return nil, err
	}
	return result, nil
}

// Close stops the callback server if one is running.
func (l *LoopbackLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		l.server.Stop()
		l.server = nil
	}
	return nil
}
