package flow

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultCallbackPort is the default port for the loopback callback server.
const DefaultCallbackPort = 8765

// CallbackTimeout is how long to wait for the authorization redirect before
// giving up on the attempt.
const CallbackTimeout = 10 * time.Minute

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackServer is a temporary loopback HTTP server receiving a single
// authorization redirect. It starts, waits for one callback, then shuts
// down.
type CallbackServer struct {
	port       int
	successURL string
	failURL    string
	server     *http.Server
	listener   net.Listener
	resultCh   chan *Callback
	errorCh    chan error
	once       sync.Once
	serverURL  string
}

// NewCallbackServer creates a callback server on the given port (0 picks
// DefaultCallbackPort). When successURL or failURL are set, the browser is
// redirected there after the callback instead of being shown the inline
// result page.
func NewCallbackServer(port int, successURL, failURL string) *CallbackServer {
	if port == 0 {
		port = DefaultCallbackPort
	}

	return &CallbackServer{
		port:       port,
		successURL: successURL,
		failURL:    failURL,
		resultCh:   make(chan *Callback, 1),
		errorCh:    make(chan error, 1),
	}
}

// Start begins listening and returns the redirect URI to embed in the
// authorization request. The server stops when ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.serverURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// WaitForCallback blocks until the redirect arrives, the server fails, or
// ctx is done.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*Callback, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback accepts exactly one authorization redirect.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback parses the redirect, responds to the browser, and hands
// the result to the waiting flow. Called exactly once via sync.Once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Callback{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	s.respond(w, r, result)

	select {
	case s.resultCh <- result:
	default:
	}

	// Give the response time to reach the browser before shutting down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// respond redirects the browser to the configured target or renders the
// inline result page.
func (s *CallbackServer) respond(w http.ResponseWriter, r *http.Request, result *Callback) {
	if result.IsError() {
		if s.failURL != "" {
			http.Redirect(w, r, s.failURL, http.StatusFound)
			return
		}
		tmpl := template.Must(template.New("error").Parse(callbackErrorHTML))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	if s.successURL != "" {
		http.Redirect(w, r, s.successURL, http.StatusFound)
		return
	}
	tmpl := template.Must(template.New("success").Parse(callbackSuccessHTML))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, map[string]string{}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Stop gracefully shuts down the server.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// RedirectURI returns the redirect URI served by this instance.
func (s *CallbackServer) RedirectURI() string {
	return s.serverURL + "/callback"
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	return s.port
}
