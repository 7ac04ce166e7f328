package oauth

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

// DefaultPortRangeStart is the first port tried when no redirect port is
// configured.
const DefaultPortRangeStart = 8080

// PortScanRange is how many consecutive ports are tried before giving up
// with ErrPortExhausted.
const PortScanRange = 100

// CallbackPath is the redirect path served by the listener.
const CallbackPath = "/callback"

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackResult is the terminal outcome captured from the provider's
// redirect: either an authorization code with the echoed state, or an
// error code with its description. Exactly one is produced per attempt.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider redirected with an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is the ephemeral loopback HTTP listener that bridges the
// user's browser back to the waiting process. It serves on a dedicated
// goroutine while the orchestrating flow polls Result; the first terminal
// request wins and later ones are rejected.
type CallbackServer struct {
	mu       sync.Mutex
	result   *CallbackResult
	port     int
	server   *http.Server
	listener net.Listener
}

// NewCallbackServer creates an unbound callback server. Call Start or
// StartInRange to bind it.
func NewCallbackServer() *CallbackServer {
	return &CallbackServer{}
}

// Start binds the listener to the given loopback port and begins serving.
// Port 0 lets the OS choose a free ephemeral port.
func (s *CallbackServer) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind callback port %d: %w", port, err)
	}
	s.serve(listener)
	return nil
}

// StartInRange scans count consecutive ports starting at start and binds
// the first free one. Returns ErrPortExhausted when none is free.
func (s *CallbackServer) StartInRange(start, count int) error {
	for port := start; port < start+count; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		s.serve(listener)
		return nil
	}
	return ErrPortExhausted
}

func (s *CallbackServer) serve(listener net.Listener) {
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		_ = s.server.Serve(listener)
	}()
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	return s.port
}

// RedirectURI returns the redirect URI registered with the provider.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, CallbackPath)
}

// Result returns the captured terminal result, if any. The orchestrating
// flow polls this at a fixed interval; a condition variable would be
// overkill for the single transition a short-lived attempt sees.
func (s *CallbackServer) Result() (*CallbackResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

// setResult records the first terminal result. Later results are dropped.
func (s *CallbackServer) setResult(r *CallbackResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return false
	}
	s.result = r
	return true
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != CallbackPath {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	switch {
	case query.Get("code") != "":
		result := &CallbackResult{
			Code:  query.Get("code"),
			State: query.Get("state"),
		}
		if !s.setResult(result) {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		s.render(w, http.StatusOK, callbackSuccessHTML, nil)

	case query.Get("error") != "":
		result := &CallbackResult{
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}
		if !s.setResult(result) {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		s.render(w, http.StatusBadRequest, callbackErrorHTML, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})

	default:
		http.NotFound(w, r)
	}
}

func (s *CallbackServer) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, err := template.New("callback").Parse(page)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tmpl.Execute(w, data)
}

// Stop shuts the listener down. Called by the orchestrator on terminal
// result or timeout.
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
