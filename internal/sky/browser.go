package sky

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback
// handler.
type callbackResult struct {
	code string
	err  error
}

// BrowserGrantor obtains an authorization code by opening the user's browser
// to the authorization endpoint and listening for the redirect on the
// registered localhost callback address.
type BrowserGrantor struct {
	AuthURL     string
	ClientID    string
	RedirectURL string

	// OpenURL launches the browser. If it fails, the URL is printed to
	// stderr so the user can open it manually.
	OpenURL func(string) error

	Logger *slog.Logger
}

// ObtainCode runs the flow: bind the callback listener, open the browser,
// block until the redirect arrives or ctx is canceled.
func (g *BrowserGrantor) ObtainCode(ctx context.Context) (string, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	redirect, err := url.Parse(g.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("sky: parsing redirect url: %w", err)
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("sky: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	registerCallbackHandler(mux, redirect.Path, state, resultCh)

	srv, err := startCallbackServer(ctx, redirect.Host, mux, resultCh, logger)
	if err != nil {
		return "", err
	}

	defer shutdownCallbackServer(srv, logger)

	authURL := g.authCodeURL(state)
	launchBrowser(authURL, g.OpenURL, logger)

	return waitForCallback(ctx, resultCh)
}

// authCodeURL builds the authorization endpoint URL for the code grant.
func (g *BrowserGrantor) authCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", g.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", g.RedirectURL)
	q.Set("state", state)

	return g.AuthURL + "?" + q.Encode()
}

// startCallbackServer binds the callback address and starts serving.
// The address is fixed by the app registration, not random: the redirect
// URI must match exactly.
func startCallbackServer(
	ctx context.Context,
	addr string,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sky: binding callback listener on %s: %w", addr, err)
	}

	logger.Info("callback server listening", slog.String("addr", addr))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("sky: callback server error: %w", serveErr)}
		}
	}()

	return srv, nil
}

// registerCallbackHandler adds the callback route to the mux.
func registerCallbackHandler(mux *http.ServeMux, path, state string, resultCh chan<- callbackResult) {
	if path == "" {
		path = "/"
	}

	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})
}

// handleCallback validates the state, extracts the code, and sends the result.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("sky: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("sky: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("sky: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Best-effort shutdown — log but don't propagate since we're in a defer.
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
		return
	}

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("sky: browser auth canceled: %w", ctx.Err())
	}
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
