package sky

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"skyq/internal/secrets"
)

// Blackbaud OAuth endpoints.
const (
	DefaultAuthURL  = "https://app.blackbaud.com/oauth/authorize"
	DefaultTokenURL = "https://oauth2.sky.blackbaud.com/token"
)

// DefaultRedirectURL is used when the credential store has no redirect URL.
// The port must match the app registration.
const DefaultRedirectURL = "http://localhost:13631/"

// Credentials is the immutable per-process credential bundle loaded once at
// startup from the secrets store.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	PrimaryKey   string
	SecondaryKey string
}

// LoadCredentials reads the credential bundle from the store. A missing
// client id or secret is ErrMissingCredentials — the process must not start.
func LoadCredentials(store secrets.Store) (Credentials, error) {
	id, err := secrets.GetDefault(store, secrets.KeyAppID, "")
	if err != nil {
		return Credentials{}, fmt.Errorf("sky: reading client id: %w", err)
	}

	secret, err := secrets.GetDefault(store, secrets.KeyAppSecret, "")
	if err != nil {
		return Credentials{}, fmt.Errorf("sky: reading client secret: %w", err)
	}

	if id == "" || secret == "" {
		return Credentials{}, ErrMissingCredentials
	}

	redirect, err := secrets.GetDefault(store, secrets.KeyRedirectURL, DefaultRedirectURL)
	if err != nil {
		return Credentials{}, fmt.Errorf("sky: reading redirect url: %w", err)
	}

	primary, err := secrets.GetDefault(store, secrets.KeyPrimarySub, "")
	if err != nil {
		return Credentials{}, fmt.Errorf("sky: reading subscription key: %w", err)
	}

	secondary, err := secrets.GetDefault(store, secrets.KeySecondarySub, "")
	if err != nil {
		return Credentials{}, fmt.Errorf("sky: reading secondary subscription key: %w", err)
	}

	return Credentials{
		ClientID:     id,
		ClientSecret: secret,
		RedirectURL:  redirect,
		PrimaryKey:   primary,
		SecondaryKey: secondary,
	}, nil
}

// CodeGrantor obtains an OAuth2 authorization code interactively. The
// production implementation opens a browser and runs a localhost callback
// listener; tests return a fixed code.
type CodeGrantor interface {
	ObtainCode(ctx context.Context) (string, error)
}

// TokenManager owns the access/refresh token pair. Tokens are loaded from
// the secrets store at construction and persisted back on every update.
// The cached pair is guarded by a mutex: refreshes are single-writer,
// requests read a snapshot.
type TokenManager struct {
	creds   Credentials
	store   secrets.Store
	grantor CodeGrantor
	oauth   *oauth2.Config
	logger  *slog.Logger

	mu      sync.Mutex
	access  string
	refresh string
}

// NewTokenManager creates a TokenManager, loading any stored token pair.
// authURL/tokenURL default to the Blackbaud endpoints when empty.
func NewTokenManager(
	creds Credentials,
	store secrets.Store,
	grantor CodeGrantor,
	authURL, tokenURL string,
	logger *slog.Logger,
) (*TokenManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if authURL == "" {
		authURL = DefaultAuthURL
	}

	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	access, err := secrets.GetDefault(store, secrets.KeyAccessToken, "")
	if err != nil {
		return nil, fmt.Errorf("sky: reading access token: %w", err)
	}

	refresh, err := secrets.GetDefault(store, secrets.KeyRefreshToken, "")
	if err != nil {
		return nil, fmt.Errorf("sky: reading refresh token: %w", err)
	}

	m := &TokenManager{
		creds:   creds,
		store:   store,
		grantor: grantor,
		logger:  logger,
		access:  access,
		refresh: refresh,
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
	}

	return m, nil
}

// AccessToken returns the cached access token ("" when none).
func (m *TokenManager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.access
}

// EnsureSession guarantees a usable token pair before any API call: a
// missing refresh token forces the interactive flow (blocking until the
// user authorizes or ctx is canceled), a missing access token forces a
// refresh.
func (m *TokenManager) EnsureSession(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.refresh
	access := m.access
	m.mu.Unlock()

	if refresh == "" {
		m.logger.Info("no refresh token found, starting interactive authentication")

		if err := m.Authenticate(ctx); err != nil {
			return err
		}

		return nil
	}

	if access == "" {
		return m.Refresh(ctx)
	}

	return nil
}

// Authenticate runs the interactive authorization-code flow: obtain a code
// via the grantor, exchange it, persist the new pair.
func (m *TokenManager) Authenticate(ctx context.Context) error {
	if m.grantor == nil {
		return ErrAuthRequired
	}

	code, err := m.grantor.ObtainCode(ctx)
	if err != nil {
		return fmt.Errorf("sky: obtaining authorization code: %w", err)
	}

	return m.ExchangeCode(ctx, code)
}

// ExchangeCode exchanges an authorization code for a token pair and
// persists it.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) error {
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("sky: exchanging authorization code: %w", err)
	}

	m.logger.Info("authorization code exchanged",
		slog.Time("expiry", tok.Expiry),
	)

	return m.persist(tok.AccessToken, tok.RefreshToken)
}

// Refresh exchanges the refresh token for a new pair and persists it.
// A dead refresh token can only be repaired by the user, so any failure of
// the refresh grant escalates to interactive re-authentication rather than
// surfacing a transient error.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.refresh
	m.mu.Unlock()

	if refresh == "" {
		m.logger.Warn("refresh requested without a refresh token, re-authenticating")
		return m.Authenticate(ctx)
	}

	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})

	tok, err := src.Token()
	if err != nil {
		m.logger.Warn("token refresh failed, re-authenticating",
			slog.String("error", err.Error()),
		)

		return m.Authenticate(ctx)
	}

	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		// Some grants return no new refresh token; the old one stays valid.
		newRefresh = refresh
	}

	m.logger.Info("access token refreshed",
		slog.Time("expiry", tok.Expiry),
	)

	return m.persist(tok.AccessToken, newRefresh)
}

// persist stores the pair and updates the cache. The cache is only updated
// after both store writes succeed so a failed write cannot desync cache and
// store.
func (m *TokenManager) persist(access, refresh string) error {
	if err := m.store.Set(secrets.KeyAccessToken, access); err != nil {
		return fmt.Errorf("sky: persisting access token: %w", err)
	}

	if err := m.store.Set(secrets.KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("sky: persisting refresh token: %w", err)
	}

	m.mu.Lock()
	m.access = access
	m.refresh = refresh
	m.mu.Unlock()

	return nil
}
