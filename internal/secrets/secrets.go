// Package secrets provides the credential store: an opaque key→string
// lookup/set service holding the OAuth client registration, subscription
// keys, and the current token pair. Two backends exist: a JSON file with
// atomic writes, and the operating system keyring.
package secrets

import "errors"

// Well-known credential keys. The names match the keyring entries used by
// the SKY app registration so existing stores keep working.
const (
	KeyAppID        = "sky_app_information.app_id"
	KeyAppSecret    = "sky_app_information.app_secret"
	KeyRedirectURL  = "other.redirect_url"
	KeyPrimarySub   = "other.api_subscription_key"
	KeySecondarySub = "other.payment_subscription_key"
	KeyAccessToken  = "tokens.access_token"
	KeyRefreshToken = "tokens.refresh_token"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("secrets: key not found")

// Store is the credential store interface. Implementations must be safe for
// use from a single process; the token manager serializes writes itself.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// GetDefault returns the stored value for key, or fallback when the key is
// absent. Any other error is propagated.
func GetDefault(s Store, key, fallback string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}

	if err != nil {
		return "", err
	}

	return v, nil
}
