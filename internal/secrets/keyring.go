package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name secrets are stored under.
const DefaultService = "skyq"

// Keyring stores secrets in the operating system keyring (Secret Service on
// Linux, Keychain on macOS). Each key becomes a separate entry under the
// service name.
type Keyring struct {
	service string
}

// NewKeyring creates a keyring-backed store. An empty service selects
// DefaultService.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}

	return &Keyring{service: service}
}

func (k *Keyring) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("secrets: keyring get %s: %w", key, err)
	}

	if v == "" {
		return "", ErrNotFound
	}

	return v, nil
}

func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("secrets: keyring set %s: %w", key, err)
	}

	return nil
}
