package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are filed under.
const DefaultKeyringService = "canvaskit"

// Keyring stores values in the OS credential store (macOS Keychain,
// Secret Service, Windows Credential Manager). The key is used as the account name.
type Keyring struct {
	service string
	now     func() time.Time
}

// NewKeyring creates a keyring store. An empty service uses DefaultKeyringService.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultKeyringService
	}
	return &Keyring{
		service: service,
		now:     time.Now,
	}
}

// Get returns the value stored under key, or ErrNotFound when it is absent or expired.
func (k *Keyring) Get(ctx context.Context, key string) ([]byte, error) {
	secret, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keyring entry: %w", err)
	}

	r, err := decodeRecord([]byte(secret))
	if err != nil {
		return nil, err
	}

	if r.expired(k.now()) {
		_ = keyring.Delete(k.service, key)
		return nil, ErrNotFound
	}

	return r.Value, nil
}

// Put stores value under key. A non-positive ttl keeps it until Forget.
func (k *Keyring) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := encodeRecord(newRecord(value, ttl, k.now()))
	if err != nil {
		return err
	}

	if err := keyring.Set(k.service, key, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring entry: %w", err)
	}
	return nil
}

// Forget removes key. Removing an absent key is not an error.
func (k *Keyring) Forget(ctx context.Context, key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

var _ Store = (*Keyring)(nil)
