// Package chain layers two secret stores: reads and writes go to the
// primary and fall through to the fallback when the primary cannot serve.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/partybot/internal/adapters/secrets/file"
	passstore "github.com/bnema/partybot/internal/adapters/secrets/pass"
	"github.com/bnema/partybot/internal/ports"
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

func NewStore(primary ports.SecretStore, fallback ports.SecretStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

// NewPassFirstWithFileFallback prefers pass and falls back to files below
// fileRoot.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil || isContextError(err) {
		return err
	}

	if fallbackErr := s.fallback.Put(ctx, key, value); fallbackErr != nil {
		return fmt.Errorf("store secret %q: %w", key, errors.Join(err, fallbackErr))
	}
	return nil
}

// Get returns the primary's value when it has one. The combined error wraps
// domain.ErrSecretNotFound when neither store knows the key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if isContextError(err) {
		return "", err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		return value, nil
	}
	return "", fmt.Errorf("read secret %q: %w", key, errors.Join(err, fallbackErr))
}

// Delete removes the key from both stores so a stale copy cannot resurface
// through the fallback.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if isContextError(err) {
		return err
	}
	if errors.Is(err, passstore.ErrUnavailable) {
		err = nil
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	if joined := errors.Join(err, fallbackErr); joined != nil {
		return fmt.Errorf("delete secret %q: %w", key, joined)
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
