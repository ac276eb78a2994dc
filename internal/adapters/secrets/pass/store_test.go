package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/partybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenKey = "partybot/discord/token"

func TestStorePutInsertsMultiline(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		run: func(_ context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, []string{"insert", "--multiline", "--force", tokenKey}, args)
			assert.Equal(t, "bot-token\n", input)
			return "", "", nil
		},
	}

	require.NoError(t, store.Put(context.Background(), tokenKey, "bot-token"))
	assert.True(t, called)
}

func TestStoreGetReturnsFirstLine(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(_ context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", tokenKey}, args)
			assert.Empty(t, input)
			return "bot-token\r\nissued: 2026-01-02\n", "", nil
		},
	}

	value, err := store.Get(context.Background(), tokenKey)
	require.NoError(t, err)
	assert.Equal(t, "bot-token", value)
}

func TestStoreGetMapsMissingEntry(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(context.Context, string, ...string) (string, string, error) {
			return "", "Error: partybot/discord/token is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), tokenKey)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreGetReportsOtherFailures(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(context.Context, string, ...string) (string, string, error) {
			return "", "gpg: decryption failed: No secret key", errors.New("exit status 2")
		},
	}

	_, err := store.Get(context.Background(), tokenKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestStoreDeleteIgnoresMissingEntry(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(_ context.Context, _ string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"rm", "--force", tokenKey}, args)
			return "", "Error: partybot/discord/token is not in the password store.", errors.New("exit status 1")
		},
	}

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	store := &Store{run: func(context.Context, string, ...string) (string, string, error) {
		t.Fatal("pass must not run")
		return "", "", nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, tokenKey)
	require.ErrorIs(t, err, context.Canceled)
}
