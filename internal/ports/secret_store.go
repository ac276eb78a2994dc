package ports

import "context"

// DefaultTokenRef is the secret key the bot token is stored under unless
// discord.token_ref overrides it.
const DefaultTokenRef = "partybot/discord/token"

// SecretStore keeps credentials out of the config file. Keys are slash
// separated paths; Get wraps domain.ErrSecretNotFound for missing keys.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
