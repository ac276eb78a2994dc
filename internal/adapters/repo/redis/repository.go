// Package redis stores one JSON group document per key and uses
// WATCH/MULTI for the versioned compare-and-swap.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/partybot/internal/adapters/repo/document"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultPrefix = "partybot:group:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Repository struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.GroupRepository = (*Repository)(nil)

// Open connects to the server and checks it answers before returning.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", domain.ErrStoreUnavailable, opts.Addr, err)
	}

	logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to redis group store")
	return New(client, opts.Prefix), nil
}

func New(client redis.UniversalClient, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) key(id domain.GroupID) string {
	return r.prefix + string(id)
}

func (r *Repository) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GroupRecord{}, document.NotFound(id)
	}
	if err != nil {
		return domain.GroupRecord{}, unavailable("get", err)
	}
	return document.Unmarshal(data)
}

func (r *Repository) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	key := r.key(record.ID)
	stored := document.Stamp(record)
	data, err := document.Marshal(stored)
	if err != nil {
		return domain.GroupRecord{}, err
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return unavailable("get", err)
		default:
			existing, err := document.Unmarshal(raw)
			if err != nil {
				return err
			}
			current = existing.Version
		}
		if current != record.Version {
			return document.ConflictError(record.ID, record.Version, current)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.GroupRecord{}, fmt.Errorf("%w: group %s changed during write", domain.ErrVersionConflict, record.ID)
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrStoreUnavailable):
		return domain.GroupRecord{}, err
	default:
		return domain.GroupRecord{}, unavailable("upsert", err)
	}
}

func (r *Repository) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	data, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GroupRecord{}, false, nil
	}
	if err != nil {
		return domain.GroupRecord{}, false, unavailable("delete", err)
	}
	record, err := document.Unmarshal(data)
	if err != nil {
		return domain.GroupRecord{}, false, err
	}
	return record, true, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.GroupRecord, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	if len(keys) == 0 {
		return []domain.GroupRecord{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("mget", err)
	}

	records := make([]domain.GroupRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		record, err := document.Unmarshal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", strings.TrimPrefix(keys[i], r.prefix), err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Repository) Close() error {
	return r.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", domain.ErrStoreUnavailable, op, err)
}
