// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

const (
	redisKeyPrefix = "accountd:session:"
	sessionIDBytes = 32
)

// redisClient is the subset of *redis.Client used by RedisCodec.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOptions configures the redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("SESSION_BACKEND_UNAVAILABLE").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// RedisCodec maps random session ids to account ids in redis.
type RedisCodec struct {
	client   redisClient
	accounts AccountFinder
	ttl      time.Duration
}

// NewRedisCodec creates a RedisCodec. A non-positive ttl uses DefaultTTL.
func NewRedisCodec(client redisClient, accounts AccountFinder, ttl time.Duration) (*RedisCodec, error) {
	if client == nil || accounts == nil {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("redis client and account finder are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCodec{client: client, accounts: accounts, ttl: ttl}, nil
}

// Encode implements Codec.
func (c *RedisCodec) Encode(ctx context.Context, acct *account.Account) (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").With("operation", "generate id").Wrap(err)
	}
	id := hex.EncodeToString(buf)

	if err := c.client.Set(ctx, redisKeyPrefix+id, acct.ID.String(), c.ttl).Err(); err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").
			With("operation", "store session").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}
	return id, nil
}

// Decode implements Codec.
func (c *RedisCodec) Decode(ctx context.Context, value string) (*account.Account, error) {
	if !validSessionID(value) {
		return nil, oops.Code("SESSION_INVALID").With("reason", "malformed id").Wrap(ErrSessionNotFound)
	}

	accountID, err := c.client.Get(ctx, redisKeyPrefix+value).Result()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_INVALID").With("reason", "unknown or expired").Wrap(ErrSessionNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").With("operation", "get session").Wrap(err)
	}
	return rehydrate(ctx, c.accounts, accountID)
}

// Revoke implements Codec.
func (c *RedisCodec) Revoke(ctx context.Context, value string) error {
	if !validSessionID(value) {
		return nil
	}
	if err := c.client.Del(ctx, redisKeyPrefix+value).Err(); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").Wrap(err)
	}
	return nil
}

func validSessionID(value string) bool {
	if len(value) != sessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

var _ Codec = (*RedisCodec)(nil)
