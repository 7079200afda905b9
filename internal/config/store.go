package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/florianilch/canvaskit/tokenstore"
)

// defaultStorePath is the file store directory used when none is configured.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".canvaskit", "tokens")
	}
	return filepath.Join(dir, "canvaskit", "tokens")
}

// NewTokenStore opens the configured token store. Stores holding connections
// (redis, sql) implement io.Closer and must be closed by the caller.
func (s StoreConfig) NewTokenStore(ctx context.Context) (tokenstore.Store, error) {
	switch s.Type {
	case StoreMemory:
		return tokenstore.NewMemory(), nil

	case StoreFile:
		store, err := tokenstore.NewFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return store, nil

	case StoreKeyring:
		return tokenstore.NewKeyring(s.Keyring.Service), nil

	case StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.Redis.Addr},
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", s.Redis.Addr, err)
		}
		return tokenstore.NewRedis(client, s.Redis.Prefix), nil

	case StoreS3:
		store, err := tokenstore.NewS3(tokenstore.S3Config{
			Endpoint:  s.S3.Endpoint,
			Bucket:    s.S3.Bucket,
			AccessKey: s.S3.AccessKey,
			SecretKey: s.S3.SecretKey,
			UseSSL:    s.S3.UseSSL,
			Prefix:    s.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		return store, nil

	case StoreSQL:
		store, err := tokenstore.OpenSQL(ctx, s.SQL.Driver, s.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported token store %q", s.Type)
	}
}
