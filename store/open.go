// Package store builds the configured credential store backend.
package store

import (
	"context"
	"fmt"

	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/store/filestore"
	"github.com/joy-dx/gosession/store/memstore"
	"github.com/joy-dx/gosession/store/redisstore"
	"github.com/joy-dx/gosession/store/s3store"
)

// Open returns the store selected by cfg and a func releasing its resources.
func Open(ctx context.Context, cfg config.StoreConfig) (dto.CredentialStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case config.StoreMemory:
		return memstore.New(), noop, nil

	case config.StoreFile:
		st, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open file store: %w", err)
		}
		return st, noop, nil

	case config.StoreRedis:
		st, client, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.Key,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open redis store: %w", err)
		}
		return st, client.Close, nil

	case config.StoreS3:
		st, err := s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:         cfg.S3Bucket,
			Key:            cfg.Key,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3Endpoint != "",
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open s3 store: %w", err)
		}
		return st, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store kind %q", cfg.Kind)
}
