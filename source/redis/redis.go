// Package redis fetches assets stored as plain string values, e.g. thumbnails
// rendered by another service.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/texpool/source"
)

var ErrNilClient = errors.New("source/redis: nil client")

type Config struct {
	Client goredis.UniversalClient
	// Prefix is prepended to every key, e.g. "thumb:".
	Prefix string
}

type Source struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ source.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Source{rdb: cfg.Client, prefix: cfg.Prefix}, nil
}

func (s *Source) Fetch(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("source/redis: get %s: %w", key, err)
	}
	return b, nil
}
