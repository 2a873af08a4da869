// Package ttlcache is the default in-process residency store.
package ttlcache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/unkn0wn-root/texpool/provider"
)

var _ provider.Provider = (*Provider)(nil)

type Config struct {
	// Capacity bounds the number of resident entries; 0 = unbounded.
	Capacity uint64
}

type Provider struct {
	c    *ttlcache.Cache[string, []byte]
	stop sync.Once
}

// New starts the expiry loop. Close stops it.
func New(cfg Config) *Provider {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](cfg.Capacity))
	}
	c := ttlcache.New[string, []byte](opts...)
	go c.Start()
	return &Provider{c: c}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	it := p.c.Get(key)
	if it == nil {
		return nil, false, nil
	}
	return it.Value(), true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Provider) Close(context.Context) error {
	p.stop.Do(p.c.Stop)
	return nil
}

// Len is the number of resident entries, expired ones included until the next sweep.
func (p *Provider) Len() int { return p.c.Len() }
