// Package streamer is a texpool.Loader that fetches asset bytes from a source.Source
// on background goroutines, keeps them resident in a provider.Provider, and decodes
// them with a codec when the pool resolves the key.
//
// Completions are handed back to the pool's owner goroutine through a Poster
// (usually a *dispatch.Queue). Fetches of the same key are shared between every
// pool that uses the same Streamer.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/texpool"
	"github.com/unkn0wn-root/texpool/codec"
	"github.com/unkn0wn-root/texpool/genstore"
	"github.com/unkn0wn-root/texpool/internal/util"
	"github.com/unkn0wn-root/texpool/internal/wire"
	"github.com/unkn0wn-root/texpool/provider"
	"github.com/unkn0wn-root/texpool/provider/ttlcache"
	"github.com/unkn0wn-root/texpool/source"
)

const (
	defaultNamespace     = "tex"
	defaultMaxConcurrent = 8
	defaultFetchTimeout  = 15 * time.Second
	defaultMaxAssetBytes = 64 << 20
)

// Poster runs f on the pool's owner goroutine. It reports false if f was dropped.
type Poster interface {
	Post(f func()) bool
}

type Options[R any] struct {
	Source source.Source  // required
	Codec  codec.Codec[R] // required
	Poster Poster         // required

	// Resident holds fetched bytes until the pool resolves them. nil => an owned
	// provider/ttlcache store, closed with the streamer.
	Resident      provider.Provider
	CloseResident bool // close Resident on Close; set only if the streamer owns it

	// Generations guards Evict against fetches already in flight. nil => an owned
	// in-process store. Share a genstore.RedisGenStore when Resident is shared.
	Generations      genstore.GenStore
	CloseGenerations bool

	Namespace     string        // "" => "tex"
	MaxConcurrent int64         // concurrent fetches; <= 0 => 8
	FetchTimeout  time.Duration // per fetch; <= 0 => 15s
	ResidentTTL   time.Duration // 0 => no expiry
	MaxAssetBytes int           // 0 => 64 MiB; < 0 => unlimited

	Logger texpool.Logger
}

type Streamer[R any] struct {
	src       source.Source
	codec     codec.Codec[R]
	poster    Poster
	res       provider.Provider
	closeRes  bool
	gens      genstore.GenStore
	closeGens bool
	ns        string
	timeout   time.Duration
	ttl       time.Duration
	maxBytes  int
	log       texpool.Logger
	maxFlight int

	sem *semaphore.Weighted
	sf  singleflight.Group
	now func() time.Time

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

var (
	_ texpool.Loader[struct{}] = (*Streamer[struct{}])(nil)
	_ texpool.BatchLoader      = (*Streamer[struct{}])(nil)
)

func New[R any](opts Options[R]) (*Streamer[R], error) {
	if opts.Source == nil {
		return nil, errors.New("streamer: source is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("streamer: codec is required")
	}
	if opts.Poster == nil {
		return nil, errors.New("streamer: poster is required")
	}

	s := &Streamer[R]{
		src:       opts.Source,
		codec:     opts.Codec,
		poster:    opts.Poster,
		res:       opts.Resident,
		closeRes:  opts.CloseResident,
		gens:      opts.Generations,
		closeGens: opts.CloseGenerations,
		ttl:       opts.ResidentTTL,
		now:       time.Now,
	}
	if s.res == nil {
		s.res = ttlcache.New(ttlcache.Config{})
		s.closeRes = true
	}
	if s.gens == nil {
		s.gens = genstore.NewLocalGenStore(0, 0)
		s.closeGens = true
	}

	// defaults
	s.ns = util.Coalesce(opts.Namespace, defaultNamespace)
	s.log = texpool.WithFields(opts.Logger, texpool.Fields{"ns": s.ns})
	s.timeout = defaultFetchTimeout
	if opts.FetchTimeout > 0 {
		s.timeout = opts.FetchTimeout
	}
	weight := int64(defaultMaxConcurrent)
	if opts.MaxConcurrent > 0 {
		weight = opts.MaxConcurrent
	}
	s.sem = semaphore.NewWeighted(weight)
	s.maxFlight = int(weight)
	s.maxBytes = util.Coalesce(opts.MaxAssetBytes, defaultMaxAssetBytes)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

type handle struct {
	cancelled atomic.Bool
}

func (h *handle) Cancel() { h.cancelled.Store(true) }

// Start fetches key in the background and posts done once the bytes are resident
// (or the fetch failed). A cancelled handle never runs done.
func (s *Streamer[R]) Start(key texpool.Key, done func()) (texpool.Handle, error) {
	if !s.enter() {
		return nil, ErrClosed
	}
	h := &handle{}
	go func() {
		defer s.wg.Done()
		if err := s.load(s.ctx, key); err != nil {
			s.logFailure(key, err)
		}
		if h.cancelled.Load() || s.ctx.Err() != nil {
			return
		}
		posted := s.poster.Post(func() {
			if !h.cancelled.Load() {
				done()
			}
		})
		if !posted {
			s.log.Debug("completion dropped by poster", texpool.Fields{"key": key})
		}
	}()
	return h, nil
}

// Resolve decodes the resident bytes for key. Corrupt, expired, evicted or undecodable
// entries are deleted and reported as a miss.
func (s *Streamer[R]) Resolve(key texpool.Key) (R, bool) {
	var zero R
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	k := util.StorageKey(s.ns, string(key))
	raw, ok, err := s.res.Get(ctx, k)
	if err != nil {
		s.log.Warn("resident read failed", texpool.Fields{"key": key, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	gen, storedAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.selfHeal(ctx, key, k, "corrupt")
		return zero, false
	}
	cur, err := s.gens.Snapshot(ctx, k)
	if err != nil {
		s.log.Warn("generation read failed", texpool.Fields{"key": key, "err": err})
		return zero, false
	}
	if gen != cur {
		s.selfHeal(ctx, key, k, "stale generation")
		return zero, false
	}
	if s.ttl > 0 && s.now().Sub(storedAt) > s.ttl {
		s.selfHeal(ctx, key, k, "expired")
		return zero, false
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.selfHeal(ctx, key, k, "decode: "+err.Error())
		return zero, false
	}
	return v, true
}

func (s *Streamer[R]) selfHeal(ctx context.Context, key texpool.Key, storageKey, reason string) {
	_ = s.res.Del(ctx, storageKey)
	s.log.Debug("dropped resident entry", texpool.Fields{"key": key, "reason": reason})
}

// LoadNow makes key resident before returning. It shares an in-flight fetch of the
// same key if there is one.
func (s *Streamer[R]) LoadNow(ctx context.Context, key texpool.Key) error {
	return s.load(ctx, key)
}

// LoadMany runs LoadNow for keys in parallel, at most MaxConcurrent at a time, and
// returns the failures.
func (s *Streamer[R]) LoadMany(ctx context.Context, keys []texpool.Key) map[texpool.Key]error {
	var (
		mu     sync.Mutex
		failed = make(map[texpool.Key]error)
		g      errgroup.Group
	)
	g.SetLimit(s.maxFlight)
	for _, k := range keys {
		g.Go(func() error {
			if err := s.load(ctx, k); err != nil {
				mu.Lock()
				failed[k] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Evict drops the resident bytes for key and bumps its generation, so a fetch that is
// already in flight does not store its bytes. The next Resolve misses. It fails only
// if neither step succeeded.
func (s *Streamer[R]) Evict(ctx context.Context, key texpool.Key) error {
	k := util.StorageKey(s.ns, string(key))
	newGen, bumpErr := s.gens.Bump(ctx, k)
	delErr := s.res.Del(ctx, k)
	switch {
	case bumpErr != nil && delErr != nil:
		return fmt.Errorf("streamer: evict %q: %w", key, errors.Join(bumpErr, delErr))
	case bumpErr != nil:
		s.log.Warn("evict without generation bump; in-flight fetch may restore entry", texpool.Fields{"key": key, "err": bumpErr})
	default:
		s.log.Debug("evicted (bumped gen + cleared entry)", texpool.Fields{"key": key, "newGen": newGen})
	}
	return nil
}

// load waits for the shared fetch of key, or for ctx.
func (s *Streamer[R]) load(ctx context.Context, key texpool.Key) error {
	ch := s.sf.DoChan(string(key), func() (any, error) {
		return nil, s.fetch(key)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetch is shared by every caller waiting on key, so it runs on the streamer's
// context rather than any caller's.
func (s *Streamer[R]) fetch(key texpool.Key) error {
	if !s.enter() {
		return ErrClosed
	}
	defer s.wg.Done()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	k := util.StorageKey(s.ns, string(key))
	obs, err := s.gens.Snapshot(ctx, k)
	if err != nil {
		return fmt.Errorf("streamer: generation %q: %w", key, err)
	}

	b, err := s.src.Fetch(ctx, string(key))
	if err != nil {
		return fmt.Errorf("streamer: fetch %q: %w", key, err)
	}
	if s.maxBytes > 0 && len(b) > s.maxBytes {
		return fmt.Errorf("%w: %q is %d bytes", ErrTooLarge, key, len(b))
	}

	if cur, err := s.gens.Snapshot(ctx, k); err != nil || cur != obs {
		// generation moved; skip stale write
		return fmt.Errorf("%w: %q", ErrEvicted, key)
	}

	entry := wire.EncodeEntry(obs, s.now(), b)
	ok, err := s.res.Set(ctx, k, entry, int64(len(b)), s.ttl)
	if err != nil {
		return fmt.Errorf("streamer: store %q: %w", key, err)
	}
	if !ok {
		s.log.Debug("resident store rejected entry (pressure)", texpool.Fields{"key": key, "bytes": len(b)})
	}
	return nil
}

func (s *Streamer[R]) logFailure(key texpool.Key, err error) {
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return
	case errors.Is(err, source.ErrNotFound):
		s.log.Debug("asset not found", texpool.Fields{"key": key})
	case errors.Is(err, ErrEvicted):
		s.log.Debug("fetch superseded by evict", texpool.Fields{"key": key})
	default:
		s.log.Warn("asset fetch failed", texpool.Fields{"key": key, "err": err})
	}
}

// enter registers a goroutine with Close. It reports false once closed.
func (s *Streamer[R]) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Close cancels every fetch and waits for background goroutines, bounded by ctx.
// Completions that were not posted yet are dropped. Safe to call more than once.
func (s *Streamer[R]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	if s.closeGens {
		errs = append(errs, s.gens.Close(ctx))
	}
	if s.closeRes {
		errs = append(errs, s.res.Close(ctx))
	}
	return errors.Join(errs...)
}
