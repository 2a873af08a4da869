package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/texpool/source"
)

// stringStore serves GET from a map; other client methods are left unimplemented.
type stringStore struct {
	goredis.UniversalClient
	vals map[string]string
	err  error
	gets []string
}

func (s *stringStore) Get(_ context.Context, key string) *goredis.StringCmd {
	s.gets = append(s.gets, key)
	if s.err != nil {
		return goredis.NewStringResult("", s.err)
	}
	v, ok := s.vals[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestFetchAppliesPrefix(t *testing.T) {
	rdb := &stringStore{vals: map[string]string{"thumb:avatar/7": "\x89PNG"}}
	src, err := New(Config{Client: rdb, Prefix: "thumb:"})
	require.NoError(t, err)

	b, err := src.Fetch(context.Background(), "avatar/7")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), b)
	assert.Equal(t, []string{"thumb:avatar/7"}, rdb.gets)
}

func TestFetchMissingIsNotFound(t *testing.T) {
	src, err := New(Config{Client: &stringStore{vals: map[string]string{}}})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), "avatar/8")
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Contains(t, err.Error(), "avatar/8")
}

func TestFetchWrapsTransportErrors(t *testing.T) {
	down := errors.New("i/o timeout")
	src, err := New(Config{Client: &stringStore{err: down}})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), "avatar/9")
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, source.ErrNotFound)
}
