// Package http fetches remote assets, e.g. avatars or thumbnails served by a CDN.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/texpool/internal/util"
	"github.com/unkn0wn-root/texpool/source"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "texpool"
)

type Config struct {
	// BaseURL is joined with relative keys. Absolute keys (with a scheme) are fetched as-is.
	BaseURL string
	// Client defaults to a client with Timeout. Its transport is wrapped with otelhttp.
	Client  *http.Client
	Timeout time.Duration

	// RatePerSecond > 0 limits outgoing requests; Burst defaults to 1.
	RatePerSecond float64
	Burst         int

	UserAgent string
	// MaxBytes caps the response body; 0 = unlimited.
	MaxBytes int64
}

// StatusError is returned for responses other than 200 and 404.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source/http: %s: unexpected status %d", e.URL, e.Code)
}

var ErrTooLarge = errors.New("source/http: response body too large")

type Source struct {
	base     *url.URL
	client   *http.Client
	limiter  *rate.Limiter
	ua       string
	maxBytes int64
}

var _ source.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	s := &Source{
		ua:       util.Coalesce(cfg.UserAgent, defaultUserAgent),
		maxBytes: cfg.MaxBytes,
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("source/http: base url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		s.base = u
	}

	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: util.Coalesce(cfg.Timeout, defaultTimeout)}
	} else {
		cp := *c
		c = &cp
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.Transport = otelhttp.NewTransport(base)
	s.client = c

	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), util.Coalesce(cfg.Burst, 1))
	}
	return s, nil
}

func (s *Source) resolve(key string) (string, error) {
	u, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("source/http: key %q: %w", key, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if s.base == nil {
		return "", fmt.Errorf("source/http: relative key %q without BaseURL", key)
	}
	return s.base.ResolveReference(&url.URL{Path: strings.TrimLeft(u.Path, "/"), RawQuery: u.RawQuery}).String(), nil
}

func (s *Source) Fetch(ctx context.Context, key string) ([]byte, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("source/http: create request: %w", err)
	}
	req.Header.Set("User-Agent", s.ua)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source/http: send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, target)
	default:
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("source/http: read body: %w", err)
	}
	if s.maxBytes > 0 && int64(len(b)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}
