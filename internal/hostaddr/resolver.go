// Package hostaddr decides which server address goes into share links: an
// operator override, or the host's public IP as reported by a lookup service.
package hostaddr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultLookupURL = "https://api.ipify.org"
	cacheKey         = "public-ip"
)

var ErrLookupFailed = errors.New("hostaddr: public address lookup failed")

// Resolver returns the address clients should dial.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Static always resolves to the configured host.
type Static string

func (s Static) Resolve(context.Context) (string, error) { return string(s), nil }

// Lookup asks an HTTP endpoint that echoes the caller's IP.
type Lookup struct {
	url    string
	client *http.Client
	retry  RetryConfig
	cache  *gocache.Cache
}

// NewLookup returns a resolver that caches the result for ttl.
func NewLookup(url string, ttl time.Duration, client *http.Client) *Lookup {
	if url == "" {
		url = DefaultLookupURL
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Lookup{url: url, client: client, retry: DefaultRetryConfig(), cache: gocache.New(ttl, 2*ttl)}
}

// WithRetry overrides the retry policy.
func (l *Lookup) WithRetry(cfg RetryConfig) *Lookup {
	l.retry = cfg
	return l
}

func (l *Lookup) Resolve(ctx context.Context) (string, error) {
	if v, ok := l.cache.Get(cacheKey); ok {
		return v.(string), nil
	}
	var addr string
	err := doWithRetry(ctx, l.retry, func(ctx context.Context) error {
		var err error
		addr, err = l.fetch(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	l.cache.SetDefault(cacheKey, addr)
	return addr, nil
}

// Forget drops the cached address.
func (l *Lookup) Forget() { l.cache.Delete(cacheKey) }

func (l *Lookup) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", permanent{err}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%s: %s", l.url, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", permanent{fmt.Errorf("%s: %s", l.url, resp.Status)}
	}
	addr := strings.TrimSpace(string(body))
	if net.ParseIP(addr) == nil {
		return "", permanent{fmt.Errorf("%s returned %q, not an IP address", l.url, addr)}
	}
	return addr, nil
}

// New returns Static(host) when host is set, otherwise a Lookup.
func New(host, lookupURL string, ttl time.Duration) Resolver {
	if h := strings.TrimSpace(host); h != "" {
		return Static(h)
	}
	return NewLookup(lookupURL, ttl, nil)
}
