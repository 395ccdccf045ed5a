package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/resilience"
	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
)

// DefaultTTL is how long a fetched dependency stays fresh.
const DefaultTTL = 30 * 24 * time.Hour

// MaxBodySize bounds a dependency or script download.
const MaxBodySize = 10 << 20

const parallelFetches = 4

var (
	ErrStatus   = errors.New("unexpected HTTP status")
	ErrTooLarge = errors.New("body exceeds size limit")
)

// Config configures a Fetcher.
type Config struct {
	TTL       time.Duration
	Retries   int
	Timeout   time.Duration
	UserAgent string
}

// Fetcher implements scripts.DependencyFetcher and scripts.UpdateSource.
type Fetcher struct {
	client    *retryablehttp.Client
	breaker   *resilience.Breaker
	ttl       time.Duration
	userAgent string
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	now       func() time.Time
}

// NewFetcher creates a dependency fetcher.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if errors.Is(err, httpx.ErrAddressBlocked) {
			return false, err
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	f := &Fetcher{
		client:    client,
		ttl:       cfg.TTL,
		userAgent: cfg.UserAgent,
		encoder:   encoder,
		decoder:   decoder,
		logger:    logger,
		now:       time.Now,
	}

	settings := resilience.DependencySettings()
	// A refused dial says nothing about the remote side's health.
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, httpx.ErrAddressBlocked)
	}
	settings.OnStateChange = func(name string, from, to resilience.State) {
		f.logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	f.breaker = resilience.New("dependencies", settings)
	return f, nil
}

// WithMetrics adds metrics tracking to the fetcher
func (f *Fetcher) WithMetrics(metrics *monitoring.Metrics) *Fetcher {
	f.metrics = metrics
	return f
}

// WithTransport replaces the HTTP transport, typically with an
// httpx.NewGuardedTransport so @require and @resource URLs cannot reach
// internal networks.
func (f *Fetcher) WithTransport(rt http.RoundTripper) *Fetcher {
	f.client.HTTPClient.Transport = rt
	return f
}

// Breaker exposes the circuit breaker state for health reporting.
func (f *Fetcher) Breaker() *resilience.Breaker {
	return f.breaker
}

// Fetch returns a cache covering every @require and @resource URL of meta.
// Fresh entries of existing are reused; a failed refresh keeps the stale
// entry; a URL that never fetched successfully is simply absent.
func (f *Fetcher) Fetch(ctx context.Context, meta *metadata.ScriptMetadata, existing scripts.DependencyCache) scripts.DependencyCache {
	cache := make(scripts.DependencyCache, len(existing))
	for k, v := range existing {
		cache[k] = v
	}

	now := f.now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelFetches)

	for _, url := range dependencyURLs(meta) {
		if cached, ok := cache[url]; ok && !cached.Expired(now) {
			continue
		}
		url := url
		g.Go(func() error {
			dep, err := f.fetchDependency(gctx, url, now)
			if err != nil {
				f.metrics.RecordDependencyFetch("error")
				f.logger.Warn("Failed to fetch dependency",
					zap.String("url", url),
					zap.Error(err),
				)
				return nil
			}
			f.metrics.RecordDependencyFetch("ok")

			mu.Lock()
			cache[url] = dep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return cache
}

// Content returns the decompressed body of dep.
func (f *Fetcher) Content(dep scripts.Dependency) ([]byte, error) {
	body, err := f.decoder.DecodeAll(dep.Data, make([]byte, 0, dep.Size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return body, nil
}

// FetchScript downloads the script at url.
func (f *Fetcher) FetchScript(ctx context.Context, url string) (string, error) {
	body, _, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *Fetcher) fetchDependency(ctx context.Context, url string, now time.Time) (scripts.Dependency, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	if strings.HasPrefix(url, "data:") {
		body, contentType, err = decodeDataURL(url)
	} else {
		body, contentType, err = f.get(ctx, url)
	}
	if err != nil {
		return scripts.Dependency{}, err
	}

	return scripts.Dependency{
		URL:         url,
		ContentType: contentType,
		Size:        len(body),
		Data:        f.encoder.EncodeAll(body, nil),
		FetchedAt:   now,
		ExpiresAt:   now.Add(f.ttl),
	}, nil
}

type fetched struct {
	body        []byte
	contentType string
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	res, err := resilience.Do(f.breaker, func() (fetched, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fetched{}, err
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fetched{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fetched{}, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
		if err != nil {
			return fetched{}, err
		}
		if len(body) > MaxBodySize {
			return fetched{}, ErrTooLarge
		}
		return fetched{body: body, contentType: resp.Header.Get("Content-Type")}, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return res.body, res.contentType, nil
}

// dependencyURLs returns the unique @require and @resource URLs in order.
func dependencyURLs(meta *metadata.ScriptMetadata) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, u := range meta.Requires {
		add(u)
	}
	for _, r := range meta.Resources {
		add(r.URL)
	}
	return urls
}
