package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when a request sets none.
const DefaultUserAgent = "scriptgate/1.0"

// DefaultMaxRedirects bounds redirect chains.
const DefaultMaxRedirects = 10

// ErrRedirectBlocked wraps the RedirectCheck error that stopped a redirect.
var ErrRedirectBlocked = errors.New("redirect blocked")

// RedirectCheck approves each redirect target before it is requested.
type RedirectCheck func(url string) error

type redirectCheckKey struct{}

// WithRedirectCheck attaches check to ctx.
func WithRedirectCheck(ctx context.Context, check RedirectCheck) context.Context {
	return context.WithValue(ctx, redirectCheckKey{}, check)
}

func redirectCheckFrom(ctx context.Context) RedirectCheck {
	check, _ := ctx.Value(redirectCheckKey{}).(RedirectCheck)
	return check
}

// Config configures a Client.
type Config struct {
	UserAgent    string
	RateLimit    float64 // requests per second, <= 0 is unlimited
	MaxRedirects int
	DialTimeout  time.Duration

	// AddressCheck, when set, approves every resolved address before it is
	// dialed. Resolver defaults to net.DefaultResolver.
	AddressCheck AddressCheck
	Resolver     Resolver
}

// Request is one outbound request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response carries the status and the unread body. Callers must close Body.
type Response struct {
	Status        int
	StatusText    string
	FinalURL      string
	Header        http.Header
	ContentLength int64 // -1 when unknown
	Body          io.ReadCloser
}

// Client wraps resty with rate limiting
type Client struct {
	resty        *resty.Client
	limiter      *rate.Limiter
	maxRedirects int
	mu           sync.RWMutex
}

// NewClient creates the fetch client.
func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	// Borrow retryablehttp's pooled transport; retries stay off.
	transport := retryablehttp.NewClient().HTTPClient.Transport
	if cfg.AddressCheck != nil {
		transport = NewGuardedTransport(cfg.AddressCheck, cfg.Resolver, cfg.DialTimeout)
	}

	c := &Client{maxRedirects: cfg.MaxRedirects}
	c.resty = resty.New().
		SetTransport(transport).
		SetCookieJar(nil).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(c.checkRedirect))
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
	}
	if check := redirectCheckFrom(req.Context()); check != nil {
		if err := check(req.URL.String()); err != nil {
			return fmt.Errorf("%w: %w", ErrRedirectBlocked, err)
		}
	}
	return nil
}

// Do sends req. The body is returned unread; ctx cancellation aborts both
// the request and reads of the body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	r := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(req.Headers)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, err
	}

	raw := resp.RawResponse
	return &Response{
		Status:        raw.StatusCode,
		StatusText:    statusText(raw),
		FinalURL:      raw.Request.URL.String(),
		Header:        raw.Header,
		ContentLength: raw.ContentLength,
		Body:          raw.Body,
	}, nil
}

func statusText(resp *http.Response) string {
	// resp.Status is "200 OK"; keep only the reason phrase.
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
