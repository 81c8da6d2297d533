package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"forum/crawler/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Client fetches a URL with timeout, rotation and retry applied.
type Client interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
	Close() error
}

type Request struct {
	URL     string
	Headers map[string]string
}

type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the Content-Type header of the response.
func (r *Response) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	UserAgents        []string
	RequestsPerSecond int // 0 disables pacing
	Referer           string
}

type rateLimitedClient struct {
	rl            ratelimit.Limiter
	opts          Options
	proxySupplier proxy.Supplier

	uaCursor atomic.Uint64

	// one resty client per proxy: SetProxy mutates the client, so attempts
	// through different proxies must never share one
	mu      sync.Mutex
	clients map[string]*resty.Client
}

// New builds the rate limited client. A nil supplier means direct connections.
func New(opts Options, proxySupplier proxy.Supplier) Client {
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{defaultUserAgent}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	rl := ratelimit.NewUnlimited()
	if opts.RequestsPerSecond > 0 {
		rl = ratelimit.New(opts.RequestsPerSecond)
	}

	if proxySupplier == nil {
		proxySupplier = proxy.NewStaticSupplier(nil)
	}

	return &rateLimitedClient{
		rl:            rl,
		opts:          opts,
		proxySupplier: proxySupplier,
		clients:       make(map[string]*resty.Client),
	}
}

// Fetch runs the attempt state machine: each failed transient attempt schedules
// the next one after RetryDelay * attempt number. Cancellation is only observed
// while waiting between attempts, never in the middle of one.
func (c *rateLimitedClient) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, &FetchError{Kind: KindInvalidRequest, URL: req.URL, Attempts: 0, Err: err}
	}

	attempt := &Attempt{URL: req.URL}
	for {
		attempt.Begin()

		resp, fetchErr := c.do(ctx, req)
		if fetchErr == nil {
			attempt.Succeed(resp.StatusCode)
			return resp, nil
		}
		fetchErr.Attempts = attempt.Number
		attempt.Fail(fetchErr)

		if !fetchErr.Transient() || attempt.Number > c.opts.MaxRetries {
			return nil, fetchErr
		}

		delay := attempt.ScheduleRetry(c.opts.RetryDelay)
		log.WithFields(log.Fields{
			"url":     req.URL,
			"attempt": attempt.Number,
			"delay":   delay,
		}).Warnf("🔄 Request failed, retrying: %v", fetchErr)

		if err := wait(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry of %s stopped after %d attempt(s): %w", req.URL, attempt.Number, err)
		}
	}
}

func (c *rateLimitedClient) do(ctx context.Context, req Request) (*Response, *FetchError) {
	c.rl.Take()

	proxyURL := c.proxySupplier.Get()
	httpClient := c.clientFor(proxyURL)

	// in-flight requests are allowed to finish after the session is stopped
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	defer cancel()

	r := httpClient.R().
		SetContext(reqCtx).
		SetHeader("User-Agent", c.nextUserAgent())
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		return nil, classifyTransportError(req.URL, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		log.Debugf("HTTP %d for %s via proxy %q", resp.StatusCode(), req.URL, proxyURL)
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        req.URL,
			LastStatus: resp.StatusCode(),
			Err:        fmt.Errorf("HTTP error: %s", resp.Status()),
		}
	}

	return &Response{
		URL:        req.URL,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Bytes(),
	}, nil
}

func (c *rateLimitedClient) clientFor(proxyURL string) *resty.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[proxyURL]; ok {
		return client
	}

	client := resty.New().
		SetTimeout(c.opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8").
		SetHeader("Accept-Language", "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2")
	if c.opts.Referer != "" {
		client.SetHeader("Referer", c.opts.Referer)
	}
	if proxyURL != "" {
		client.SetProxy(proxyURL)
		log.Infof("🔗 Using proxy: %s", proxyURL)
	}

	c.clients[proxyURL] = client
	return client
}

func (c *rateLimitedClient) nextUserAgent() string {
	n := c.uaCursor.Add(1) - 1
	return c.opts.UserAgents[n%uint64(len(c.opts.UserAgents))]
}

func (c *rateLimitedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, client := range c.clients {
		if err := client.Close(); err != nil {
			log.Warnf("Failed to close HTTP client for proxy %q: %v", key, err)
		}
		delete(c.clients, key)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
