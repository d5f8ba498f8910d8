// Package fetcher implements the rate-limited, retrying page fetcher
// using the Colly collector.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mvoronin/menusync/internal/metrics"
)

// ErrUnavailable marks a page that stayed unreachable after all retries.
// Callers treat it as "skip this page", never as a batch failure.
var ErrUnavailable = errors.New("page unavailable")

// Config controls fetch behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration // per request, default 10s
	MaxRetries int           // attempts per URL, default 3
	DelayMin   time.Duration // politeness jitter lower bound
	DelayMax   time.Duration // politeness jitter upper bound
	HostQPS    float64       // 0 disables the per-host limiter
}

// Fetcher issues single GET requests through a cloned Colly collector.
// It owns no shared mutable state beyond the per-host limiters; callers
// bound in-flight requests with their own gate.
type Fetcher struct {
	cfg          Config
	logger       *zap.Logger
	base         *colly.Collector
	hostLimiters sync.Map
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	// Synchronous is the collector default; colly v2.1.0's Async option
	// ignores its argument and always enables async, so it must not be
	// passed here.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:    cfg,
		logger: logger,
		base:   c,
	}
}

// Fetch GETs the URL, retrying up to MaxRetries attempts. Each attempt is
// preceded by a uniform random politeness delay. A nil error guarantees a
// 200 response body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.pause(ctx); err != nil {
			return nil, err
		}
		if err := f.waitHostBudget(ctx, rawURL); err != nil {
			return nil, err
		}

		body, status, err := f.get(ctx, rawURL)
		switch {
		case err == nil && status == http.StatusOK:
			metrics.ObserveFetch(rawURL, "ok", len(body))
			return body, nil
		case err == nil:
			lastErr = fmt.Errorf("unexpected status %d", status)
			f.logger.Error("fetch returned non-200 status",
				zap.String("url", rawURL),
				zap.Int("status_code", status),
				zap.Int("attempt", attempt),
			)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		default:
			lastErr = err
			f.logger.Error("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		metrics.ObserveFetch(rawURL, "retry", 0)
	}

	metrics.ObserveFetch(rawURL, "failed", 0)
	return nil, fmt.Errorf("fetch %s after %d attempts: %w (last error: %v)",
		rawURL, f.cfg.MaxRetries, ErrUnavailable, lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.AllowURLRevisit = true

	var (
		body   []byte
		status int
		cbErr  error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		cbErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if cbErr != nil && status > 0 && status != http.StatusOK {
			// Colly reports non-2xx statuses through OnError; surface them
			// as a status, not a transport failure, so the retry log names
			// the code.
			return nil, status, nil
		}
		if err != nil {
			return nil, status, fmt.Errorf("visit: %w", err)
		}
		if cbErr != nil {
			return nil, status, fmt.Errorf("response: %w", cbErr)
		}
		return body, status, nil
	}
}

func (f *Fetcher) pause(ctx context.Context) error {
	delay := f.cfg.DelayMin
	if jitterRange := f.cfg.DelayMax - f.cfg.DelayMin; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(int64(jitterRange)))
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness pause: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) waitHostBudget(ctx context.Context, rawURL string) error {
	if f.cfg.HostQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse fetch url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := f.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.HostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait host limiter: %w", err)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
