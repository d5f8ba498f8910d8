package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ListingConfig controls the headless listing discoverer.
type ListingConfig struct {
	BaseURL     string
	UserAgent   string
	ScrollPause time.Duration
	MaxScrolls  int
	NavTimeout  time.Duration
}

// Listing discovers menu categories by loading the listing page in
// headless Chrome and scrolling until its height stabilizes. The listing
// reveals items through infinite scroll, so a plain GET sees only the
// first screenful.
type Listing struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	cfg             ListingConfig
	logger          *zap.Logger
}

// NewListing starts a headless browser for listing discovery.
func NewListing(cfg ListingConfig, logger *zap.Logger) (*Listing, error) {
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 20
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Listing{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		cfg:             cfg,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (l *Listing) Close() {
	if l == nil {
		return
	}
	l.browserCancel()
	l.allocatorCancel()
}

// Discover loads the listing page, expands it by scrolling and parses
// the category -> item link map out of the resulting DOM.
func (l *Listing) Discover(ctx context.Context, listingURL string) (map[string][]string, error) {
	tabCtx, cancelTab := chromedp.NewContext(l.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, l.cfg.NavTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(l.cfg.UserAgent),
		chromedp.Navigate(listingURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("navigate listing: %w", err)
	}

	if err := l.scrollToBottom(taskCtx); err != nil {
		return nil, fmt.Errorf("expand listing: %w", err)
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("snapshot listing dom: %w", err)
	}

	categories, err := ParseListing(html, l.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	l.logger.Info("listing discovered",
		zap.String("url", listingURL),
		zap.Int("categories", len(categories)),
	)
	return categories, nil
}

// scrollToBottom keeps scrolling until the document height stops growing
// or the scroll cap is reached.
func (l *Listing) scrollToBottom(ctx context.Context) error {
	var lastHeight int64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &lastHeight)); err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}

	for scrolls := 0; scrolls < l.cfg.MaxScrolls; scrolls++ {
		tasks := chromedp.Tasks{
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		}
		if l.cfg.ScrollPause > 0 {
			tasks = append(tasks, chromedp.Sleep(l.cfg.ScrollPause))
		}
		var newHeight int64
		tasks = append(tasks, chromedp.Evaluate(`document.body.scrollHeight`, &newHeight))
		if err := chromedp.Run(ctx, tasks); err != nil {
			return fmt.Errorf("scroll iteration: %w", err)
		}
		if newHeight == lastHeight {
			return nil
		}
		lastHeight = newHeight
	}

	l.logger.Info("scroll cap reached", zap.Int("max_scrolls", l.cfg.MaxScrolls))
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
