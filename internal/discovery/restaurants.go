package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
)

// RestaurantListConfig controls the static restaurant-list discoverer.
type RestaurantListConfig struct {
	BaseURL string
	// Exclude lists restaurant names skipped during discovery (locations
	// whose pages do not follow the standard layout).
	Exclude []string
}

// RestaurantList discovers restaurant pages from the server-rendered
// listing. No browser is needed: the list is present in the initial HTML.
type RestaurantList struct {
	cfg     RestaurantListConfig
	fetcher menu.Fetcher
	logger  *zap.Logger
}

// NewRestaurantList builds a RestaurantList discoverer.
func NewRestaurantList(cfg RestaurantListConfig, fetcher menu.Fetcher, logger *zap.Logger) *RestaurantList {
	return &RestaurantList{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Discover returns restaurant name -> absolute page URL.
func (d *RestaurantList) Discover(ctx context.Context, listURL string) (map[string]string, error) {
	body, err := d.fetcher.Fetch(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch restaurant list: %w", err)
	}
	restaurants, err := ParseRestaurantList(body, d.cfg.BaseURL, d.cfg.Exclude)
	if err != nil {
		return nil, err
	}
	d.logger.Info("restaurant list discovered",
		zap.String("url", listURL),
		zap.Int("restaurants", len(restaurants)),
	)
	return restaurants, nil
}

// ParseRestaurantList extracts name -> URL pairs from the listing HTML.
// Each restaurant card is an anchor with class image-side whose img tag
// carries the display name in its title attribute.
func ParseRestaurantList(html []byte, baseURL string, exclude []string) (map[string]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse restaurant list html: %w", err)
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	restaurants := make(map[string]string)
	doc.Find("a.image-side").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Find("img").AttrOr("title", ""))
		href := a.AttrOr("href", "")
		if name == "" || href == "" {
			return
		}
		if _, skip := excluded[name]; skip {
			return
		}
		abs := resolveURL(base, href)
		if abs == "" {
			return
		}
		restaurants[name] = abs
	})

	return restaurants, nil
}
