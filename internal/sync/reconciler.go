package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
)

// ErrSyncRunning is returned when a run is requested while another run
// holds the reconciler. Runs never overlap; the caller retries on the
// next scheduler tick.
var ErrSyncRunning = errors.New("sync already running")

// Config wires the reconciler to the site and the event topic.
type Config struct {
	ListingURL     string
	RestaurantsURL string
	Concurrency    int
	Topic          string
}

// Reconciler drives full sync runs: discover, extract concurrently,
// upsert, delete stale rows, publish a completion event.
type Reconciler struct {
	cfg Config

	listing     menu.ListingDiscoverer
	restaurants menu.RestaurantDiscoverer
	items       menu.ItemExtractor
	restaurant  menu.RestaurantExtractor
	menuStore   menu.MenuStore
	restStore   menu.RestaurantStore
	publisher   menu.Publisher
	logger      *zap.Logger

	running stdsync.Mutex
}

// New builds a reconciler. publisher may be nil when event delivery is
// not configured.
func New(
	cfg Config,
	listing menu.ListingDiscoverer,
	restaurants menu.RestaurantDiscoverer,
	items menu.ItemExtractor,
	restaurant menu.RestaurantExtractor,
	menuStore menu.MenuStore,
	restStore menu.RestaurantStore,
	publisher menu.Publisher,
	logger *zap.Logger,
) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Reconciler{
		cfg:         cfg,
		listing:     listing,
		restaurants: restaurants,
		items:       items,
		restaurant:  restaurant,
		menuStore:   menuStore,
		restStore:   restStore,
		publisher:   publisher,
		logger:      logger,
	}
}

type itemResult struct {
	item menu.MenuItem
	url  string
	err  error
}

// RunSync performs one full menu reconciliation pass.
func (r *Reconciler) RunSync(ctx context.Context) (menu.SyncResult, error) {
	if !r.running.TryLock() {
		return menu.SyncResult{}, ErrSyncRunning
	}
	defer r.running.Unlock()

	start := time.Now()
	result := menu.SyncResult{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", result.RunID))
	logger.Info("menu sync started", zap.String("listing", r.cfg.ListingURL))

	categories, err := r.listing.Discover(ctx, r.cfg.ListingURL)
	if err != nil {
		metrics.ObserveSyncRun("menu", "error", time.Since(start))
		return result, fmt.Errorf("discover menu listing: %w", err)
	}

	items, failed := r.extractItems(ctx, logger, categories)
	result.Failed = failed

	kept, seenSKUs := r.dropUnidentified(logger, items)

	result.Updated, err = r.menuStore.UpsertMenuItems(ctx, kept)
	if err != nil {
		metrics.ObserveSyncRun("menu", "error", time.Since(start))
		return result, fmt.Errorf("upsert menu items: %w", err)
	}

	discovered := make([]string, 0, len(categories))
	for category := range categories {
		discovered = append(discovered, category)
	}
	result.DeletedCategories, err = r.menuStore.DeleteCategoriesNotIn(ctx, discovered)
	if err != nil {
		metrics.ObserveSyncRun("menu", "error", time.Since(start))
		return result, fmt.Errorf("delete stale categories: %w", err)
	}
	metrics.ObserveRowsDeleted("stale_category", result.DeletedCategories)

	for _, category := range discovered {
		deleted, delErr := r.deleteStaleItems(ctx, logger, category, seenSKUs[category])
		if delErr != nil {
			metrics.ObserveSyncRun("menu", "error", time.Since(start))
			return result, delErr
		}
		result.DeletedItems += deleted
	}
	metrics.ObserveRowsDeleted("stale_item", result.DeletedItems)

	r.publish(ctx, logger, "menu", result)
	metrics.ObserveSyncRun("menu", "ok", time.Since(start))
	logger.Info("menu sync finished",
		zap.Int("updated", result.Updated),
		zap.Int64("deleted_categories", result.DeletedCategories),
		zap.Int64("deleted_items", result.DeletedItems),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// extractItems fans item pages out through the gate and collects what
// survives. A failed or panicking page costs one failure, never the run.
func (r *Reconciler) extractItems(ctx context.Context, logger *zap.Logger, categories map[string][]string) ([]menu.MenuItem, int) {
	total := 0
	for _, links := range categories {
		total += len(links)
	}

	gate := NewGate(r.cfg.Concurrency)
	results := make(chan itemResult, total)
	var wg stdsync.WaitGroup

	for category, links := range categories {
		for _, link := range links {
			wg.Add(1)
			go func(category, link string) {
				defer wg.Done()
				defer func() {
					if p := recover(); p != nil {
						results <- itemResult{url: link, err: fmt.Errorf("extract panicked: %v", p)}
					}
				}()

				release, err := gate.Acquire(ctx)
				if err != nil {
					results <- itemResult{url: link, err: err}
					return
				}
				defer release()

				metrics.IncInflightExtractions()
				defer metrics.DecInflightExtractions()

				item, err := r.items.Extract(ctx, link, category)
				results <- itemResult{item: item, url: link, err: err}
			}(category, link)
		}
	}
	wg.Wait()
	close(results)

	var items []menu.MenuItem
	failed := 0
	for res := range results {
		if res.err != nil {
			failed++
			logger.Warn("item page skipped",
				zap.String("url", res.url),
				zap.Error(res.err),
			)
			continue
		}
		items = append(items, res.item)
	}
	return items, failed
}

// dropUnidentified removes items without a SKU and indexes the rest by
// category for the stale-item deletes.
func (r *Reconciler) dropUnidentified(logger *zap.Logger, items []menu.MenuItem) ([]menu.MenuItem, map[string][]int) {
	kept := make([]menu.MenuItem, 0, len(items))
	seen := make(map[string][]int)
	for _, item := range items {
		if item.SKU == 0 {
			logger.Warn("dropping item without SKU",
				zap.String("category", item.Category),
				zap.String("name", item.Name),
			)
			continue
		}
		kept = append(kept, item)
		seen[item.Category] = append(seen[item.Category], item.SKU)
	}
	return kept, seen
}

// deleteStaleItems applies the per-category deletion policy. A category
// that yielded no identifiable items this run is wiped wholesale: the
// policy trusts the current run over history, so a fully failed category
// loses its rows until the next successful pass.
func (r *Reconciler) deleteStaleItems(ctx context.Context, logger *zap.Logger, category string, skus []int) (int64, error) {
	if len(skus) == 0 {
		deleted, err := r.menuStore.DeleteCategory(ctx, category)
		if err != nil {
			return 0, fmt.Errorf("delete emptied category: %w", err)
		}
		logger.Warn("category yielded no items, deleting all its rows",
			zap.String("category", category),
			zap.Int64("deleted", deleted),
		)
		return deleted, nil
	}
	deleted, err := r.menuStore.DeleteItemsNotIn(ctx, category, skus)
	if err != nil {
		return 0, fmt.Errorf("delete stale items: %w", err)
	}
	return deleted, nil
}

type restaurantResult struct {
	rec menu.Restaurant
	url string
	err error
}

// RunRestaurantSync performs one restaurant reconciliation pass.
// Restaurants are upsert-only; absent locations are never deleted.
func (r *Reconciler) RunRestaurantSync(ctx context.Context) (menu.RestaurantSyncResult, error) {
	if !r.running.TryLock() {
		return menu.RestaurantSyncResult{}, ErrSyncRunning
	}
	defer r.running.Unlock()

	start := time.Now()
	result := menu.RestaurantSyncResult{
		RunID: uuid.NewString(),
		Links: make(map[string]menu.RestaurantLinks),
	}
	logger := r.logger.With(zap.String("run_id", result.RunID))
	logger.Info("restaurant sync started", zap.String("list", r.cfg.RestaurantsURL))

	pages, err := r.restaurants.Discover(ctx, r.cfg.RestaurantsURL)
	if err != nil {
		metrics.ObserveSyncRun("restaurants", "error", time.Since(start))
		return result, fmt.Errorf("discover restaurant list: %w", err)
	}

	records, failed := r.extractRestaurants(ctx, logger, pages)
	result.Failed = failed

	kept := make([]menu.Restaurant, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			logger.Warn("dropping restaurant without id",
				zap.String("name", rec.Name),
			)
			continue
		}
		kept = append(kept, rec)
		result.Links[rec.ID] = menu.RestaurantLinks{
			MenuURL:     rec.MenuURL,
			WineCardURL: rec.WineCardURL,
		}
	}

	result.Updated, err = r.restStore.UpsertRestaurants(ctx, kept)
	if err != nil {
		metrics.ObserveSyncRun("restaurants", "error", time.Since(start))
		return result, fmt.Errorf("upsert restaurants: %w", err)
	}

	r.publish(ctx, logger, "restaurants", result)
	metrics.ObserveSyncRun("restaurants", "ok", time.Since(start))
	logger.Info("restaurant sync finished",
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

func (r *Reconciler) extractRestaurants(ctx context.Context, logger *zap.Logger, pages map[string]string) ([]menu.Restaurant, int) {
	gate := NewGate(r.cfg.Concurrency)
	results := make(chan restaurantResult, len(pages))
	var wg stdsync.WaitGroup

	for name, link := range pages {
		wg.Add(1)
		go func(name, link string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					results <- restaurantResult{url: link, err: fmt.Errorf("extract panicked: %v", p)}
				}
			}()

			release, err := gate.Acquire(ctx)
			if err != nil {
				results <- restaurantResult{url: link, err: err}
				return
			}
			defer release()

			metrics.IncInflightExtractions()
			defer metrics.DecInflightExtractions()

			rec, err := r.restaurant.Extract(ctx, link)
			if err == nil {
				// The listing name is canonical; page titles drift.
				rec.Name = name
			}
			results <- restaurantResult{rec: rec, url: link, err: err}
		}(name, link)
	}
	wg.Wait()
	close(results)

	var records []menu.Restaurant
	failed := 0
	for res := range results {
		if res.err != nil {
			failed++
			logger.Warn("restaurant page skipped",
				zap.String("url", res.url),
				zap.Error(res.err),
			)
			continue
		}
		records = append(records, res.rec)
	}
	return records, failed
}

// Links scrapes the restaurant pages and returns the per-restaurant menu
// and wine-card URLs. Link data is computed per call, never persisted.
func (r *Reconciler) Links(ctx context.Context) (map[string]menu.RestaurantLinks, error) {
	result, err := r.RunRestaurantSync(ctx)
	if err != nil {
		return nil, err
	}
	return result.Links, nil
}

func (r *Reconciler) publish(ctx context.Context, logger *zap.Logger, kind string, payload any) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish sync event failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}
	logger.Debug("sync event published",
		zap.String("kind", kind),
		zap.String("message_id", id),
	)
}
