package menu

import "context"

// Fetcher retrieves a single page body. Implementations retry internally;
// an error means the page stayed unavailable after all attempts.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageStore resolves a remote image URL to a local reference. It never
// fails: on any error it returns the remote URL (or the NoImage
// placeholder) so the owning record can still be persisted.
type ImageStore interface {
	EnsureImage(ctx context.Context, remoteURL, group, name string) string
}

// ListingDiscoverer expands the menu listing page and returns
// category -> absolute item page URLs. Categories with no links are
// omitted.
type ListingDiscoverer interface {
	Discover(ctx context.Context, listingURL string) (map[string][]string, error)
}

// RestaurantDiscoverer returns restaurant name -> absolute page URL from
// the static restaurant listing.
type RestaurantDiscoverer interface {
	Discover(ctx context.Context, listURL string) (map[string]string, error)
}

// ItemExtractor parses one item page into a MenuItem.
type ItemExtractor interface {
	Extract(ctx context.Context, url, category string) (MenuItem, error)
}

// RestaurantExtractor parses one restaurant page into a Restaurant.
type RestaurantExtractor interface {
	Extract(ctx context.Context, url string) (Restaurant, error)
}

// MenuStore persists menu rows keyed by (sku, category).
type MenuStore interface {
	UpsertMenuItems(ctx context.Context, items []MenuItem) (int, error)
	DeleteCategoriesNotIn(ctx context.Context, categories []string) (int64, error)
	DeleteItemsNotIn(ctx context.Context, category string, skus []int) (int64, error)
	DeleteCategory(ctx context.Context, category string) (int64, error)
}

// RestaurantStore persists restaurant rows keyed by restaurant id.
type RestaurantStore interface {
	UpsertRestaurants(ctx context.Context, restaurants []Restaurant) (int, error)
}

// Publisher pushes sync completion events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
