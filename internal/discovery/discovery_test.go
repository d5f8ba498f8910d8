package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const listingHTML = `
<html><body>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-title=" Десерты ">
  <a href="/menu/ekler">Эклер</a>
  <a href="/menu/tart">Тарт</a>
  <a href="/menu/tart">Тарт (дубль)</a>
  <a href="https://coffeemania.ru/menu/medovik">Медовик</a>
  <a href="/about">Про нас</a>
</div>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-title="Пустая">
  <a href="/about">не блюдо</a>
</div>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer">
  <a href="/menu/soup">Суп</a>
</div>
</body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()

	categories, err := ParseListing(listingHTML, "https://coffeemania.ru")
	require.NoError(t, err)

	require.Len(t, categories, 2)

	desserts := categories["Десерты"]
	require.Equal(t, []string{
		"https://coffeemania.ru/menu/ekler",
		"https://coffeemania.ru/menu/medovik",
		"https://coffeemania.ru/menu/tart",
	}, desserts)

	// A container without data-title falls back to the placeholder name.
	require.Contains(t, categories, "Неизвестная категория")

	// Categories with no item links are omitted entirely.
	require.NotContains(t, categories, "Пустая")
}

func TestParseListingRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := ParseListing(listingHTML, "://not-a-url")
	require.Error(t, err)
}

const restaurantListHTML = `
<html><body>
<a class="image-side" href="/restaurants/lubyanka"><img title="Кофемания Лубянка" src="/img/1.jpg"></a>
<a class="image-side" href="https://coffeemania.ru/restaurants/arbat"><img title="Кофемания Арбат" src="/img/2.jpg"></a>
<a class="image-side" href="/restaurants/chefs"><img title="Кофемания Chef's" src="/img/3.jpg"></a>
<a class="image-side" href="/restaurants/phantom"><img src="/img/4.jpg"></a>
</body></html>`

func TestParseRestaurantList(t *testing.T) {
	t.Parallel()

	got, err := ParseRestaurantList([]byte(restaurantListHTML), "https://coffeemania.ru", []string{"Кофемания Chef's"})
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"Кофемания Лубянка": "https://coffeemania.ru/restaurants/lubyanka",
		"Кофемания Арбат":   "https://coffeemania.ru/restaurants/arbat",
	}, got)
}

type staticFetcher struct {
	body []byte
}

func (s *staticFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return s.body, nil
}

func TestRestaurantListDiscover(t *testing.T) {
	t.Parallel()

	d := NewRestaurantList(
		RestaurantListConfig{BaseURL: "https://coffeemania.ru"},
		&staticFetcher{body: []byte(restaurantListHTML)},
		zap.NewNop(),
	)
	got, err := d.Discover(context.Background(), "https://coffeemania.ru/restaurants")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Contains(t, got, "Кофемания Chef's")
}
