// Package extract parses item and restaurant pages into records.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
	"github.com/mvoronin/menusync/internal/textutil"
)

// ErrNotItemPage marks a page without the item content container.
var ErrNotItemPage = errors.New("not an item page")

// Nutrition labels used by the item pages.
const (
	labelCalories      = "Ккал"
	labelProteins      = "Белки"
	labelFats          = "Жиры"
	labelCarbohydrates = "Углеводы"
	labelWeight        = "Вес"
)

// Item parses dish pages. Extraction is best-effort: a missing optional
// field gets its placeholder, only a missing content container fails the
// page.
type Item struct {
	fetcher menu.Fetcher
	images  menu.ImageStore
	base    *url.URL
	logger  *zap.Logger
}

// NewItem builds an item extractor. baseURL is used to resolve relative
// image links.
func NewItem(baseURL string, fetcher menu.Fetcher, images menu.ImageStore, logger *zap.Logger) (*Item, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Item{
		fetcher: fetcher,
		images:  images,
		base:    base,
		logger:  logger,
	}, nil
}

// Extract fetches and parses one item page.
func (e *Item) Extract(ctx context.Context, pageURL, category string) (menu.MenuItem, error) {
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return menu.MenuItem{}, fmt.Errorf("fetch item page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return menu.MenuItem{}, fmt.Errorf("parse item html %s: %w", pageURL, err)
	}

	info := doc.Find("#itemInfo")
	if info.Length() == 0 {
		return menu.MenuItem{}, fmt.Errorf("%s: %w", pageURL, ErrNotItemPage)
	}

	item := menu.MenuItem{
		SKU:       e.extractSKU(doc, pageURL),
		Category:  category,
		Available: true,
	}

	item.Name = textOr(info.Find("h1.itemTitle"), menu.NoName)
	item.Description = textOr(info.Find("div.itemDesc"), menu.NoDescription)

	if price := info.Find("div.itemPrice"); price.Length() > 0 {
		item.Price = textutil.NormalizePrice(price.Text())
	} else {
		item.Price = menu.NoPrice
	}

	item.Nutrition = extractNutrition(info)
	item.Composition = textOr(info.Find("div.itemAboutCompositionContent p").First(), menu.NoComposition)
	item.Allergens = textOr(info.Find(`p[style="font-style: italic"]`).First(), menu.NoAllergenInfo)
	item.Timetable = textutil.CleanText(doc.Find("div.timeLabel").First().Text())

	imageURL := e.imageURL(doc)
	item.Image = e.images.EnsureImage(ctx, imageURL, category, item.Name)

	metrics.ObserveExtraction("menu_item")
	return item, nil
}

// extractSKU reads the numeric SKU from the JSON-LD product blob. Parse
// failures are logged and yield 0; the reconciler drops such items at the
// persistence boundary, not here.
func (e *Item) extractSKU(doc *goquery.Document, pageURL string) int {
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return 0
	}

	var product struct {
		Type string      `json:"@type"`
		SKU  json.Number `json:"sku"`
	}
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		e.logger.Warn("parse JSON-LD failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return 0
	}
	if product.Type != "Product" {
		return 0
	}
	sku, err := strconv.Atoi(product.SKU.String())
	if err != nil {
		e.logger.Warn("JSON-LD sku is not numeric",
			zap.String("url", pageURL),
			zap.String("sku", product.SKU.String()),
		)
		return 0
	}
	return sku
}

func extractNutrition(info *goquery.Selection) menu.Nutrition {
	values := make(map[string]string)
	info.Find("div.itemAboutValueContent div.itemStat").Each(func(_ int, stat *goquery.Selection) {
		keySel := stat.Find("span").First()
		if keySel.Length() == 0 {
			return
		}
		rawKey := keySel.Text()
		key := textutil.CleanText(rawKey)
		value := textutil.CleanText(strings.Replace(stat.Text(), rawKey, "", 1))
		if key != "" {
			values[key] = value
		}
	})

	return menu.Nutrition{
		Calories:      textutil.ParseCalories(values[labelCalories]),
		Proteins:      valueOr(values, labelProteins),
		Fats:          valueOr(values, labelFats),
		Carbohydrates: valueOr(values, labelCarbohydrates),
		Weight:        valueOr(values, labelWeight),
	}
}

// imageURL resolves the item photo with a two-tier fallback: the primary
// image slot, then the first carousel slide. SVG images are vector
// placeholders, not photos, and count as absent.
func (e *Item) imageURL(doc *goquery.Document) string {
	src := doc.Find(`#itemImage img[itemprop="contentUrl"]`).First().AttrOr("src", "")
	if src == "" {
		src = doc.Find(`#itemSlider div.itemSlide`).First().
			Find(`img[itemprop="contentUrl"]`).First().AttrOr("src", "")
	}
	if src == "" {
		return menu.NoImage
	}
	if strings.HasSuffix(strings.ToLower(src), ".svg") {
		return menu.NoImage
	}
	if !strings.HasPrefix(src, "http") {
		if ref, err := url.Parse(src); err == nil {
			return e.base.ResolveReference(ref).String()
		}
		return menu.NoImage
	}
	return src
}

func textOr(sel *goquery.Selection, fallback string) string {
	if sel.Length() == 0 {
		return fallback
	}
	text := textutil.CleanText(sel.Text())
	if text == "" {
		return fallback
	}
	return text
}

func valueOr(values map[string]string, key string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return menu.NoData
}
