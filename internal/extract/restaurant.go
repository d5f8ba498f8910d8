package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
	"github.com/mvoronin/menusync/internal/textutil"
)

// ErrNoStateBlob marks a restaurant page without the embedded JSON state.
var ErrNoStateBlob = errors.New("missing __NEXT_DATA__ blob")

// Selectors for the styled-components class names on restaurant pages.
// The hashes are stable for the current site build; the discoverer layer
// is where a redesign would surface first.
const (
	aboutContentSelector = "div.styles__AboutContent-sc-1q087s8-26.kcNVuQ"
	extraInfoSelector    = "div.styles__ExtraInfoItemText-sc-1q087s8-23.KvPwL"
	wineCardSelector     = `a.underline[rel="noopener noreferrer"]`
	viewMenuLabel        = "Смотреть меню"
)

// Restaurant parses restaurant pages: identity and most fields come from
// the embedded JSON state blob, the rest from DOM fragments.
type Restaurant struct {
	fetcher menu.Fetcher
	images  menu.ImageStore
	base    *url.URL
	logger  *zap.Logger
}

// NewRestaurant builds a restaurant extractor.
func NewRestaurant(baseURL string, fetcher menu.Fetcher, images menu.ImageStore, logger *zap.Logger) (*Restaurant, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Restaurant{
		fetcher: fetcher,
		images:  images,
		base:    base,
		logger:  logger,
	}, nil
}

type nextDataBlob struct {
	Props struct {
		PageProps struct {
			Restaurant struct {
				InnerID        json.Number     `json:"inner-id"`
				Title          string          `json:"title"`
				Address        string          `json:"address"`
				Metro          string          `json:"metro"`
				WorkingHours   []string        `json:"working-hours"`
				Phone          string          `json:"phone"`
				ChangingTables json.RawMessage `json:"changing-tables"`
			} `json:"restaurant"`
		} `json:"pageProps"`
	} `json:"props"`
}

// Extract fetches and parses one restaurant page. The returned record may
// lack an ID (empty string); the reconciler drops it at the persistence
// boundary with a warning.
func (e *Restaurant) Extract(ctx context.Context, pageURL string) (menu.Restaurant, error) {
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("fetch restaurant page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("parse restaurant html %s: %w", pageURL, err)
	}

	raw := doc.Find(`script#__NEXT_DATA__`).First().Text()
	if raw == "" {
		return menu.Restaurant{}, fmt.Errorf("%s: %w", pageURL, ErrNoStateBlob)
	}
	var blob nextDataBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return menu.Restaurant{}, fmt.Errorf("parse state blob %s: %w", pageURL, err)
	}
	state := blob.Props.PageProps.Restaurant

	rec := menu.Restaurant{
		ID:            state.InnerID.String(),
		Name:          textutil.CleanText(state.Title),
		Address:       state.Address,
		Metro:         state.Metro,
		WorkTime:      strings.Join(state.WorkingHours, ", "),
		Contacts:      state.Phone,
		ChangingTable: rawToDisplay(state.ChangingTables),
	}
	rec.Description = textOr(doc.Find(aboutContentSelector).First(), menu.NoDescription)

	extras := doc.Find(extraInfoSelector)
	rec.Veranda = extraAt(extras, 0, menu.NoVeranda)
	rec.Animation = extraAt(extras, 2, menu.NoAnimation)

	if wine := doc.Find(wineCardSelector).First(); wine.Length() > 0 {
		rec.WineCard = textutil.CleanText(wine.Text())
		rec.WineCardURL = wine.AttrOr("href", "")
	}

	rec.MenuURL = e.menuLink(doc)
	rec.Image = e.restaurantImage(ctx, doc, rec.Name)

	metrics.ObserveExtraction("restaurant")
	return rec, nil
}

func (e *Restaurant) menuLink(doc *goquery.Document) string {
	link := menu.NoMenu
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) != viewMenuLabel {
			return true
		}
		if href := a.AttrOr("href", ""); href != "" {
			link = href
			return false
		}
		return true
	})
	return link
}

func (e *Restaurant) restaurantImage(ctx context.Context, doc *goquery.Document, name string) string {
	src := doc.Find(`img[itemprop="contentUrl"]`).First().AttrOr("src", "")
	if src == "" {
		return menu.NoImage
	}
	if !strings.HasPrefix(src, "http") {
		ref, err := url.Parse(src)
		if err != nil {
			return menu.NoImage
		}
		src = e.base.ResolveReference(ref).String()
	}
	return e.images.EnsureImage(ctx, src, "", name)
}

func extraAt(extras *goquery.Selection, index int, fallback string) string {
	if extras.Length() <= index {
		return fallback
	}
	text := textutil.CleanText(extras.Eq(index).Text())
	if text == "" {
		return fallback
	}
	return text
}

// rawToDisplay renders a JSON value of unknown type (string, bool or
// number in practice) as a display string.
func rawToDisplay(raw json.RawMessage) string {
	if len(raw) == 0 {
		return menu.NoData
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return menu.NoData
		}
		return s
	}
	return string(raw)
}
