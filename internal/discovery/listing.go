// Package discovery finds the pages the extractors will scrape: the
// browser-expanded menu listing and the static restaurant listing.
package discovery

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	categorySelector = ".deliveryCategoryBlockWrapper.deliveryCategoryContainer"
	itemPathMarker   = "/menu/"
	unknownCategory  = "Неизвестная категория"
)

// ParseListing extracts category -> item page URLs from the fully
// expanded listing DOM. Relative hrefs are resolved against baseURL,
// duplicates are dropped, and categories without links are omitted.
func ParseListing(html, baseURL string) (map[string][]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	categories := make(map[string][]string)
	doc.Find(categorySelector).Each(func(_ int, container *goquery.Selection) {
		title := strings.TrimSpace(container.AttrOr("data-title", unknownCategory))

		seen := make(map[string]struct{})
		var links []string
		container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := a.AttrOr("href", "")
			if !strings.Contains(href, itemPathMarker) {
				return
			}
			abs := resolveURL(base, href)
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})

		if len(links) > 0 {
			sort.Strings(links)
			categories[title] = links
		}
	})

	return categories, nil
}

func resolveURL(base *url.URL, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
