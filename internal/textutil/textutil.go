// Package textutil provides the pure text and value normalizers used by
// the extractors.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	rubleSpacing     = regexp.MustCompile(`\s*₽`)
	digitRun         = regexp.MustCompile(`\d+`)
	unsafeFileRunes  = regexp.MustCompile(`[^\pL\pN _-]+`)
	trailingFileJunk = regexp.MustCompile(`^\s+|\s+$`)
)

// CleanText replaces non-breaking spaces, collapses whitespace runs into a
// single space and trims the result.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, " ", " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizePrice cleans a raw price string and enforces a single space
// before the currency symbol: "1 250₽" -> "1 250 ₽".
func NormalizePrice(raw string) string {
	raw = CleanText(raw)
	return rubleSpacing.ReplaceAllString(raw, " ₽")
}

// ParseCalories converts a calorie label to an integer. Direct parses win;
// otherwise the first embedded digit run is used ("≈250 ккал" -> 250).
// Strings without digits yield 0.
func ParseCalories(s string) int {
	s = CleanText(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if m := digitRun.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 0
}

// SafeFileName strips a display name down to letters, digits, spaces,
// underscores and hyphens so it can be used as an image filename.
func SafeFileName(name string) string {
	name = unsafeFileRunes.ReplaceAllString(name, "")
	return trailingFileJunk.ReplaceAllString(name, "")
}
