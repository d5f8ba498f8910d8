package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://coffeemania.ru/menu/latte", "coffeemania.ru"},
		{"coffeemania.ru", "coffeemania.ru"},
		{"http://Example.COM/path", "example.com"},
		{"http://", "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeSite(tt.in))
	}
}

func TestObserversDoNotPanicAfterInit(t *testing.T) {
	Init()
	Init()

	ObserveFetch("https://coffeemania.ru/menu", "ok", 1024)
	ObserveExtraction("menu_item")
	ObserveSyncRun("menu", "ok", 3*time.Second)
	ObserveRowsDeleted("stale_sku", 4)
	ObserveRowsDeleted("stale_sku", 0)
	ObserveImage("hit")
	IncInflightExtractions()
	DecInflightExtractions()
}
