// Package menu defines core types shared across the sync pipeline.
package menu

// Placeholder values written to storage when the source page omits a field.
// They are kept in the site's language because the chat front end renders
// them to users verbatim.
const (
	NoImage        = "Нет фото"
	NoName         = "Нет названия"
	NoDescription  = "Нет описания"
	NoPrice        = "Нет цены"
	NoComposition  = "Нет состава"
	NoAllergenInfo = "Нет информации"
	NoData         = "Нет данных"
	NoMenu         = "Нет меню"
	NoVeranda      = "Без летней веранды"
	NoAnimation    = "Без детской анимации"
)

// Nutrition carries the per-item nutrition facts. Calories is the only
// numeric field; the rest are display strings copied from the page.
type Nutrition struct {
	Calories      int    `json:"calories"`
	Proteins      string `json:"proteins"`
	Fats          string `json:"fats"`
	Carbohydrates string `json:"carbohydrates"`
	Weight        string `json:"weight"`
}

// MenuItem is one dish scraped from an item page. Identity is
// (SKU, Category); items with SKU == 0 cannot be reconciled and are
// dropped before persistence.
type MenuItem struct {
	SKU         int       `json:"sku"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Price       string    `json:"price"`
	Description string    `json:"description"`
	Nutrition   Nutrition `json:"nutrition"`
	Composition string    `json:"composition"`
	Allergens   string    `json:"allergens"`
	Image       string    `json:"image"`
	Available   bool      `json:"available"`
	Timetable   string    `json:"timetable"`
}

// Restaurant is one location scraped from a restaurant page. Identity is
// the ID embedded in the page's JSON state blob; records without it are
// dropped before persistence. Amenity fields are display strings, not
// booleans, because the source renders them as labels.
type Restaurant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Image         string `json:"image"`
	Metro         string `json:"metro"`
	Description   string `json:"description"`
	Veranda       string `json:"veranda"`
	ChangingTable string `json:"changing_table"`
	Animation     string `json:"animation"`
	WorkTime      string `json:"work_time"`
	Contacts      string `json:"contacts"`
	WineCard      string `json:"wine_card"`
	WineCardURL   string `json:"wine_card_url"`
	MenuURL       string `json:"menu_url"`
}

// RestaurantLinks are the per-restaurant menu and wine-card URLs. They are
// computed and returned by the reconciler but never persisted.
type RestaurantLinks struct {
	MenuURL     string `json:"menu_url"`
	WineCardURL string `json:"wine_card_url"`
}

// SyncResult summarizes one menu sync run. Deleted counts are rows
// removed, not distinct keys.
type SyncResult struct {
	RunID             string `json:"run_id"`
	Updated           int    `json:"updated"`
	DeletedCategories int64  `json:"deleted_categories"`
	DeletedItems      int64  `json:"deleted_items"`
	Failed            int    `json:"failed"`
}

// RestaurantSyncResult summarizes one restaurant sync run.
type RestaurantSyncResult struct {
	RunID   string                     `json:"run_id"`
	Updated int                        `json:"updated"`
	Failed  int                        `json:"failed"`
	Links   map[string]RestaurantLinks `json:"links"`
}
