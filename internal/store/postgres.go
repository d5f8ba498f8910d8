// Package store provides Postgres-backed persistence for menu and
// restaurant rows.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvoronin/menusync/internal/menu"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of pgxpool.Pool the store uses. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
	Close()
}

// Store persists menu items and restaurants. One statement per row for
// upserts, batched on a single round trip; deletes are single statements.
type Store struct {
	db DB
}

// New connects a pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB constructs a store from an existing pool (primarily for testing).
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

const upsertMenuItemSQL = `
INSERT INTO menu_items (
	id,
	category,
	name,
	price,
	calories,
	proteins,
	fats,
	carbohydrates,
	weight,
	description,
	composition,
	allergens,
	image_url,
	availability,
	timetable
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (id, category) DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	calories = EXCLUDED.calories,
	proteins = EXCLUDED.proteins,
	fats = EXCLUDED.fats,
	carbohydrates = EXCLUDED.carbohydrates,
	weight = EXCLUDED.weight,
	description = EXCLUDED.description,
	composition = EXCLUDED.composition,
	allergens = EXCLUDED.allergens,
	image_url = EXCLUDED.image_url,
	availability = EXCLUDED.availability,
	timetable = EXCLUDED.timetable`

// UpsertMenuItems writes all items in one batch. Returns the number of
// rows written; any statement failure fails the whole batch.
func (s *Store) UpsertMenuItems(ctx context.Context, items []menu.MenuItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(upsertMenuItemSQL,
			item.SKU,
			item.Category,
			item.Name,
			item.Price,
			item.Nutrition.Calories,
			item.Nutrition.Proteins,
			item.Nutrition.Fats,
			item.Nutrition.Carbohydrates,
			item.Nutrition.Weight,
			item.Description,
			item.Composition,
			item.Allergens,
			item.Image,
			item.Available,
			item.Timetable,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range items {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert menu item %d/%s: %w", items[i].SKU, items[i].Category, err)
		}
	}
	return len(items), nil
}

// DeleteCategoriesNotIn removes rows of every category absent from the
// given set. An empty set is a no-op: deleting the entire table because
// discovery came back empty would be a bug, not a reconciliation.
func (s *Store) DeleteCategoriesNotIn(ctx context.Context, categories []string) (int64, error) {
	if len(categories) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM menu_items WHERE NOT (category = ANY($1))`, categories)
	if err != nil {
		return 0, fmt.Errorf("delete stale categories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteItemsNotIn removes rows of one category whose id is absent from
// the given SKU set.
func (s *Store) DeleteItemsNotIn(ctx context.Context, category string, skus []int) (int64, error) {
	if len(skus) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM menu_items WHERE category = $1 AND NOT (id = ANY($2))`, category, skus)
	if err != nil {
		return 0, fmt.Errorf("delete stale items in %s: %w", category, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteCategory removes all rows of one category.
func (s *Store) DeleteCategory(ctx context.Context, category string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM menu_items WHERE category = $1`, category)
	if err != nil {
		return 0, fmt.Errorf("delete category %s: %w", category, err)
	}
	return tag.RowsAffected(), nil
}

const upsertRestaurantSQL = `
INSERT INTO restaurants_db (
	restaurant_id,
	name,
	address,
	restaurant_image,
	metro,
	description,
	veranda,
	changing_table,
	animation,
	work_time,
	contacts,
	vine_card
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (restaurant_id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	restaurant_image = EXCLUDED.restaurant_image,
	metro = EXCLUDED.metro,
	description = EXCLUDED.description,
	veranda = EXCLUDED.veranda,
	changing_table = EXCLUDED.changing_table,
	animation = EXCLUDED.animation,
	work_time = EXCLUDED.work_time,
	contacts = EXCLUDED.contacts,
	vine_card = EXCLUDED.vine_card`

// UpsertRestaurants writes all restaurants in one batch.
func (s *Store) UpsertRestaurants(ctx context.Context, restaurants []menu.Restaurant) (int, error) {
	if len(restaurants) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range restaurants {
		batch.Queue(upsertRestaurantSQL,
			r.ID,
			r.Name,
			r.Address,
			r.Image,
			r.Metro,
			r.Description,
			r.Veranda,
			r.ChangingTable,
			r.Animation,
			r.WorkTime,
			r.Contacts,
			r.WineCard,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range restaurants {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert restaurant %s: %w", restaurants[i].ID, err)
		}
	}
	return len(restaurants), nil
}

// Categories lists distinct menu categories in alphabetical order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT category FROM menu_items ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return categories, nil
}

// ItemsByCategory returns all rows of one category ordered by name.
func (s *Store) ItemsByCategory(ctx context.Context, category string) ([]menu.MenuItem, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, category, name, price, calories, proteins, fats, carbohydrates,
       weight, description, composition, allergens, image_url, availability, timetable
FROM menu_items WHERE category = $1 ORDER BY name`, category)
	if err != nil {
		return nil, fmt.Errorf("query items for %s: %w", category, err)
	}
	defer rows.Close()

	var items []menu.MenuItem
	for rows.Next() {
		var item menu.MenuItem
		if err := rows.Scan(
			&item.SKU,
			&item.Category,
			&item.Name,
			&item.Price,
			&item.Nutrition.Calories,
			&item.Nutrition.Proteins,
			&item.Nutrition.Fats,
			&item.Nutrition.Carbohydrates,
			&item.Nutrition.Weight,
			&item.Description,
			&item.Composition,
			&item.Allergens,
			&item.Image,
			&item.Available,
			&item.Timetable,
		); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return items, nil
}

// Restaurants lists all restaurant rows ordered by name.
func (s *Store) Restaurants(ctx context.Context) ([]menu.Restaurant, error) {
	rows, err := s.db.Query(ctx, restaurantSelectSQL+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []menu.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read restaurants: %w", err)
	}
	return restaurants, nil
}

// RestaurantByID fetches one restaurant row. Returns pgx.ErrNoRows when
// the id is unknown.
func (s *Store) RestaurantByID(ctx context.Context, id string) (menu.Restaurant, error) {
	row := s.db.QueryRow(ctx, restaurantSelectSQL+` WHERE restaurant_id = $1`, id)
	return scanRestaurant(row)
}

const restaurantSelectSQL = `
SELECT restaurant_id, name, address, restaurant_image, metro, description,
       veranda, changing_table, animation, work_time, contacts, vine_card
FROM restaurants_db`

func scanRestaurant(row pgx.Row) (menu.Restaurant, error) {
	var r menu.Restaurant
	if err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Address,
		&r.Image,
		&r.Metro,
		&r.Description,
		&r.Veranda,
		&r.ChangingTable,
		&r.Animation,
		&r.WorkTime,
		&r.Contacts,
		&r.WineCard,
	); err != nil {
		return menu.Restaurant{}, fmt.Errorf("scan restaurant: %w", err)
	}
	return r, nil
}
