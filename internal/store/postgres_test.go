package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mvoronin/menusync/internal/menu"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithDB(mock)
	require.NoError(t, err)
	return s, mock
}

func sampleItem(sku int, category, name string) menu.MenuItem {
	return menu.MenuItem{
		SKU:      sku,
		Category: category,
		Name:     name,
		Price:    "450 ₽",
		Nutrition: menu.Nutrition{
			Calories:      320,
			Proteins:      "6 г",
			Fats:          "18 г",
			Carbohydrates: "34 г",
			Weight:        "110 г",
		},
		Description: "десерт",
		Composition: "мука, сливки",
		Allergens:   "орехи",
		Image:       "images/Десерты/" + name + ".png",
		Available:   true,
		Timetable:   "с 10:00",
	}
}

func expectItemUpsert(eb *pgxmock.ExpectedBatch, item menu.MenuItem) {
	eb.ExpectExec("INSERT INTO menu_items").
		WithArgs(
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
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestUpsertMenuItemsBatchesAllRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	items := []menu.MenuItem{
		sampleItem(101, "Десерты", "Эклер"),
		sampleItem(102, "Десерты", "Тарт"),
	}

	eb := mock.ExpectBatch()
	expectItemUpsert(eb, items[0])
	expectItemUpsert(eb, items[1])

	n, err := s.UpsertMenuItems(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMenuItemsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	n, err := s.UpsertMenuItems(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMenuItemsBatchFailureFailsRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	item := sampleItem(101, "Десерты", "Эклер")
	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO menu_items").
		WithArgs(
			item.SKU, item.Category, item.Name, item.Price,
			item.Nutrition.Calories, item.Nutrition.Proteins, item.Nutrition.Fats,
			item.Nutrition.Carbohydrates, item.Nutrition.Weight,
			item.Description, item.Composition, item.Allergens,
			item.Image, item.Available, item.Timetable,
		).
		WillReturnError(errors.New("constraint violated"))

	_, err := s.UpsertMenuItems(context.Background(), []menu.MenuItem{item})
	require.Error(t, err)
}

func TestDeleteCategoriesNotIn(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM menu_items WHERE NOT").
		WithArgs([]string{"Десерты", "Супы"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	deleted, err := s.DeleteCategoriesNotIn(context.Background(), []string{"Десерты", "Супы"})
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCategoriesNotInEmptySetIsNoop(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	deleted, err := s.DeleteCategoriesNotIn(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItemsNotIn(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM menu_items WHERE category").
		WithArgs("Десерты", []int{101, 102}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, err := s.DeleteItemsNotIn(context.Background(), "Десерты", []int{101, 102})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCategory(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM menu_items WHERE category").
		WithArgs("Десерты").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := s.DeleteCategory(context.Background(), "Десерты")
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRestaurants(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	r := menu.Restaurant{
		ID:            "17",
		Name:          "Кофемания Лубянка",
		Address:       "ул. Большая Лубянка, 13",
		Image:         "restaurant_images/Кофемания Лубянка.jpg",
		Metro:         "Лубянка",
		Description:   "Ресторан у метро",
		Veranda:       "Летняя веранда",
		ChangingTable: "true",
		Animation:     "Детская анимация",
		WorkTime:      "пн-пт 08:00-23:00",
		Contacts:      "+7 495 123-45-67",
		WineCard:      "Винная карта",
	}

	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO restaurants_db").
		WithArgs(
			r.ID, r.Name, r.Address, r.Image, r.Metro, r.Description,
			r.Veranda, r.ChangingTable, r.Animation, r.WorkTime, r.Contacts, r.WineCard,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := s.UpsertRestaurants(context.Background(), []menu.Restaurant{r})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategories(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT DISTINCT category FROM menu_items").
		WillReturnRows(pgxmock.NewRows([]string{"category"}).
			AddRow("Десерты").
			AddRow("Супы"))

	categories, err := s.Categories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Десерты", "Супы"}, categories)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemsByCategory(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	want := sampleItem(101, "Десерты", "Эклер")
	mock.ExpectQuery("SELECT id, category, name").
		WithArgs("Десерты").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "category", "name", "price", "calories", "proteins", "fats",
			"carbohydrates", "weight", "description", "composition", "allergens",
			"image_url", "availability", "timetable",
		}).AddRow(
			want.SKU, want.Category, want.Name, want.Price,
			want.Nutrition.Calories, want.Nutrition.Proteins, want.Nutrition.Fats,
			want.Nutrition.Carbohydrates, want.Nutrition.Weight,
			want.Description, want.Composition, want.Allergens,
			want.Image, want.Available, want.Timetable,
		))

	items, err := s.ItemsByCategory(context.Background(), "Десерты")
	require.NoError(t, err)
	require.Equal(t, []menu.MenuItem{want}, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestaurantByID(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT restaurant_id, name").
		WithArgs("17").
		WillReturnRows(pgxmock.NewRows([]string{
			"restaurant_id", "name", "address", "restaurant_image", "metro",
			"description", "veranda", "changing_table", "animation",
			"work_time", "contacts", "vine_card",
		}).AddRow(
			"17", "Кофемания Лубянка", "адрес", "img.jpg", "Лубянка",
			"описание", "веранда", "true", "анимация",
			"08:00-23:00", "+7 495", "карта",
		))

	r, err := s.RestaurantByID(context.Background(), "17")
	require.NoError(t, err)
	require.Equal(t, "Кофемания Лубянка", r.Name)
	require.Equal(t, "17", r.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
