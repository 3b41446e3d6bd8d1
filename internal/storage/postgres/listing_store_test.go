package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

const testRunID = "0192f1c4-8b1e-7c3a-9d2e-4f5a6b7c8d9e"

func sampleRecords() []crawler.ListingRecord {
	return []crawler.ListingRecord{
		{
			Name:        "蘭芳園",
			Cuisine:     "港式",
			DishType:    "茶餐廳",
			PriceBand:   "$51-100",
			Rating:      4.2,
			ReviewCount: 1234,
			Address:     "中環結志街2號",
			URL:         "https://www.openrice.com/zh/hongkong/r-lan-fong-yuen",
			District:    "central",
		},
		{
			Name:      "無名小店",
			Cuisine:   "粵菜",
			DishType:  "小炒",
			PriceBand: "$101-200",
			Address:   "旺角花園街1號",
			District:  "mongkok",
		},
	}
}

func recordArgs(rec crawler.ListingRecord) []any {
	return []any{
		ListingKey(rec),
		testRunID,
		rec.Name,
		rec.Cuisine,
		rec.DishType,
		rec.PriceBand,
		rec.Phone,
		rec.OpeningHours,
		rec.Rating,
		rec.ReviewCount,
		rec.SpecialDish,
		rec.Address,
		rec.URL,
		rec.District,
	}
}

func TestSaveListingsUpsertsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	records := sampleRecords()
	mock.ExpectBegin()
	for _, rec := range records {
		mock.ExpectExec("INSERT INTO openrice_listings").
			WithArgs(recordArgs(rec)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	written, err := store.SaveListings(context.Background(), testRunID, records)
	require.NoError(t, err)
	require.Equal(t, 2, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "listings")
	require.NoError(t, err)

	records := sampleRecords()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(recordArgs(records[0])...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(recordArgs(records[1])...).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	written, err := store.SaveListings(context.Background(), testRunID, records)
	require.Error(t, err)
	require.Zero(t, written)
	require.Contains(t, err.Error(), "unique violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	written, err := store.SaveListings(context.Background(), testRunID, nil)
	require.NoError(t, err)
	require.Zero(t, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingsRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)
	_, err = store.SaveListings(context.Background(), "", sampleRecords())
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS openrice_listings").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewListingStoreWithPool(mock, "listings; DROP TABLE x")
	require.Error(t, err)
	_, err = NewListingStoreWithPool(nil, "")
	require.Error(t, err)
}

func TestListingKey(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	require.Equal(t, records[0].URL, ListingKey(records[0]))
	require.Equal(t, "mongkok|無名小店|旺角花園街1號", ListingKey(records[1]))
}
