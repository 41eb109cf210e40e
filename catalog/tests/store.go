package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/versebook/verse-server/catalog"
	"github.com/versebook/verse-server/model"
)

// Seeder adds a catalog entry out of band, standing in for the content
// pipeline that owns the books collection.
type Seeder func(book *catalog.Book)

func RunStoreTests(t *testing.T, s catalog.Store, seed Seeder, teardown func()) {
	for _, tf := range []func(t *testing.T, s catalog.Store, seed Seeder){
		testGetBook_HappyPath,
		testGetBook_NotFound,
	} {
		tf(t, s, seed)
		teardown()
	}
}

func testGetBook_HappyPath(t *testing.T, s catalog.Store, seed Seeder) {
	seed(&catalog.Book{
		ID:                 "b1",
		Title:              "Collected Sonnets",
		PurchaseSkuIOS:     "com.versebook.sonnets",
		PurchaseSkuAndroid: "sonnets_unlock",
	})

	book, err := s.GetBook(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "b1", book.ID)
	require.Equal(t, "com.versebook.sonnets", book.SKUFor(model.PlatformIOS))
	require.Equal(t, "sonnets_unlock", book.SKUFor(model.PlatformAndroid))
}

func testGetBook_NotFound(t *testing.T, s catalog.Store, seed Seeder) {
	_, err := s.GetBook(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
