package catalog

import (
	"context"
	"errors"

	"github.com/versebook/verse-server/model"
)

var ErrNotFound = errors.New("book not found")

// Book is the slice of a catalog document the purchase flow reads. The
// catalog is owned by the content pipeline; this service never writes it.
type Book struct {
	ID                 string `firestore:"-"`
	Title              string `firestore:"title,omitempty"`
	PurchaseSkuIOS     string `firestore:"purchaseSkuIos,omitempty"`
	PurchaseSkuAndroid string `firestore:"purchaseSkuAndroid,omitempty"`
}

// SKUFor returns the vendor product id registered for the platform, or ""
// if the book is not sold there.
func (b *Book) SKUFor(platform model.Platform) string {
	switch platform {
	case model.PlatformIOS:
		return b.PurchaseSkuIOS
	case model.PlatformAndroid:
		return b.PurchaseSkuAndroid
	default:
		return ""
	}
}

type Store interface {
	// GetBook returns the catalog entry for a book.
	//
	// ErrNotFound is returned if the book does not exist.
	GetBook(ctx context.Context, bookID string) (*Book, error)
}
