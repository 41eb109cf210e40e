package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/versebook/verse-server/catalog"
)

const booksCollection = "books"

type FirestoreStore struct {
	client *firestore.Client
}

func NewInFirestore(client *firestore.Client) catalog.Store {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	snap, err := s.client.Collection(booksCollection).Doc(bookID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, catalog.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "fetching book document")
	}

	var book catalog.Book
	if err := snap.DataTo(&book); err != nil {
		return nil, errors.Wrap(err, "decoding book document")
	}

	book.ID = snap.Ref.ID
	return &book, nil
}
