package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/versebook/verse-server/entitlement"
)

const (
	usersCollection         = "users"
	purchasesCollection     = "purchases"
	subscriptionsCollection = "subscriptions"
)

type FirestoreStore struct {
	client *firestore.Client
}

func NewInFirestore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) AddPurchasedBook(ctx context.Context, userID, bookID string) error {
	// ArrayUnion gives the set semantics: concurrent grants of different
	// books commute, and a repeated grant is a no-op.
	_, err := s.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"purchasedBooks": firestore.ArrayUnion(bookID),
	}, firestore.MergeAll)
	return errors.Wrap(err, "adding purchased book")
}

func (s *FirestoreStore) SetSubscription(ctx context.Context, userID string, sub *entitlement.Subscription) error {
	_, err := s.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"subscription": sub,
	}, firestore.MergeAll)
	return errors.Wrap(err, "setting subscription")
}

func (s *FirestoreStore) RecordPurchase(ctx context.Context, record *entitlement.PurchaseRecord) error {
	_, err := s.client.Collection(purchasesCollection).Doc(uuid.NewString()).Create(ctx, record)
	return errors.Wrap(err, "appending purchase record")
}

func (s *FirestoreStore) RecordSubscription(ctx context.Context, record *entitlement.SubscriptionRecord) error {
	_, err := s.client.Collection(subscriptionsCollection).Doc(uuid.NewString()).Create(ctx, record)
	return errors.Wrap(err, "appending subscription record")
}
