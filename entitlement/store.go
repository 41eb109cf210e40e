package entitlement

import (
	"context"
	"time"

	"github.com/versebook/verse-server/model"
)

// SubscriptionStatusActive is the only status this service writes; webhooks
// and scheduled jobs elsewhere may downgrade it.
const SubscriptionStatusActive = "active"

// Subscription is the user's current subscription state. It is replaced
// wholesale on every successful verification; there is no merge.
type Subscription struct {
	Status    string         `firestore:"status"`
	ExpiresAt int64          `firestore:"expiresAt"`
	Platform  model.Platform `firestore:"platform"`
	ProductID string         `firestore:"productId"`
}

// PurchaseRecord is one audit entry per successful book verification call.
// Records are append-only; nothing in this service updates or deletes them.
type PurchaseRecord struct {
	UserID        string         `firestore:"userId"`
	BookID        string         `firestore:"bookId"`
	Platform      model.Platform `firestore:"platform"`
	TransactionID string         `firestore:"transactionId"`
	PurchaseToken string         `firestore:"purchaseToken"`
	Source        string         `firestore:"source"`
	CreatedAt     time.Time      `firestore:"createdAt,serverTimestamp"`
}

// SubscriptionRecord is one audit entry per successful subscription
// verification call.
type SubscriptionRecord struct {
	UserID        string         `firestore:"userId"`
	ProductID     string         `firestore:"productId"`
	Platform      model.Platform `firestore:"platform"`
	TransactionID string         `firestore:"transactionId"`
	PurchaseToken string         `firestore:"purchaseToken"`
	ExpiresAt     int64          `firestore:"expiresAt"`
	Source        string         `firestore:"source"`
	CreatedAt     time.Time      `firestore:"createdAt,serverTimestamp"`
}

type Store interface {
	// AddPurchasedBook adds bookID to the user's purchased set. It is
	// idempotent: granting the same book twice leaves a single entry and is
	// not an error.
	AddPurchasedBook(ctx context.Context, userID, bookID string) error

	// SetSubscription overwrites the user's subscription state. Concurrent
	// calls race with last-writer-wins semantics; whether that is
	// acceptable is a product decision, not enforced here.
	SetSubscription(ctx context.Context, userID string, sub *Subscription) error
}

// Ledger appends audit records. Appends happen strictly after the matching
// grant, and a failed append does not roll the grant back.
type Ledger interface {
	RecordPurchase(ctx context.Context, record *PurchaseRecord) error
	RecordSubscription(ctx context.Context, record *SubscriptionRecord) error
}
