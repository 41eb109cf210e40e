package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/versebook/verse-server/entitlement"
	"github.com/versebook/verse-server/model"
)

// Store is what an implementation must provide to run the suite: the
// entitlement contracts plus inspection accessors for asserting on state.
type Store interface {
	entitlement.Store
	entitlement.Ledger

	PurchasedBooks(userID string) []string
	Subscription(userID string) *entitlement.Subscription
	PurchaseRecords() []*entitlement.PurchaseRecord
	SubscriptionRecords() []*entitlement.SubscriptionRecord
}

func RunStoreTests(t *testing.T, s Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s Store){
		testAddPurchasedBook_Idempotent,
		testSetSubscription_Overwrites,
		testLedger_AppendOnly,
	} {
		tf(t, s)
		teardown()
	}
}

func testAddPurchasedBook_Idempotent(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.AddPurchasedBook(ctx, "u1", "b1"))
	require.NoError(t, s.AddPurchasedBook(ctx, "u1", "b1"))
	require.NoError(t, s.AddPurchasedBook(ctx, "u1", "b2"))

	require.ElementsMatch(t, []string{"b1", "b2"}, s.PurchasedBooks("u1"))
	require.Empty(t, s.PurchasedBooks("u2"))
}

func testSetSubscription_Overwrites(t *testing.T, s Store) {
	ctx := context.Background()

	first := &entitlement.Subscription{
		Status:    entitlement.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour).UnixMilli(),
		Platform:  model.PlatformIOS,
		ProductID: "com.versebook.monthly",
	}
	require.NoError(t, s.SetSubscription(ctx, "u1", first))

	// A later write always wins, even with an earlier expiry.
	second := &entitlement.Subscription{
		Status:    entitlement.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(24 * time.Hour).UnixMilli(),
		Platform:  model.PlatformAndroid,
		ProductID: "monthly_sub",
	}
	require.NoError(t, s.SetSubscription(ctx, "u1", second))

	require.Equal(t, second, s.Subscription("u1"))
	require.Nil(t, s.Subscription("u2"))
}

func testLedger_AppendOnly(t *testing.T, s Store) {
	ctx := context.Background()

	record := &entitlement.PurchaseRecord{
		UserID:        "u1",
		BookID:        "b1",
		Platform:      model.PlatformIOS,
		TransactionID: "tx-1",
		Source:        "verifyBookPurchase",
	}

	// Two calls append two records; the audit log is not deduplicated.
	require.NoError(t, s.RecordPurchase(ctx, record))
	require.NoError(t, s.RecordPurchase(ctx, record))

	records := s.PurchaseRecords()
	require.Len(t, records, 2)
	require.False(t, records[0].CreatedAt.IsZero())

	require.NoError(t, s.RecordSubscription(ctx, &entitlement.SubscriptionRecord{
		UserID:    "u1",
		ProductID: "com.versebook.monthly",
		Platform:  model.PlatformIOS,
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
		Source:    "verifySubscriptionPurchase",
	}))
	require.Len(t, s.SubscriptionRecords(), 1)
}
