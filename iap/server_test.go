package iap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/versebook/verse-server/auth"
	"github.com/versebook/verse-server/catalog"
	catmem "github.com/versebook/verse-server/catalog/memory"
	"github.com/versebook/verse-server/entitlement"
	entmem "github.com/versebook/verse-server/entitlement/memory"
	"github.com/versebook/verse-server/iap"
	iapmem "github.com/versebook/verse-server/iap/memory"
)

type failingLedger struct{}

func (failingLedger) RecordPurchase(context.Context, *entitlement.PurchaseRecord) error {
	return errors.New("ledger unavailable")
}

func (failingLedger) RecordSubscription(context.Context, *entitlement.SubscriptionRecord) error {
	return errors.New("ledger unavailable")
}

// An audit append failure after a successful grant must not fail the call:
// the vendor-side purchase already happened and the entitlement is written.
func TestServer_AuditFailureDoesNotFailCall(t *testing.T) {
	books := catmem.NewInMemory()
	books.AddBook(&catalog.Book{ID: "b1", PurchaseSkuIOS: "com.app.book1"})

	entitlements := entmem.NewInMemory()

	apple := iapmem.NewVerifier()
	apple.AllowProduct("com.app.book1", "receipt", &iap.ProductReceipt{TransactionID: "tx-1"})
	apple.AllowSubscription("com.versebook.monthly", "receipt", &iap.SubscriptionReceipt{
		TransactionID: "tx-2",
		ExpiresAt:     time.Now().Add(time.Hour).UnixMilli(),
	})

	server := iap.NewServer(
		zap.NewNop(),
		auth.NewContextAuthorizer(),
		books,
		entitlements,
		failingLedger{},
		apple,
		iapmem.NewVerifier(),
	)

	ctx := auth.WithUserID(context.Background(), "u1")

	resp, err := server.VerifyBookPurchase(ctx, &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "receipt",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, []string{"b1"}, entitlements.PurchasedBooks("u1"))

	subResp, err := server.VerifySubscription(ctx, &iap.VerifySubscriptionRequest{
		ProductID: "com.versebook.monthly",
		Platform:  "ios",
		Receipt:   "receipt",
	})
	require.NoError(t, err)
	require.True(t, subResp.Success)
	require.NotNil(t, entitlements.Subscription("u1"))
}

// A deployment without Play credentials rejects android verification with
// a failed precondition instead of an opaque failure.
func TestServer_UnconfiguredAndroidVerifier(t *testing.T) {
	books := catmem.NewInMemory()
	books.AddBook(&catalog.Book{ID: "b1", PurchaseSkuAndroid: "book1_unlock"})

	entitlements := entmem.NewInMemory()

	server := iap.NewServer(
		zap.NewNop(),
		auth.NewContextAuthorizer(),
		books,
		entitlements,
		entitlements,
		iapmem.NewVerifier(),
		iap.NewUnconfigured("Google Play service account is not configured"),
	)

	ctx := auth.WithUserID(context.Background(), "u1")

	_, err := server.VerifyBookPurchase(ctx, &iap.VerifyBookPurchaseRequest{
		BookID:        "b1",
		ProductID:     "book1_unlock",
		Platform:      "android",
		PurchaseToken: "token",
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.Contains(t, status.Convert(err).Message(), "not configured")

	_, err = server.VerifySubscription(ctx, &iap.VerifySubscriptionRequest{
		ProductID:     "monthly_sub",
		Platform:      "android",
		PurchaseToken: "token",
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	require.Empty(t, entitlements.PurchasedBooks("u1"))
	require.Nil(t, entitlements.Subscription("u1"))
}

// Granting books never depends on the vendor supplying an order id.
func TestServer_MissingTransactionIDStillGrants(t *testing.T) {
	books := catmem.NewInMemory()
	books.AddBook(&catalog.Book{ID: "b1", PurchaseSkuAndroid: "book1_unlock"})

	entitlements := entmem.NewInMemory()

	android := iapmem.NewVerifier()
	android.AllowProduct("book1_unlock", "token", &iap.ProductReceipt{})

	server := iap.NewServer(
		zap.NewNop(),
		auth.NewContextAuthorizer(),
		books,
		entitlements,
		entitlements,
		iapmem.NewVerifier(),
		android,
	)

	resp, err := server.VerifyBookPurchase(auth.WithUserID(context.Background(), "u1"), &iap.VerifyBookPurchaseRequest{
		BookID:        "b1",
		ProductID:     "book1_unlock",
		Platform:      "android",
		PurchaseToken: "token",
	})
	require.NoError(t, err)
	require.Empty(t, resp.TransactionID)
	require.Equal(t, []string{"b1"}, entitlements.PurchasedBooks("u1"))
}
