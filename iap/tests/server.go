package tests

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
	entmem "github.com/versebook/verse-server/entitlement/memory"
	"github.com/versebook/verse-server/iap"
	iapmem "github.com/versebook/verse-server/iap/memory"
)

// Env bundles the memory-backed dependencies a server test runs against.
type Env struct {
	Books        *catmem.InMemoryStore
	Entitlements *entmem.InMemoryStore
	Apple        *iapmem.Verifier
	Android      *iapmem.Verifier
	Server       *iap.Server
}

func newEnv() *Env {
	env := &Env{
		Books:        catmem.NewInMemory(),
		Entitlements: entmem.NewInMemory(),
		Apple:        iapmem.NewVerifier(),
		Android:      iapmem.NewVerifier(),
	}
	env.Server = iap.NewServer(
		zap.NewNop(),
		auth.NewContextAuthorizer(),
		env.Books,
		env.Entitlements,
		env.Entitlements,
		env.Apple,
		env.Android,
	)
	return env
}

// RunServerTests runs the behavioral suite against a fresh environment per
// test.
func RunServerTests(t *testing.T) {
	for name, tf := range map[string]func(t *testing.T, env *Env){
		"Unauthenticated":             testUnauthenticated,
		"InvalidArguments":            testInvalidArguments,
		"UserIDMismatch":              testUserIDMismatch,
		"BookNotFound":                testBookNotFound,
		"SKUMismatch":                 testSKUMismatch,
		"BookPurchaseIOS":             testBookPurchaseIOS,
		"BookPurchaseAndroid":         testBookPurchaseAndroid,
		"BookPurchaseIdempotent":      testBookPurchaseIdempotent,
		"BookPurchaseRejected":        testBookPurchaseRejected,
		"BookPurchaseVendorOutage":    testBookPurchaseVendorOutage,
		"Subscription":                testSubscription,
		"SubscriptionRejected":        testSubscriptionRejected,
		"SubscriptionOverwriteRace":   testSubscriptionOverwrite,
		"SubscriptionMissingArgument": testSubscriptionMissingArgument,
	} {
		t.Run(name, func(t *testing.T) {
			tf(t, newEnv())
		})
	}
}

func authed(userID string) context.Context {
	return auth.WithUserID(context.Background(), userID)
}

func seedBook(env *Env) {
	env.Books.AddBook(&catalog.Book{
		ID:                 "b1",
		PurchaseSkuIOS:     "com.app.book1",
		PurchaseSkuAndroid: "book1_unlock",
	})
}

func requireNoWrites(t *testing.T, env *Env, userID string) {
	t.Helper()
	require.Empty(t, env.Entitlements.PurchasedBooks(userID))
	require.Nil(t, env.Entitlements.Subscription(userID))
	require.Empty(t, env.Entitlements.PurchaseRecords())
	require.Empty(t, env.Entitlements.SubscriptionRecords())
}

func testUnauthenticated(t *testing.T, env *Env) {
	// The identity check runs before any payload validation, so even a
	// garbage request fails with Unauthenticated.
	_, err := env.Server.VerifyBookPurchase(context.Background(), &iap.VerifyBookPurchaseRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.Server.VerifySubscription(context.Background(), &iap.VerifySubscriptionRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func testInvalidArguments(t *testing.T, env *Env) {
	ctx := authed("u1")

	for _, req := range []*iap.VerifyBookPurchaseRequest{
		{},
		{BookID: "b1", ProductID: "com.app.book1"},
		{BookID: "b1", Platform: "ios"},
		{ProductID: "com.app.book1", Platform: "ios"},
		{BookID: "b1", ProductID: "com.app.book1", Platform: "windows", Receipt: "r"},
		{BookID: "b1", ProductID: "com.app.book1", Platform: "ios"},                  // no receipt
		{BookID: "b1", ProductID: "book1_unlock", Platform: "android", Receipt: "r"}, // no token
	} {
		_, err := env.Server.VerifyBookPurchase(ctx, req)
		require.Equal(t, codes.InvalidArgument, status.Code(err), "request: %+v", req)
	}

	requireNoWrites(t, env, "u1")
}

func testUserIDMismatch(t *testing.T, env *Env) {
	seedBook(env)

	_, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "r",
		UserID:    "someone-else",
	})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = env.Server.VerifySubscription(authed("u1"), &iap.VerifySubscriptionRequest{
		ProductID: "com.versebook.monthly",
		Platform:  "ios",
		Receipt:   "r",
		UserID:    "someone-else",
	})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	requireNoWrites(t, env, "u1")
}

func testBookNotFound(t *testing.T, env *Env) {
	_, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "missing",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "r",
	})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func testSKUMismatch(t *testing.T, env *Env) {
	seedBook(env)
	env.Apple.AllowProduct("com.app.OTHER", "valid-receipt", &iap.ProductReceipt{TransactionID: "tx"})

	// Even a vendor-valid receipt cannot buy b1 with another product's SKU.
	_, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.OTHER",
		Platform:  "ios",
		Receipt:   "valid-receipt",
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.Contains(t, status.Convert(err).Message(), "SKU")

	requireNoWrites(t, env, "u1")
}

func testBookPurchaseIOS(t *testing.T, env *Env) {
	seedBook(env)
	env.Apple.AllowProduct("com.app.book1", "valid-prod-receipt", &iap.ProductReceipt{TransactionID: "tx-1"})

	resp, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "valid-prod-receipt",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "b1", resp.BookID)
	require.Equal(t, "tx-1", resp.TransactionID)

	require.Equal(t, []string{"b1"}, env.Entitlements.PurchasedBooks("u1"))

	records := env.Entitlements.PurchaseRecords()
	require.Len(t, records, 1)
	require.Equal(t, "u1", records[0].UserID)
	require.Equal(t, "b1", records[0].BookID)
	require.Equal(t, "tx-1", records[0].TransactionID)
	require.Equal(t, "verifyBookPurchase", records[0].Source)
}

func testBookPurchaseAndroid(t *testing.T, env *Env) {
	seedBook(env)
	env.Android.AllowProduct("book1_unlock", "token-1", &iap.ProductReceipt{TransactionID: "GPA.1"})

	resp, err := env.Server.VerifyBookPurchase(authed("u2"), &iap.VerifyBookPurchaseRequest{
		BookID:        "b1",
		ProductID:     "book1_unlock",
		Platform:      "android",
		PurchaseToken: "token-1",
	})
	require.NoError(t, err)
	require.Equal(t, "GPA.1", resp.TransactionID)
	require.Equal(t, []string{"b1"}, env.Entitlements.PurchasedBooks("u2"))

	records := env.Entitlements.PurchaseRecords()
	require.Len(t, records, 1)
	require.Equal(t, "token-1", records[0].PurchaseToken)
}

func testBookPurchaseIdempotent(t *testing.T, env *Env) {
	seedBook(env)
	env.Apple.AllowProduct("com.app.book1", "valid-prod-receipt", &iap.ProductReceipt{TransactionID: "tx-1"})

	req := &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "valid-prod-receipt",
	}

	for i := 0; i < 2; i++ {
		resp, err := env.Server.VerifyBookPurchase(authed("u1"), req)
		require.NoError(t, err)
		require.True(t, resp.Success)
	}

	// The grant is a set; the audit log is not deduplicated.
	require.Equal(t, []string{"b1"}, env.Entitlements.PurchasedBooks("u1"))
	require.Len(t, env.Entitlements.PurchaseRecords(), 2)
}

func testBookPurchaseRejected(t *testing.T, env *Env) {
	seedBook(env)

	_, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "unknown-receipt",
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	requireNoWrites(t, env, "u1")
}

func testBookPurchaseVendorOutage(t *testing.T, env *Env) {
	seedBook(env)
	env.Apple.FailWith(errors.New("apple is down"))

	_, err := env.Server.VerifyBookPurchase(authed("u1"), &iap.VerifyBookPurchaseRequest{
		BookID:    "b1",
		ProductID: "com.app.book1",
		Platform:  "ios",
		Receipt:   "valid-prod-receipt",
	})
	require.Equal(t, codes.Internal, status.Code(err))

	requireNoWrites(t, env, "u1")
}

func testSubscription(t *testing.T, env *Env) {
	expiry := time.Now().Add(30 * 24 * time.Hour).UnixMilli()
	env.Apple.AllowSubscription("com.versebook.monthly", "sub-receipt", &iap.SubscriptionReceipt{
		TransactionID: "tx-sub",
		ExpiresAt:     expiry,
	})

	resp, err := env.Server.VerifySubscription(authed("u1"), &iap.VerifySubscriptionRequest{
		ProductID: "com.versebook.monthly",
		Platform:  "ios",
		Receipt:   "sub-receipt",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "com.versebook.monthly", resp.ProductID)
	require.Equal(t, expiry, resp.ExpiresAt)
	require.Equal(t, "ios", resp.Platform)
	require.Equal(t, "tx-sub", resp.TransactionID)

	sub := env.Entitlements.Subscription("u1")
	require.NotNil(t, sub)
	require.Equal(t, "active", sub.Status)
	require.Equal(t, expiry, sub.ExpiresAt)

	records := env.Entitlements.SubscriptionRecords()
	require.Len(t, records, 1)
	require.Equal(t, "verifySubscriptionPurchase", records[0].Source)
}

func testSubscriptionRejected(t *testing.T, env *Env) {
	_, err := env.Server.VerifySubscription(authed("u1"), &iap.VerifySubscriptionRequest{
		ProductID: "com.versebook.monthly",
		Platform:  "ios",
		Receipt:   "expired-receipt",
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	requireNoWrites(t, env, "u1")
}

func testSubscriptionOverwrite(t *testing.T, env *Env) {
	later := time.Now().Add(60 * 24 * time.Hour).UnixMilli()
	sooner := time.Now().Add(10 * 24 * time.Hour).UnixMilli()

	env.Apple.AllowSubscription("com.versebook.yearly", "r-yearly", &iap.SubscriptionReceipt{ExpiresAt: later})
	env.Android.AllowSubscription("monthly_sub", "t-monthly", &iap.SubscriptionReceipt{ExpiresAt: sooner})

	_, err := env.Server.VerifySubscription(authed("u1"), &iap.VerifySubscriptionRequest{
		ProductID: "com.versebook.yearly",
		Platform:  "ios",
		Receipt:   "r-yearly",
	})
	require.NoError(t, err)

	// The subscription field is replaced wholesale; the second call wins
	// even though it grants a shorter period.
	_, err = env.Server.VerifySubscription(authed("u1"), &iap.VerifySubscriptionRequest{
		ProductID:     "monthly_sub",
		Platform:      "android",
		PurchaseToken: "t-monthly",
	})
	require.NoError(t, err)

	sub := env.Entitlements.Subscription("u1")
	require.Equal(t, sooner, sub.ExpiresAt)
	require.Equal(t, "monthly_sub", sub.ProductID)
	require.Len(t, env.Entitlements.SubscriptionRecords(), 2)
}

func testSubscriptionMissingArgument(t *testing.T, env *Env) {
	ctx := authed("u1")

	for _, req := range []*iap.VerifySubscriptionRequest{
		{},
		{ProductID: "com.versebook.monthly"},
		{Platform: "ios"},
		{ProductID: "com.versebook.monthly", Platform: "ios"},               // no receipt
		{ProductID: "monthly_sub", Platform: "android", Receipt: "receipt"}, // no token
	} {
		_, err := env.Server.VerifySubscription(ctx, req)
		require.Equal(t, codes.InvalidArgument, status.Code(err), "request: %+v", req)
	}
}
