package android

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/versebook/verse-server/iap"
)

// publisherAPI is the slice of the Play Developer API the verifier uses,
// split out so tests can run without service-account credentials.
type publisherAPI interface {
	GetProduct(ctx context.Context, packageName, productID, token string) (*androidpublisher.ProductPurchase, error)
	GetSubscription(ctx context.Context, packageName, subscriptionID, token string) (*androidpublisher.SubscriptionPurchase, error)
}

// Verifier checks purchase tokens against the Google Play Developer API.
type Verifier struct {
	packageName string
	api         publisherAPI
	now         func() time.Time
}

// NewVerifier builds a verifier authenticated as the given service account,
// scoped to the publisher API.
func NewVerifier(ctx context.Context, serviceAccountJSON []byte, packageName string) (*Verifier, error) {
	svc, err := androidpublisher.NewService(ctx,
		option.WithCredentialsJSON(serviceAccountJSON),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create android publisher client: %w", err)
	}

	return &Verifier{
		packageName: packageName,
		api:         &publisherService{svc: svc},
		now:         time.Now,
	}, nil
}

// VerifyProduct fetches the one-time purchase behind the token and requires
// it to be in the purchased state.
func (v *Verifier) VerifyProduct(ctx context.Context, productID, purchaseToken string) (*iap.ProductReceipt, error) {
	purchase, err := v.api.GetProduct(ctx, v.packageName, productID, purchaseToken)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	// 0 = purchased; 1 = cancelled, 2 = pending.
	if purchase.PurchaseState != 0 {
		return nil, iap.Rejectedf("invalid purchase in Google Play (state %d)", purchase.PurchaseState)
	}

	return &iap.ProductReceipt{TransactionID: purchase.OrderId}, nil
}

// VerifySubscription fetches the subscription behind the token and requires
// its expiry to be in the future.
func (v *Verifier) VerifySubscription(ctx context.Context, subscriptionID, purchaseToken string) (*iap.SubscriptionReceipt, error) {
	sub, err := v.api.GetSubscription(ctx, v.packageName, subscriptionID, purchaseToken)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	if sub.ExpiryTimeMillis <= v.now().UnixMilli() {
		return nil, iap.Rejectedf("subscription not active in Google Play")
	}

	return &iap.SubscriptionReceipt{
		TransactionID: sub.OrderId,
		ExpiresAt:     sub.ExpiryTimeMillis,
	}, nil
}

// wrapAPIError separates Google rejecting the token from the call itself
// failing. A 4xx means the token or product id is bad; anything else is a
// transport problem.
func wrapAPIError(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		if apiErr.Code >= http.StatusBadRequest && apiErr.Code < http.StatusInternalServerError {
			return iap.Rejectedf("purchase token rejected by Google Play (HTTP %d)", apiErr.Code)
		}
	}
	return fmt.Errorf("failed to query Google Play: %w", err)
}

type publisherService struct {
	svc *androidpublisher.Service
}

func (p *publisherService) GetProduct(ctx context.Context, packageName, productID, token string) (*androidpublisher.ProductPurchase, error) {
	return p.svc.Purchases.Products.Get(packageName, productID, token).Context(ctx).Do()
}

func (p *publisherService) GetSubscription(ctx context.Context, packageName, subscriptionID, token string) (*androidpublisher.SubscriptionPurchase, error) {
	return p.svc.Purchases.Subscriptions.Get(packageName, subscriptionID, token).Context(ctx).Do()
}
