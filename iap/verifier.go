package iap

import (
	"context"
	"fmt"
)

// ProductReceipt is the normalized result of a one-time purchase
// verification. TransactionID may be empty: some vendor responses omit an
// order id, and the purchase is still honored.
type ProductReceipt struct {
	TransactionID string
}

// SubscriptionReceipt is the normalized result of a subscription
// verification. ExpiresAt is epoch milliseconds and is always in the future
// on success.
type SubscriptionReceipt struct {
	TransactionID string
	ExpiresAt     int64
}

// Verifier checks a purchase proof against a vendor's server API. The proof
// is an App Store receipt blob on iOS and a Play purchase token on Android.
//
// Vendor rejections (bad receipt, wrong product, cancelled, expired) come
// back as *VerificationError; any other error is a transport failure.
type Verifier interface {
	VerifyProduct(ctx context.Context, productID, proof string) (*ProductReceipt, error)
	VerifySubscription(ctx context.Context, productID, proof string) (*SubscriptionReceipt, error)
}

// VerificationError means the vendor rejected the purchase, as opposed to
// the verification call itself failing.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return e.Reason
}

// Rejectedf builds a *VerificationError.
func Rejectedf(format string, args ...interface{}) error {
	return &VerificationError{Reason: fmt.Sprintf(format, args...)}
}

// NewUnconfigured returns a Verifier that rejects everything because the
// platform's credentials are absent from the deployment.
func NewUnconfigured(reason string) Verifier {
	return &unconfiguredVerifier{reason: reason}
}

type unconfiguredVerifier struct {
	reason string
}

func (v *unconfiguredVerifier) VerifyProduct(context.Context, string, string) (*ProductReceipt, error) {
	return nil, &VerificationError{Reason: v.reason}
}

func (v *unconfiguredVerifier) VerifySubscription(context.Context, string, string) (*SubscriptionReceipt, error) {
	return nil, &VerificationError{Reason: v.reason}
}
