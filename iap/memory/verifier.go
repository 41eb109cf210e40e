package memory

import (
	"context"
	"sync"

	"github.com/versebook/verse-server/iap"
)

// Verifier is an in-memory verifier for tests. Proofs registered via the
// Allow methods verify successfully; everything else is rejected the way a
// vendor would reject an unknown receipt.
type Verifier struct {
	mu            sync.Mutex
	products      map[string]*iap.ProductReceipt
	subscriptions map[string]*iap.SubscriptionReceipt
	err           error
}

func NewVerifier() *Verifier {
	return &Verifier{
		products:      map[string]*iap.ProductReceipt{},
		subscriptions: map[string]*iap.SubscriptionReceipt{},
	}
}

func (v *Verifier) AllowProduct(productID, proof string, receipt *iap.ProductReceipt) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.products[key(productID, proof)] = receipt
}

func (v *Verifier) AllowSubscription(productID, proof string, receipt *iap.SubscriptionReceipt) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subscriptions[key(productID, proof)] = receipt
}

// FailWith makes every verification attempt return err, simulating a vendor
// outage.
func (v *Verifier) FailWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

func (v *Verifier) VerifyProduct(ctx context.Context, productID, proof string) (*iap.ProductReceipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.err != nil {
		return nil, v.err
	}

	receipt, ok := v.products[key(productID, proof)]
	if !ok {
		return nil, iap.Rejectedf("no purchase of %s found in receipt", productID)
	}
	return receipt, nil
}

func (v *Verifier) VerifySubscription(ctx context.Context, productID, proof string) (*iap.SubscriptionReceipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.err != nil {
		return nil, v.err
	}

	receipt, ok := v.subscriptions[key(productID, proof)]
	if !ok {
		return nil, iap.Rejectedf("no subscription of %s found in receipt", productID)
	}
	return receipt, nil
}

func key(productID, proof string) string {
	return productID + "|" + proof
}
