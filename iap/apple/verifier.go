package apple

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/versebook/verse-server/iap"
)

const (
	productionURL = "https://buy.itunes.apple.com/verifyReceipt"
	sandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	// statusSandboxReceipt is Apple's signal that a sandbox receipt was sent
	// to the production endpoint; the verifier retries sandbox exactly once.
	statusSandboxReceipt = 21007

	// Apple's verification endpoint can be slow.
	defaultTimeout = 30 * time.Second
)

// Verifier validates receipts against the App Store verifyReceipt endpoint.
type Verifier struct {
	// ProductionURL and SandboxURL are overridable for tests.
	ProductionURL string
	SandboxURL    string

	// SharedSecret is required for auto-renewing subscription receipts and
	// optional for one-time purchases.
	SharedSecret string

	HTTPClient *http.Client

	// Now is the clock used for expiry checks.
	Now func() time.Time
}

func NewVerifier(sharedSecret string) *Verifier {
	return &Verifier{
		ProductionURL: productionURL,
		SandboxURL:    sandboxURL,
		SharedSecret:  sharedSecret,
		HTTPClient:    &http.Client{Timeout: defaultTimeout},
		Now:           time.Now,
	}
}

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
	Password               string `json:"password,omitempty"`
}

// inAppEntry is one transaction in a decoded receipt. Apple serializes
// numeric fields as strings.
type inAppEntry struct {
	ProductID        string `json:"product_id"`
	TransactionID    string `json:"transaction_id"`
	ExpiresDateMS    string `json:"expires_date_ms"`
	CancellationDate string `json:"cancellation_date"`
}

type verifyResponse struct {
	Status  int `json:"status"`
	Receipt struct {
		InApp []inAppEntry `json:"in_app"`
	} `json:"receipt"`
	LatestReceiptInfo []inAppEntry `json:"latest_receipt_info"`
}

// VerifyProduct locates a one-time purchase of productID in the receipt.
func (v *Verifier) VerifyProduct(ctx context.Context, productID, receipt string) (*iap.ProductReceipt, error) {
	decoded, err := v.verifyReceipt(ctx, receipt)
	if err != nil {
		return nil, err
	}

	// First match wins, in vendor order. latest_receipt_info is consulted
	// before the receipt's own in_app list.
	entries := append(append([]inAppEntry{}, decoded.LatestReceiptInfo...), decoded.Receipt.InApp...)
	for _, entry := range entries {
		if entry.ProductID != productID {
			continue
		}
		if entry.CancellationDate != "" {
			return nil, iap.Rejectedf("purchase of %s was refunded or revoked", productID)
		}
		return &iap.ProductReceipt{TransactionID: entry.TransactionID}, nil
	}

	return nil, iap.Rejectedf("no purchase of %s found in receipt", productID)
}

// VerifySubscription locates the latest subscription state for productID and
// requires it to be uncancelled and unexpired.
func (v *Verifier) VerifySubscription(ctx context.Context, productID, receipt string) (*iap.SubscriptionReceipt, error) {
	if v.SharedSecret == "" {
		return nil, iap.Rejectedf("App Store shared secret is not configured")
	}

	decoded, err := v.verifyReceipt(ctx, receipt)
	if err != nil {
		return nil, err
	}

	// Reduce the SKU's entries to the one with the greatest expiry. Ties
	// keep the first seen; a missing or non-numeric expiry counts as 0.
	var latest *inAppEntry
	var latestExpiry int64
	for i, entry := range decoded.LatestReceiptInfo {
		if entry.ProductID != productID {
			continue
		}
		expiry := parseMillis(entry.ExpiresDateMS)
		if latest == nil || expiry > latestExpiry {
			latest = &decoded.LatestReceiptInfo[i]
			latestExpiry = expiry
		}
	}

	if latest == nil {
		return nil, iap.Rejectedf("no subscription of %s found in receipt", productID)
	}
	if latest.CancellationDate != "" {
		return nil, iap.Rejectedf("subscription of %s was cancelled", productID)
	}
	if latestExpiry <= v.Now().UnixMilli() {
		return nil, iap.Rejectedf("subscription of %s expired", productID)
	}

	return &iap.SubscriptionReceipt{
		TransactionID: latest.TransactionID,
		ExpiresAt:     latestExpiry,
	}, nil
}

// verifyReceipt runs the production call and follows the sandbox redirect
// at most once.
func (v *Verifier) verifyReceipt(ctx context.Context, receipt string) (*verifyResponse, error) {
	payload := &verifyRequest{
		ReceiptData:            receipt,
		ExcludeOldTransactions: true,
		Password:               v.SharedSecret,
	}

	decoded, err := v.post(ctx, v.ProductionURL, payload)
	if err != nil {
		return nil, err
	}

	if decoded.Status == statusSandboxReceipt {
		decoded, err = v.post(ctx, v.SandboxURL, payload)
		if err != nil {
			return nil, err
		}
	}

	if decoded.Status != 0 {
		return nil, iap.Rejectedf("receipt rejected by App Store (status %d)", decoded.Status)
	}

	return decoded, nil
}

func (v *Verifier) post(ctx context.Context, url string, payload *verifyRequest) (*verifyResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	rsp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call verification endpoint: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification endpoint returned HTTP %d", rsp.StatusCode)
	}

	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response: %w", err)
	}

	var decoded verifyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	return &decoded, nil
}

func parseMillis(value string) int64 {
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return millis
}
