package iap

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/versebook/verse-server/auth"
	"github.com/versebook/verse-server/catalog"
	"github.com/versebook/verse-server/entitlement"
	"github.com/versebook/verse-server/model"
)

// Request and response shapes mirror the callable contract the mobile and
// web clients already speak.

type VerifyBookPurchaseRequest struct {
	BookID        string `json:"bookId"`
	ProductID     string `json:"productId"`
	Platform      string `json:"platform"`
	Receipt       string `json:"receipt,omitempty"`
	PurchaseToken string `json:"purchaseToken,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

type VerifyBookPurchaseResponse struct {
	Success       bool   `json:"success"`
	BookID        string `json:"bookId"`
	TransactionID string `json:"transactionId"`
}

type VerifySubscriptionRequest struct {
	ProductID     string `json:"productId"`
	Platform      string `json:"platform"`
	Receipt       string `json:"receipt,omitempty"`
	PurchaseToken string `json:"purchaseToken,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

type VerifySubscriptionResponse struct {
	Success       bool   `json:"success"`
	ProductID     string `json:"productId"`
	ExpiresAt     int64  `json:"expiresAt"`
	Platform      string `json:"platform"`
	TransactionID string `json:"transactionId"`
}

type Server struct {
	log             *zap.Logger
	authz           auth.Authorizer
	books           catalog.Store
	entitlements    entitlement.Store
	ledger          entitlement.Ledger
	appleVerifier   Verifier
	androidVerifier Verifier
}

func NewServer(
	log *zap.Logger,
	authz auth.Authorizer,
	books catalog.Store,
	entitlements entitlement.Store,
	ledger entitlement.Ledger,
	appleVerifier Verifier,
	androidVerifier Verifier,
) *Server {
	return &Server{
		log:             log,
		authz:           authz,
		books:           books,
		entitlements:    entitlements,
		ledger:          ledger,
		appleVerifier:   appleVerifier,
		androidVerifier: androidVerifier,
	}
}

// VerifyBookPurchase validates a one-time book purchase against the vendor
// and grants the book on success. The catalog SKU cross-check is the
// authorization boundary: a receipt only unlocks the book it was sold for.
func (s *Server) VerifyBookPurchase(ctx context.Context, req *VerifyBookPurchaseRequest) (*VerifyBookPurchaseResponse, error) {
	userID, err := s.authz.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	if req.BookID == "" || req.ProductID == "" || req.Platform == "" {
		return nil, status.Error(codes.InvalidArgument, "bookId, productId and platform are required")
	}

	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if req.UserID != "" && req.UserID != userID {
		return nil, status.Error(codes.PermissionDenied, "userId does not match the authenticated user")
	}

	proof, err := purchaseProof(platform, req.Receipt, req.PurchaseToken)
	if err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("user_id", userID),
		zap.String("book_id", req.BookID),
		zap.String("product_id", req.ProductID),
		zap.String("platform", platform.String()),
	)

	book, err := s.books.GetBook(ctx, req.BookID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "book not found")
	} else if err != nil {
		log.Warn("Failed to load book from catalog", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to load book")
	}

	if sku := book.SKUFor(platform); sku == "" || sku != req.ProductID {
		return nil, status.Error(codes.FailedPrecondition, "productId does not match the book's SKU for this platform")
	}

	receipt, err := s.verifier(platform).VerifyProduct(ctx, req.ProductID, proof)
	if err != nil {
		return nil, s.verificationFailure(log, err)
	}

	if err := s.entitlements.AddPurchasedBook(ctx, userID, req.BookID); err != nil {
		log.Warn("Failed to grant book entitlement", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to grant purchase")
	}

	// The grant already happened and the vendor-side purchase is real, so an
	// audit failure is logged for reconciliation rather than surfaced.
	if err := s.ledger.RecordPurchase(ctx, &entitlement.PurchaseRecord{
		UserID:        userID,
		BookID:        req.BookID,
		Platform:      platform,
		TransactionID: receipt.TransactionID,
		PurchaseToken: req.PurchaseToken,
		Source:        "verifyBookPurchase",
	}); err != nil {
		log.Error("Failed to append purchase audit record after grant", zap.Error(err))
	}

	log.Info("Book purchase verified", zap.String("transaction_id", receipt.TransactionID))

	return &VerifyBookPurchaseResponse{
		Success:       true,
		BookID:        req.BookID,
		TransactionID: receipt.TransactionID,
	}, nil
}

// VerifySubscription validates a subscription purchase against the vendor
// and replaces the user's subscription state on success. Subscriptions are
// app-wide, so there is no catalog cross-check; the vendor's product
// catalog is trusted.
func (s *Server) VerifySubscription(ctx context.Context, req *VerifySubscriptionRequest) (*VerifySubscriptionResponse, error) {
	userID, err := s.authz.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	if req.ProductID == "" || req.Platform == "" {
		return nil, status.Error(codes.InvalidArgument, "productId and platform are required")
	}

	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if req.UserID != "" && req.UserID != userID {
		return nil, status.Error(codes.PermissionDenied, "userId does not match the authenticated user")
	}

	proof, err := purchaseProof(platform, req.Receipt, req.PurchaseToken)
	if err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("user_id", userID),
		zap.String("product_id", req.ProductID),
		zap.String("platform", platform.String()),
	)

	receipt, err := s.verifier(platform).VerifySubscription(ctx, req.ProductID, proof)
	if err != nil {
		return nil, s.verificationFailure(log, err)
	}

	if err := s.entitlements.SetSubscription(ctx, userID, &entitlement.Subscription{
		Status:    entitlement.SubscriptionStatusActive,
		ExpiresAt: receipt.ExpiresAt,
		Platform:  platform,
		ProductID: req.ProductID,
	}); err != nil {
		log.Warn("Failed to set subscription entitlement", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to grant subscription")
	}

	if err := s.ledger.RecordSubscription(ctx, &entitlement.SubscriptionRecord{
		UserID:        userID,
		ProductID:     req.ProductID,
		Platform:      platform,
		TransactionID: receipt.TransactionID,
		PurchaseToken: req.PurchaseToken,
		ExpiresAt:     receipt.ExpiresAt,
		Source:        "verifySubscriptionPurchase",
	}); err != nil {
		log.Error("Failed to append subscription audit record after grant", zap.Error(err))
	}

	log.Info("Subscription verified",
		zap.String("transaction_id", receipt.TransactionID),
		zap.Int64("expires_at", receipt.ExpiresAt),
	)

	return &VerifySubscriptionResponse{
		Success:       true,
		ProductID:     req.ProductID,
		ExpiresAt:     receipt.ExpiresAt,
		Platform:      platform.String(),
		TransactionID: receipt.TransactionID,
	}, nil
}

func (s *Server) verifier(platform model.Platform) Verifier {
	if platform == model.PlatformIOS {
		return s.appleVerifier
	}
	return s.androidVerifier
}

func (s *Server) verificationFailure(log *zap.Logger, err error) error {
	var rejection *VerificationError
	if errors.As(err, &rejection) {
		log.Warn("Purchase rejected", zap.String("reason", rejection.Reason))
		return status.Error(codes.FailedPrecondition, rejection.Reason)
	}

	log.Warn("Failed to reach vendor verification API", zap.Error(err))
	return status.Error(codes.Internal, "failed to verify purchase")
}

func purchaseProof(platform model.Platform, receipt, purchaseToken string) (string, error) {
	switch platform {
	case model.PlatformIOS:
		if receipt == "" {
			return "", status.Error(codes.InvalidArgument, "receipt is required for ios purchases")
		}
		return receipt, nil
	default:
		if purchaseToken == "" {
			return "", status.Error(codes.InvalidArgument, "purchaseToken is required for android purchases")
		}
		return purchaseToken, nil
	}
}
