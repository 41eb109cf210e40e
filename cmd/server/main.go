package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/versebook/verse-server/auth"
	"github.com/versebook/verse-server/callable"
	catcache "github.com/versebook/verse-server/catalog/cache"
	catfirestore "github.com/versebook/verse-server/catalog/firestore"
	"github.com/versebook/verse-server/config"
	entfirestore "github.com/versebook/verse-server/entitlement/firestore"
	"github.com/versebook/verse-server/iap"
	"github.com/versebook/verse-server/iap/android"
	"github.com/versebook/verse-server/iap/apple"
)

const catalogCacheTTL = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID})
	if err != nil {
		log.Fatal("Failed to initialize firebase app", zap.Error(err))
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		log.Fatal("Failed to initialize firebase auth", zap.Error(err))
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		log.Fatal("Failed to initialize firestore", zap.Error(err))
	}
	defer func() { _ = firestoreClient.Close() }()

	appleVerifier := apple.NewVerifier(cfg.AppleSharedSecret)
	if cfg.AppleSharedSecret == "" {
		log.Warn("App Store shared secret not configured; subscription verification on ios will fail")
	}

	var androidVerifier iap.Verifier
	if creds, err := cfg.PlayCredentials(); errors.Is(err, config.ErrNoPlayCredentials) {
		log.Warn("Google Play service account not configured; android verification will fail")
		androidVerifier = iap.NewUnconfigured("Google Play service account is not configured")
	} else if err != nil {
		log.Fatal("Failed to load Google Play credentials", zap.Error(err))
	} else {
		androidVerifier, err = android.NewVerifier(ctx, creds, cfg.AndroidPackageName)
		if err != nil {
			log.Fatal("Failed to initialize Google Play verifier", zap.Error(err))
		}
	}

	books := catcache.NewInCache(catfirestore.NewInFirestore(firestoreClient), catalogCacheTTL)
	entitlements := entfirestore.NewInFirestore(firestoreClient)

	server := iap.NewServer(
		log.Named("iap"),
		auth.NewContextAuthorizer(),
		books,
		entitlements,
		entitlements,
		appleVerifier,
		androidVerifier,
	)

	gateway := callable.NewGateway(log.Named("callable"), auth.NewFirebaseAuthenticator(authClient))
	gateway.Handle("verifyBookPurchase", callable.JSON(server.VerifyBookPurchase))
	gateway.Handle("verifySubscriptionPurchase", callable.JSON(server.VerifySubscription))

	chain := alice.New(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler).Then(gateway)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: chain,
	}

	go func() {
		log.Info("Listening", zap.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Forced shutdown", zap.Error(err))
	}
}
