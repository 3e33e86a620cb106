package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"inkwell/core/internal/app"
	"inkwell/core/internal/blog"
	"inkwell/core/internal/config"
	"inkwell/core/internal/identity"
	"inkwell/core/internal/logger"
	"inkwell/core/internal/session"
	"inkwell/core/internal/storage"
	"inkwell/core/internal/store"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, zlog); err != nil {
		zlog.Fatal("migrations failed", zap.Error(err))
	}
	dataStore := store.NewPostgresStore(db)

	bucket, err := storage.NewMinioBucket(ctx, storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		zlog.Fatal("object storage connection failed", zap.Error(err))
	}

	sessions, err := identity.NewSessionCache(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("redis connection failed", zap.Error(err))
	}
	defer sessions.Close()

	provider := identity.NewLocalProvider(dataStore, sessions, cfg.SessionSecret, cfg.SessionTTL)

	authState := session.NewState()
	synchronizer := session.NewSynchronizer(provider, authState, zlog)
	synchronizer.Start(ctx)

	articles := blog.New(dataStore, bucket, authState, zlog)

	httpServer := app.NewHTTPServer(articles, provider, authState, dataStore, zlog, cfg.CORSOrigin, cfg.PageSize)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("inkwell core listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("shutdown error", zap.Error(err))
	}

	cancel()
	select {
	case <-synchronizer.Done():
	case <-time.After(5 * time.Second):
	}
}
