// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"token-issuer-service/config"
	"token-issuer-service/internal/handler"
	"token-issuer-service/internal/infra"
	"token-issuer-service/internal/metrics"
	"token-issuer-service/internal/repository"
	"token-issuer-service/internal/usecase"
	"token-issuer-service/migrations"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	infra.SetupLogger(cfg, infra.ParseLogLevel(cfg.LogLevel))

	repo, closeStore, err := openSlotStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to init keystore backend", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	sealer, closeSealer, err := openSealer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init KMS client", "error", err)
		os.Exit(1)
	}
	defer closeSealer()

	// DI
	m := metrics.New()
	keystore := usecase.NewKeystoreService(repo, sealer)
	tokens := usecase.NewTokenService(keystore, m)
	h := handler.NewTokenHandler(keystore, tokens, infra.NewRandomSource(), m, time.Now)
	router := handler.NewRouter(h, cfg, m.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "backend", cfg.StoreBackend)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openSlotStore は設定されたバックエンドのスロットストアを開く。
func openSlotStore(ctx context.Context, cfg *config.Config) (usecase.SlotRepository, func(), error) {
	if cfg.StoreBackend == config.StoreBackendRedis {
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Error("failed to close redis client", "error", err)
			}
		}
		return repository.NewRedisSlotRepository(client, cfg.RedisKeyPrefix), closeFn, nil
	}

	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	if cfg.AutoMigrate {
		service := usecase.NewMigrationService(repository.NewMigrationRepository(db), migrations.FS)
		applied, err := service.ApplyMigrations(ctx)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("applying migrations: %w", err)
		}
		slog.Info("migrations applied", "count", applied)
	}

	return repository.NewSlotRepository(db), closeFn, nil
}

// openSealer は KMS_KEY_NAME が設定されていればCloud KMS、無ければ平文のSealerを返す。
func openSealer(ctx context.Context, cfg *config.Config) (usecase.Sealer, func(), error) {
	if cfg.KMSKeyName == "" {
		slog.Warn("KMS_KEY_NAME is not set; private key is stored unencrypted")
		return infra.PlaintextSealer{}, func() {}, nil
	}

	client, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close KMS client", "error", err)
		}
	}
	return client, closeFn, nil
}
