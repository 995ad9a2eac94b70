package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/loomcart/internal/audit"
	"github.com/hitoshi/loomcart/internal/auth"
	"github.com/hitoshi/loomcart/internal/config"
	"github.com/hitoshi/loomcart/internal/coupon"
	"github.com/hitoshi/loomcart/internal/database"
	"github.com/hitoshi/loomcart/internal/handler"
	"github.com/hitoshi/loomcart/internal/logger"
	"github.com/hitoshi/loomcart/internal/metrics"
	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/order"
	"github.com/hitoshi/loomcart/internal/payment"
	"github.com/hitoshi/loomcart/internal/repository"
	"github.com/hitoshi/loomcart/internal/security"
	"github.com/hitoshi/loomcart/internal/upload"
	"github.com/hitoshi/loomcart/internal/userrole"
	"github.com/hitoshi/loomcart/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Components はserveが起動する部品。
type Components struct {
	Router  http.Handler
	Cleanup *cleanup.Job
}

// Build は設定とDB接続から全依存関係をワイヤリングする。
// DBへの接続はリクエスト処理時まで行わない。
func Build(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*Components, error) {
	// 1. リポジトリ
	orderRepo := repository.NewPostgresOrderRepo(db)
	couponRepo := repository.NewPostgresCouponRepo(db)
	roleRepo := repository.NewPostgresUserRoleRepo(db)
	auditRepo := repository.NewPostgresAuditLogRepo(db)
	paymentOrderRepo := repository.NewPostgresPaymentOrderRepo(db)
	rateLimitRepo := repository.NewPostgresRateLimitRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 認証（JWTシークレットがあればローカル検証、なければAuth API）
	var idp auth.IdentityProvider
	if cfg.SupabaseJWTSecret != "" {
		idp = auth.NewJWTIdentityProvider(cfg.SupabaseJWTSecret)
	} else {
		idp = auth.NewSupabaseIdentityProvider(auth.SupabaseConfig{
			URL:     cfg.SupabaseURL,
			AnonKey: cfg.SupabaseAnonKey,
		})
	}
	authenticator := auth.NewAuthenticator(idp, roleRepo)

	// 4. レート制限
	limiterCfg := middleware.RateLimiterConfig{
		Window: cfg.RateLimitWindow,
		Max:    cfg.RateLimitMax,
	}
	var limiter middleware.Limiter
	var cleanupJob *cleanup.Job
	switch cfg.RateLimitBackend {
	case "postgres":
		limiter = middleware.NewSharedLimiter(rateLimitRepo, limiterCfg)
		cleanupJob = cleanup.NewJob(nil, rateLimitRepo, nil, cfg.RateLimitWindow, slog.Default())
	default:
		memory := middleware.NewFixedWindowLimiter(limiterCfg)
		limiter = memory
		cleanupJob = cleanup.NewJob(memory, nil, collector, cfg.RateLimitWindow, slog.Default())
	}

	// 5. ドメインサービス
	auditLogger := audit.NewLogger(auditRepo)
	couponService := coupon.NewService(couponRepo, auditLogger, security.NewTextSanitizer())
	orderService := order.NewService(orderRepo, auditLogger)
	roleService := userrole.NewService(roleRepo)

	gateway := payment.NewRazorpayClient(payment.RazorpayConfig{
		BaseURL:    cfg.RazorpayAPIURL,
		KeyID:      cfg.RazorpayKeyID,
		KeySecret:  cfg.RazorpayKeySecret,
		Timeout:    cfg.GatewayTimeout,
		RatePerSec: cfg.GatewayRatePerSec,
	})
	paymentOrders := payment.NewOrderService(gateway, paymentOrderRepo, collector)
	verifier := payment.NewVerifier(cfg.RazorpayKeySecret, orderRepo, cfg.VerifyMarksPaid, collector)
	webhooks, err := payment.NewWebhookProcessor(cfg.RazorpayWebhookSecret, orderRepo, collector)
	if err != nil {
		return nil, err
	}

	storage := upload.NewSupabaseStorage(upload.SupabaseStorageConfig{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.StorageBucket,
	})
	uploadService := upload.NewService(upload.NewScanner(), storage, collector)

	// 6. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.CSRFMaxAge,
		},
		SessionConfig: middleware.SessionCookieConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		Limiter:         limiter,
		RateLimitPolicy: middleware.RateLimitPolicy{FailOpen: cfg.RateLimitFailOpen},

		AdminAuth: authenticator,
		UserAuth:  authenticator,

		CouponService:      couponService,
		OrderStatusService: orderService,
		UserRoleService:    roleService,

		PaymentOrderService: paymentOrders,
		PaymentVerifier:     verifier,
		WebhookProcessor:    webhooks,

		UploadService:  uploadService,
		UploadMaxBytes: cfg.UploadMaxBytes,

		DB:       db,
		Metrics:  collector,
		Gatherer: reg,
	})

	return &Components{Router: router, Cleanup: cleanupJob}, nil
}

// newRegistry はアプリケーション用のメトリクスレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ワイヤリング
	components, err := Build(cfg, db, newRegistry())
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      components.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go components.Cleanup.Start(ctx, cfg.CleanupInterval)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("rate_limit_backend", cfg.RateLimitBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	state, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.Uint64("schema_version", uint64(state.Version)),
		slog.Bool("applied", state.Applied),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はSERVER_PORTを返す。未設定の場合は8080。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
