package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/metrics"
	"github.com/hitoshi/loomcart/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	AllowedOrigins  []string
	CSRFConfig      middleware.CSRFConfig
	SessionConfig   middleware.SessionCookieConfig
	Limiter         middleware.Limiter
	RateLimitPolicy middleware.RateLimitPolicy

	// 認証
	AdminAuth gatekeeper.AdminAuthenticator
	UserAuth  UserAuthenticator

	// 管理API
	CouponService      CouponServiceInterface
	OrderStatusService OrderStatusServiceInterface
	UserRoleService    UserRoleServiceInterface

	// 決済
	PaymentOrderService PaymentOrderServiceInterface
	PaymentVerifier     PaymentVerifierInterface
	WebhookProcessor    WebhookProcessorInterface

	// アップロード
	UploadService  UploadServiceInterface
	UploadMaxBytes int64

	// 運用
	DB       Pinger
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	Logging → Recovery → SecurityHeaders
//
// CORSはルートグループごとに設定する。
//   - ブラウザから呼ばれるAPI: 許可リストの完全一致、credentialsあり
//   - /health, /metrics: ワイルドカード、credentialsなし
//   - Webhook: サーバー間通信のためCORSなし
//
// 各ルートはOPTIONSを受けられるようr.Handleで登録し、メソッドはハンドラー側で確認する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	pipeline := gatekeeper.New(gatekeeper.Config{
		Limiter:  deps.Limiter,
		Policy:   deps.RateLimitPolicy,
		Auth:     deps.AdminAuth,
		Recorder: deps.Metrics,
	})
	adminHandler := NewAdminHandler(pipeline, deps.CouponService, deps.OrderStatusService, deps.UserRoleService)
	sessionHandler := NewSessionHandler(deps.SessionConfig)
	paymentHandler := NewPaymentHandler(deps.UserAuth, deps.PaymentOrderService, deps.PaymentVerifier, deps.WebhookProcessor)
	uploadHandler := NewUploadHandler(deps.UploadService, deps.UploadMaxBytes)
	healthHandler := NewHealthHandler(deps.DB)

	rateLimit := middleware.NewRateLimitMiddleware(deps.Limiter, deps.RateLimitPolicy, deps.Metrics)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- ブラウザから呼ばれるAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))

		r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 管理API（ガードはパイプライン内で順序通りに実行される）
		r.Route("/api/admin", func(r chi.Router) {
			r.Handle("/coupons", adminHandler.Coupons())
			r.Handle("/orders/status", adminHandler.OrderStatus())
			r.Handle("/user-roles", adminHandler.UserRoles())
		})

		// セッションCookie
		r.Handle("/api/session", postOnly(rateLimit(http.HandlerFunc(sessionHandler.SetSession))))
		r.Handle("/api/session/clear", postOnly(http.HandlerFunc(sessionHandler.ClearSession)))

		// 決済
		r.Handle("/api/payments/orders", postOnly(http.HandlerFunc(paymentHandler.CreateOrder)))
		r.Handle("/api/payments/verify", postOnly(http.HandlerFunc(paymentHandler.Verify)))

		// アップロード: CSRF → レート制限 → 検査
		r.Handle("/api/uploads/scan", postOnly(csrf(rateLimit(http.HandlerFunc(uploadHandler.Scan)))))
	})

	// --- サーバー間通信 ---
	r.Handle("/api/payments/webhook", postOnly(http.HandlerFunc(paymentHandler.Webhook)))

	// --- 公開の読み取り専用エンドポイント ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPublicCORSMiddleware())

		r.Get("/health", healthHandler.Health)
		if deps.Gatherer != nil {
			r.Handle("/metrics", metrics.Handler(deps.Gatherer))
		}
	})

	return r
}

// postOnly はPOST以外を拒否する。OPTIONSはCORSミドルウェアが処理しなかった場合に204を返す。
func postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			next.ServeHTTP(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r)
		}
	})
}
