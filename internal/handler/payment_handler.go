package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/payment"
)

// maxWebhookBytes はWebhookボディの上限。
const maxWebhookBytes = 1 << 20

// UserAuthenticator はベアラートークンから呼び出し元を解決する。ロールは問わない。
type UserAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

// PaymentOrderServiceInterface は注文作成ハンドラーが必要とするサービスインターフェース。
type PaymentOrderServiceInterface interface {
	CreateOrder(ctx context.Context, caller *model.Principal, in payment.CreateOrderInput) (*payment.OrderResponse, error)
}

// PaymentVerifierInterface は署名検証ハンドラーが必要とするサービスインターフェース。
type PaymentVerifierInterface interface {
	Verify(ctx context.Context, in payment.VerifyInput) (*payment.VerifyResponse, error)
}

// WebhookProcessorInterface はWebhookハンドラーが必要とするサービスインターフェース。
type WebhookProcessorInterface interface {
	Process(ctx context.Context, rawBody []byte, signature string) error
}

// PaymentHandler は決済関連のHTTPハンドラー。
type PaymentHandler struct {
	auth     UserAuthenticator
	orders   PaymentOrderServiceInterface
	verifier PaymentVerifierInterface
	webhooks WebhookProcessorInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(auth UserAuthenticator, orders PaymentOrderServiceInterface, verifier PaymentVerifierInterface, webhooks WebhookProcessorInterface) *PaymentHandler {
	return &PaymentHandler{
		auth:     auth,
		orders:   orders,
		verifier: verifier,
		webhooks: webhooks,
	}
}

// CreateOrder はゲートウェイに注文を作成する。
// POST /api/payments/orders
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Authenticate(r.Context(), middleware.BearerToken(r))
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}
	ctx := middleware.ContextWithPrincipal(r.Context(), caller)

	var in payment.CreateOrderInput
	if err := gatekeeper.DecodeJSON(r, &in); err != nil {
		middleware.WriteAPIError(w, model.NewBadRequestError(err.Error()))
		return
	}

	resp, err := h.orders.CreateOrder(ctx, caller, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Verify はクライアントから報告された決済結果の署名を検証する。
// POST /api/payments/verify
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var in payment.VerifyInput
	if err := gatekeeper.DecodeJSON(r, &in); err != nil {
		middleware.WriteAPIError(w, model.NewBadRequestError(err.Error()))
		return
	}

	resp, err := h.verifier.Verify(r.Context(), in)
	if errors.Is(err, payment.ErrInvalidSignature) {
		middleware.WriteJSON(w, http.StatusBadRequest, resp)
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Webhook はゲートウェイからのイベントを受け取る。
// POST /api/payments/webhook
//
// 署名は生のボディに対して計算されるため、デコード前のバイト列をそのまま渡す。
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		middleware.WriteAPIError(w, model.NewBadRequestError("request body is too large or unreadable"))
		return
	}

	err = h.webhooks.Process(r.Context(), body, r.Header.Get(payment.WebhookSignatureHeader))
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, payment.ErrInvalidSignature):
		slog.Warn("webhook signature verification failed",
			slog.String("client", middleware.ClientIP(r)),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSignatureError())
	case errors.Is(err, payment.ErrMalformedEvent):
		middleware.WriteAPIError(w, model.NewBadRequestError("malformed event"))
	default:
		handleServiceError(w, r, err)
	}
}
