package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/payment"
)

func signWebhook(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func paidCandidate() *model.Order {
	return &model.Order{
		ID:        pendingOrder,
		UserID:    customerID,
		Status:    model.OrderStatusPending,
		Amount:    249900,
		CreatedAt: time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreatePaymentOrder(t *testing.T) {
	t.Run("creates gateway order", func(t *testing.T) {
		env := newTestEnv(t)

		req := withBearer(jsonRequest(http.MethodPost, "/api/payments/orders",
			`{"amount":249900,"currency":"INR","receipt":"rcpt_kanjivaram_01"}`), customerToken)
		w := env.do(req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, "order_gw_1", body["orderId"])
		assert.Equal(t, float64(249900), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "rcpt_kanjivaram_01", body["receipt"])
		assert.Equal(t, 1, env.gateway.calls)
	})

	t.Run("missing credentials", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(jsonRequest(http.MethodPost, "/api/payments/orders", `{"amount":249900}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 0, env.gateway.calls)
	})

	t.Run("amount below minimum", func(t *testing.T) {
		env := newTestEnv(t)

		req := withBearer(jsonRequest(http.MethodPost, "/api/payments/orders", `{"amount":99}`), customerToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_AMOUNT", decodeBody(t, w.Body.String())["code"])
		assert.Equal(t, 0, env.gateway.calls)
	})

	t.Run("fractional amount", func(t *testing.T) {
		env := newTestEnv(t)

		req := withBearer(jsonRequest(http.MethodPost, "/api/payments/orders", `{"amount":100.5}`), customerToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, env.gateway.calls)
	})

	t.Run("gateway status is forwarded", func(t *testing.T) {
		env := newTestEnv(t)
		env.gateway.err = &payment.GatewayError{StatusCode: http.StatusBadRequest, Code: "BAD_REQUEST_ERROR", Description: "amount exceeds maximum"}

		req := withBearer(jsonRequest(http.MethodPost, "/api/payments/orders", `{"amount":249900}`), customerToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, "UPSTREAM_FAILURE", body["code"])
		assert.NotContains(t, w.Body.String(), "amount exceeds maximum")
	})

	t.Run("gateway failure without status", func(t *testing.T) {
		env := newTestEnv(t)
		env.gateway.err = &payment.GatewayError{Description: "connection reset"}

		req := withBearer(jsonRequest(http.MethodPost, "/api/payments/orders", `{"amount":249900}`), customerToken)
		w := env.do(req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestVerifyPayment(t *testing.T) {
	verifyBody := func(signature string) string {
		return `{"razorpay_order_id":"order_gw_1","razorpay_payment_id":"pay_29QQoUBi66xm2f",` +
			`"razorpay_signature":"` + signature + `","order_details":{"order_id":"` + pendingOrder + `"}}`
	}

	t.Run("valid signature marks order paid", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))

		sig := payment.Sign(keySecret, "order_gw_1", "pay_29QQoUBi66xm2f")
		w := env.do(jsonRequest(http.MethodPost, "/api/payments/verify", verifyBody(sig)))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, true, body["verified"])
		assert.Equal(t, "pay_29QQoUBi66xm2f", body["payment_id"])
		assert.Equal(t, model.OrderStatusPaid, env.orders.status(pendingOrder))
	})

	t.Run("tampered signature", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))

		sig := payment.Sign("wrong-secret", "order_gw_1", "pay_29QQoUBi66xm2f")
		w := env.do(jsonRequest(http.MethodPost, "/api/payments/verify", verifyBody(sig)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w.Body.String())
		assert.Equal(t, false, body["verified"])
		assert.Equal(t, model.OrderStatusPending, env.orders.status(pendingOrder))
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(jsonRequest(http.MethodPost, "/api/payments/verify", `{"razorpay_order_id":"order_gw_1"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "BAD_REQUEST", decodeBody(t, w.Body.String())["code"])
	})
}

func TestWebhook(t *testing.T) {
	captured := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_29QQoUBi66xm2f",` +
		`"order_id":"order_gw_1","status":"captured","notes":{"order_id":"` + pendingOrder + `"}}}}}`

	webhookRequest := func(body, signature string) *http.Request {
		req := jsonRequest(http.MethodPost, "/api/payments/webhook", body)
		if signature != "" {
			req.Header.Set(payment.WebhookSignatureHeader, signature)
		}
		return req
	}

	t.Run("captured event marks order paid", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))

		w := env.do(webhookRequest(captured, signWebhook(captured)))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decodeBody(t, w.Body.String())["received"])
		assert.Equal(t, model.OrderStatusPaid, env.orders.status(pendingOrder))
	})

	t.Run("invalid signature", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))

		w := env.do(webhookRequest(captured, signWebhook(captured+" ")))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_SIGNATURE", decodeBody(t, w.Body.String())["code"])
		assert.Equal(t, model.OrderStatusPending, env.orders.status(pendingOrder))
	})

	t.Run("missing signature", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))

		w := env.do(webhookRequest(captured, ""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, model.OrderStatusPending, env.orders.status(pendingOrder))
	})

	t.Run("malformed envelope", func(t *testing.T) {
		env := newTestEnv(t)
		body := `{"payload":{}}`

		w := env.do(webhookRequest(body, signWebhook(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown order is still acknowledged", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(webhookRequest(captured, signWebhook(captured)))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("refund event is acknowledged", func(t *testing.T) {
		env := newTestEnv(t, withOrders(paidCandidate()))
		body := `{"event":"refund.created","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_29QQoUBi66xm2f"}}}}`

		w := env.do(webhookRequest(body, signWebhook(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.OrderStatusPending, env.orders.status(pendingOrder))
	})
}
