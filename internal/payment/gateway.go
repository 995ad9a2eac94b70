// Package payment は決済ゲートウェイとの連携を提供する。
//
// 注文作成、クライアントから報告された決済結果の署名検証、
// ゲートウェイからのWebhook処理の3経路からなる。
// 後者2つはどちらも注文をpaidにできる。Webhookが正であり、
// 署名検証経由の更新は設定で無効にできる。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultGatewayRate    = 5
	maxGatewayResponse    = 1 << 20
)

// OrderRequest はゲートウェイに送る注文作成リクエスト。
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// GatewayOrder はゲートウェイが返す注文。
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway は決済ゲートウェイのインターフェース。
type Gateway interface {
	// CreateOrder は注文を作成する。同じ冪等性キーの再送信はゲートウェイ側で1件に集約される。
	CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*GatewayOrder, error)
}

// GatewayError はゲートウェイが2xx以外を返したことを表す。
// StatusCodeはそのまま呼び出し元へ転送する。Descriptionはログ専用で応答には含めない。
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway returned status %d (%s): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("gateway returned status %d", e.StatusCode)
}

// RazorpayConfig はRazorpay APIクライアントの設定。
type RazorpayConfig struct {
	BaseURL    string // 例: https://api.razorpay.com（末尾スラッシュなし）
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
	RatePerSec float64 // 送信レート。0以下の場合はデフォルト値
}

// RazorpayClient はRazorpay Orders APIのクライアント。
// 送信はrate.Limiterで平準化し、ゲートウェイ側のレート制限に達しないようにする。
type RazorpayClient struct {
	config  RazorpayConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewRazorpayClient はRazorpayClientを生成する。
func NewRazorpayClient(config RazorpayConfig) *RazorpayClient {
	if config.Timeout <= 0 {
		config.Timeout = defaultGatewayTimeout
	}
	if config.RatePerSec <= 0 {
		config.RatePerSec = defaultGatewayRate
	}
	burst := int(config.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &RazorpayClient{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSec), burst),
	}
}

// razorpayErrorBody はRazorpayのエラーレスポンス。
type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder はPOST /v1/ordersで注文を作成する。
func (c *RazorpayClient) CreateOrder(ctx context.Context, order OrderRequest, idempotencyKey string) (*GatewayOrder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gateway rate limiter: %w", err)
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode}
		var eb razorpayErrorBody
		if json.Unmarshal(body, &eb) == nil {
			gwErr.Code = eb.Error.Code
			gwErr.Description = eb.Error.Description
		}
		return nil, gwErr
	}

	var created GatewayOrder
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("empty id in order response")
	}
	return &created, nil
}

// compile-time interface check
var _ Gateway = (*RazorpayClient)(nil)
