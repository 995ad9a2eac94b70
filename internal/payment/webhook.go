package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
)

// WebhookSignatureHeader は署名を運ぶヘッダー。
const WebhookSignatureHeader = "X-Razorpay-Signature"

// ErrMalformedEvent はイベントの封筒が不正な場合に返される。
var ErrMalformedEvent = errors.New("malformed webhook event")

// errRefundLookupNotImplemented は返金イベントから注文を特定できないことを表す。
// 決済IDから注文を引く索引がないため、返金イベントでは注文を更新しない。
var errRefundLookupNotImplemented = errors.New("refund lookup by payment id is not implemented")

// errMissingOrderID はイベントのnotesに注文IDがないことを表す。
var errMissingOrderID = errors.New("notes.order_id is missing")

// イベント処理の結果（メトリクスのラベル値）
const (
	eventProcessed      = "processed"
	eventFailed         = "failed"
	eventIgnored        = "ignored"
	eventNotImplemented = "not_implemented"
)

// envelopeSchema はイベントの封筒 {event, payload} のスキーマ。
const envelopeSchema = `{
	"type": "object",
	"required": ["event", "payload"],
	"properties": {
		"event": {"type": "string", "minLength": 1},
		"payload": {"type": "object"}
	}
}`

// Event はWebhookイベントの封筒。
type Event struct {
	Event   string       `json:"event"`
	Payload EventPayload `json:"payload"`
}

// EventPayload はイベントのペイロード。
type EventPayload struct {
	Payment *PaymentPayload `json:"payment"`
	Refund  *RefundPayload  `json:"refund"`
}

// PaymentPayload は決済イベントのペイロード。
// notesはentity配下に入るが、entityなしの形式も受け付ける。
type PaymentPayload struct {
	Entity *PaymentEntity `json:"entity"`
	Notes  Notes          `json:"notes"`
}

// PaymentEntity はゲートウェイの決済エンティティ。
type PaymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Notes   Notes  `json:"notes"`
}

// Notes はゲートウェイのnotes項目。
// 空のnotesは [] で送られてくるため、配列は空として扱う。
type Notes map[string]string

// UnmarshalJSON はオブジェクトの値を文字列に変換して読み込む。
func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*n = Notes{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*n = out
	return nil
}

// RefundPayload は返金イベントのペイロード。
type RefundPayload struct {
	Entity *struct {
		ID        string `json:"id"`
		PaymentID string `json:"payment_id"`
	} `json:"entity"`
}

// orderID はnotes.order_idを entity → payment の順に探す。
func (p *PaymentPayload) orderID() string {
	if p == nil {
		return ""
	}
	if p.Entity != nil && p.Entity.Notes["order_id"] != "" {
		return p.Entity.Notes["order_id"]
	}
	return p.Notes["order_id"]
}

type eventHandler func(ctx context.Context, ev *Event) error

// WebhookProcessor はゲートウェイからのWebhookを処理する。
//
// 署名検証に成功した後はイベント単位の失敗をログに残すだけで、常に受領を返す。
// ゲートウェイの再送を無限に繰り返させないため、処理は高々1回の試行とする。
type WebhookProcessor struct {
	secret   string
	orders   repository.OrderRepository
	recorder Recorder
	schema   *gojsonschema.Schema
	handlers map[string]eventHandler
}

// NewWebhookProcessor はWebhookProcessorを生成する。
func NewWebhookProcessor(secret string, orders repository.OrderRepository, recorder Recorder) (*WebhookProcessor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile webhook schema: %w", err)
	}

	p := &WebhookProcessor{
		secret:   secret,
		orders:   orders,
		recorder: recorderOrNop(recorder),
		schema:   schema,
	}
	p.handlers = map[string]eventHandler{
		"payment.captured": p.handleCaptured,
		"payment.failed":   p.handleFailed,
		"refund.created":   p.handleRefund,
		"refund.processed": p.handleRefund,
	}
	return p, nil
}

// ValidSignature は生のボディに対するHMAC-SHA256が署名と一致するかを返す。
func (p *WebhookProcessor) ValidSignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Process はWebhookを処理する。
// 署名不一致はErrInvalidSignature、封筒の形式不正はErrMalformedEventを返す。
// それ以外は個々のイベント処理が失敗してもnilを返す。
func (p *WebhookProcessor) Process(ctx context.Context, rawBody []byte, signature string) error {
	if signature == "" || !p.ValidSignature(rawBody, signature) {
		p.recorder.RecordWebhookEvent("unknown", "invalid_signature")
		return ErrInvalidSignature
	}

	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(rawBody))
	if err != nil {
		p.recorder.RecordWebhookEvent("unknown", "malformed")
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !result.Valid() {
		p.recorder.RecordWebhookEvent("unknown", "malformed")
		return fmt.Errorf("%w: %s", ErrMalformedEvent, result.Errors()[0].String())
	}

	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		p.recorder.RecordWebhookEvent("unknown", "malformed")
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	handler, ok := p.handlers[ev.Event]
	if !ok {
		p.recorder.RecordWebhookEvent("other", eventIgnored)
		slog.Info("ignoring unhandled webhook event",
			slog.String("event", ev.Event),
		)
		return nil
	}

	if err := handler(ctx, &ev); err != nil {
		outcome := eventFailed
		if errors.Is(err, errRefundLookupNotImplemented) {
			outcome = eventNotImplemented
		}
		p.recorder.RecordWebhookEvent(ev.Event, outcome)
		slog.Warn("webhook event not applied",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()),
		)
		return nil
	}

	p.recorder.RecordWebhookEvent(ev.Event, eventProcessed)
	return nil
}

func (p *WebhookProcessor) handleCaptured(ctx context.Context, ev *Event) error {
	orderID := ev.Payload.Payment.orderID()
	if orderID == "" {
		return errMissingOrderID
	}

	var gatewayOrderID, paymentID string
	if e := ev.Payload.Payment.Entity; e != nil {
		gatewayOrderID, paymentID = e.OrderID, e.ID
	}

	if err := p.orders.MarkPaid(ctx, orderID, gatewayOrderID, paymentID); err != nil {
		return fmt.Errorf("mark order %s paid: %w", orderID, err)
	}
	slog.Info("order marked paid by webhook",
		slog.String("order_id", orderID),
		slog.String("payment_id", paymentID),
	)
	return nil
}

func (p *WebhookProcessor) handleFailed(ctx context.Context, ev *Event) error {
	orderID := ev.Payload.Payment.orderID()
	if orderID == "" {
		return errMissingOrderID
	}

	if err := p.orders.UpdateStatus(ctx, orderID, model.OrderStatusFailed); err != nil {
		return fmt.Errorf("mark order %s failed: %w", orderID, err)
	}
	slog.Info("order marked failed by webhook",
		slog.String("order_id", orderID),
	)
	return nil
}

// handleRefund は返金イベントを記録する。注文は更新しない。
func (p *WebhookProcessor) handleRefund(ctx context.Context, ev *Event) error {
	attrs := []any{slog.String("event", ev.Event)}
	if r := ev.Payload.Refund; r != nil && r.Entity != nil {
		attrs = append(attrs,
			slog.String("refund_id", r.Entity.ID),
			slog.String("payment_id", r.Entity.PaymentID),
		)
	}
	slog.Info("refund event received", attrs...)
	return errRefundLookupNotImplemented
}
