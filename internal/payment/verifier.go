package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/loomcart/internal/repository"
)

// ErrInvalidSignature は署名が一致しない場合に返される。
var ErrInvalidSignature = errors.New("invalid payment signature")

// VerifyInput はクライアントが報告する決済結果。
type VerifyInput struct {
	RazorpayOrderID   string        `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string        `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string        `json:"razorpay_signature" validate:"required,hexadecimal"`
	OrderDetails      *OrderDetails `json:"order_details"`
}

// OrderDetails は決済対象のストア側注文。
type OrderDetails struct {
	OrderID string `json:"order_id"`
}

// VerifyResponse は署名検証の応答。
type VerifyResponse struct {
	Success   bool   `json:"success"`
	Verified  bool   `json:"verified"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
}

// Sign は orderID + "|" + paymentID のHMAC-SHA256を16進で返す。
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier はクライアントから報告された決済結果の署名を検証する。
type Verifier struct {
	secret    string
	orders    repository.OrderRepository
	marksPaid bool
	recorder  Recorder
}

// NewVerifier はVerifierを生成する。
// marksPaidがtrueの場合、検証に成功した注文をpaidにする。
func NewVerifier(secret string, orders repository.OrderRepository, marksPaid bool, recorder Recorder) *Verifier {
	return &Verifier{
		secret:    secret,
		orders:    orders,
		marksPaid: marksPaid,
		recorder:  recorderOrNop(recorder),
	}
}

// Valid は署名が一致するかを返す。
func (v *Verifier) Valid(orderID, paymentID, signature string) bool {
	expected := Sign(v.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Verify は署名を検証する。一致しない場合はverified:falseの応答とErrInvalidSignatureを返し、
// 状態は変更しない。
// 注文の更新に失敗しても検証結果は変わらない。最終的な状態はWebhookで確定する。
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (*VerifyResponse, error) {
	resp := &VerifyResponse{
		PaymentID: in.RazorpayPaymentID,
		OrderID:   in.RazorpayOrderID,
	}

	if !v.Valid(in.RazorpayOrderID, in.RazorpayPaymentID, in.RazorpaySignature) {
		v.recorder.RecordPaymentVerification("invalid")
		slog.Warn("payment signature mismatch",
			slog.String("gateway_order_id", in.RazorpayOrderID),
			slog.String("payment_id", in.RazorpayPaymentID),
		)
		return resp, ErrInvalidSignature
	}

	resp.Success = true
	resp.Verified = true
	v.recorder.RecordPaymentVerification("verified")

	if v.marksPaid && in.OrderDetails != nil && in.OrderDetails.OrderID != "" {
		v.markPaid(ctx, in)
	}
	return resp, nil
}

func (v *Verifier) markPaid(ctx context.Context, in VerifyInput) {
	orderID := in.OrderDetails.OrderID
	if uuid.Validate(orderID) != nil {
		slog.Warn("verified payment references malformed order id",
			slog.String("order_id", orderID),
		)
		return
	}
	if err := v.orders.MarkPaid(ctx, orderID, in.RazorpayOrderID, in.RazorpayPaymentID); err != nil {
		slog.Error("failed to mark order paid after verification",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Info("order marked paid after verification",
		slog.String("order_id", orderID),
		slog.String("payment_id", in.RazorpayPaymentID),
	)
}
