// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, order, coupon, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeCSRFFailed       = "CSRF_VALIDATION_FAILED"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeOrderNotFound    = "ORDER_NOT_FOUND"
	ErrCodeCouponNotFound   = "COUPON_NOT_FOUND"
	ErrCodeCouponCodeExists = "COUPON_CODE_EXISTS"
	ErrCodeInvalidStatus    = "INVALID_STATUS"
	ErrCodeInvalidAmount    = "INVALID_AMOUNT"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeUnsafeUpload     = "UNSAFE_UPLOAD"
	ErrCodeUpstreamFailure  = "UPSTREAM_FAILURE"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewBadRequestError は入力不正エラーを生成する。
func NewBadRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeBadRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewUnauthorizedError は認証情報の欠落・不正エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: "auth",
		Action:   "Sign in with an administrator account.",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page to obtain a new token and try again.",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドのエラーを生成する。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("Method %s is not allowed.", method),
		Category: "validation",
		Action:   "Use a supported HTTP method.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("Order not found: %s", orderID),
		Category: "order",
		Action:   "Check the order ID.",
	}
}

// NewCouponNotFoundError はクーポン未検出エラーを生成する。
func NewCouponNotFoundError(couponID string) *APIError {
	return &APIError{
		Code:     ErrCodeCouponNotFound,
		Message:  fmt.Sprintf("Coupon not found: %s", couponID),
		Category: "coupon",
		Action:   "Check the coupon ID.",
	}
}

// NewCouponCodeExistsError はクーポンコード重複エラーを生成する。
func NewCouponCodeExistsError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeCouponCodeExists,
		Message:  fmt.Sprintf("A coupon with code %s already exists.", code),
		Category: "coupon",
		Action:   "Choose a different coupon code.",
	}
}

// NewInvalidStatusError は許可されていない注文ステータスのエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Invalid order status: %s", status),
		Category: "validation",
		Action:   "Use one of pending, processing, shipped, delivered, cancelled.",
	}
}

// NewInvalidAmountError は決済金額の範囲外エラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "Amount must be an integer number of paise between 100 and 1000000000.",
		Category: "payment",
		Action:   "Check the order total and try again.",
	}
}

// NewInvalidSignatureError は決済署名の検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Payment signature verification failed.",
		Category: "payment",
		Action:   "Contact support if the amount was debited.",
	}
}

// NewUpstreamFailureError は外部サービス呼び出しの失敗エラーを生成する。
// 外部サービスの詳細はメッセージに含めない。
func NewUpstreamFailureError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  fmt.Sprintf("The %s service is currently unavailable.", service),
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewServiceUnavailableError は依存コンポーネント停止時のエラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "The service is temporarily unavailable.",
		Category: "system",
		Action:   "Please try again later.",
	}
}
