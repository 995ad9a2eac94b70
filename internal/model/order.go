package model

import "time"

// OrderStatus は注文ステータスを表す。
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusFailed     OrderStatus = "failed"
)

// IsLogisticsStatus は管理者が手動で設定できる物流ステータスかどうかを判定する。
// paid/failedは決済経路からのみ設定される。
func (s OrderStatus) IsLogisticsStatus() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order は注文を表す。
// ステータス遷移は有限状態機械で検証しない。
type Order struct {
	ID                string
	UserID            string
	Status            OrderStatus
	Amount            int64 // 最小通貨単位（paise）
	RazorpayOrderID   string
	RazorpayPaymentID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PaymentOrder は決済ゲートウェイ側で作成された注文の冪等性レコード。
// 同一の冪等性キーでの再送信はこのレコードに集約される。
type PaymentOrder struct {
	IdempotencyKey string
	UserID         string
	GatewayOrderID string
	Amount         int64
	Currency       string
	Receipt        string
	CreatedAt      time.Time
}
