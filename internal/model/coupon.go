package model

import "time"

// DiscountType はクーポンの割引種別を表す。
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// CouponStatus はクーポンの有効状態を表す。
type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "active"
	CouponStatusInactive CouponStatus = "inactive"
)

// Toggled は反転したステータスを返す。
func (s CouponStatus) Toggled() CouponStatus {
	if s == CouponStatusActive {
		return CouponStatusInactive
	}
	return CouponStatusActive
}

// Coupon は割引クーポンを表す。
type Coupon struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	Description    string       `json:"description"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountValue  int64        `json:"discount_value"`
	MinOrderAmount int64        `json:"min_order_amount"`
	MaxUses        int          `json:"max_uses"`
	UsedCount      int          `json:"used_count"`
	Status         CouponStatus `json:"status"`
	ValidFrom      *time.Time   `json:"valid_from,omitempty"`
	ValidUntil     *time.Time   `json:"valid_until,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
