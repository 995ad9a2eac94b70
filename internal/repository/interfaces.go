// Package repository はデータ永続化のインターフェースを定義する。
//
// 接続はサービスロール権限で行われ、行レベルの認可は適用されない。
// 呼び出し側（ゲートキーパー）が認可境界を担う。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
// 検索系メソッドは見つからない場合にnilを返し、このエラーは返さない。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate は一意制約違反の場合に返される。
var ErrDuplicate = errors.New("duplicate record")

// OrderRepository は注文データの永続化インターフェース。
type OrderRepository interface {
	// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Order, error)

	// UpdateStatus は注文ステータスとupdated_atを更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error

	// MarkPaid は注文をpaidにし、ゲートウェイの注文ID・決済IDを記録する。
	// 空文字のIDは既存値を維持する。
	MarkPaid(ctx context.Context, id, gatewayOrderID, gatewayPaymentID string) error
}

// CouponRepository はクーポンデータの永続化インターフェース。
type CouponRepository interface {
	// FindByID は指定IDのクーポンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Coupon, error)

	// Create はクーポンを作成する。コードが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, coupon *model.Coupon) error

	// Update はクーポンの編集可能フィールドを更新する。
	Update(ctx context.Context, coupon *model.Coupon) error

	// UpdateStatus はstatusのみを更新する。
	UpdateStatus(ctx context.Context, id string, status model.CouponStatus) error

	// Delete は指定IDのクーポンを削除する。
	Delete(ctx context.Context, id string) error
}

// UserRoleRepository はロールデータの参照インターフェース。
type UserRoleRepository interface {
	// HasRole は (userID, role) の行が存在するかを返す。
	HasRole(ctx context.Context, userID, role string) (bool, error)

	// ListWithProfiles はロール行をプロフィール表示項目と結合して
	// created_at降順で返す。
	ListWithProfiles(ctx context.Context) ([]model.UserRole, error)
}

// AuditLogRepository は監査ログの書き込みインターフェース。
type AuditLogRepository interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
}

// PaymentOrderRepository はゲートウェイ注文の冪等性レコードの永続化インターフェース。
type PaymentOrderRepository interface {
	// FindByKey は冪等性キーでレコードを検索する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.PaymentOrder, error)

	// Create はレコードを作成する。既に存在する場合は何もしない。
	Create(ctx context.Context, order *model.PaymentOrder) error
}

// RateLimitRepository は共有ストア上の固定ウィンドウカウンタ。
type RateLimitRepository interface {
	// Increment はキーのカウンタを原子的に加算し、加算後の値とウィンドウ開始時刻を返す。
	// ウィンドウが経過している場合はカウンタを1にリセットする。
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (count int, windowStart time.Time, err error)

	// DeleteExpired はwindow_startが指定時刻より古い行を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
