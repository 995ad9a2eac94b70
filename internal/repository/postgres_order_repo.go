package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/loomcart/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	o := &model.Order{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, amount, razorpay_order_id, razorpay_payment_id,
		        created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Amount, &o.RazorpayOrderID, &o.RazorpayPaymentID,
		&o.CreatedAt, &o.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}
	return o, nil
}

// UpdateStatus は注文ステータスを更新する。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectAffected(result, "order", id)
}

// MarkPaid は注文をpaidにする。
func (r *PostgresOrderRepo) MarkPaid(ctx context.Context, id, gatewayOrderID, gatewayPaymentID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = 'paid',
		     razorpay_order_id = COALESCE(NULLIF($2, ''), razorpay_order_id),
		     razorpay_payment_id = COALESCE(NULLIF($3, ''), razorpay_payment_id),
		     updated_at = now()
		 WHERE id = $1`,
		id, gatewayOrderID, gatewayPaymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	return expectAffected(result, "order", id)
}

// expectAffected は更新件数が0件の場合にErrNotFoundをラップして返す。
func expectAffected(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
