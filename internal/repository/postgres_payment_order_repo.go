package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/loomcart/internal/model"
)

// PostgresPaymentOrderRepo はPostgreSQLを使用した冪等性レコードのリポジトリ。
type PostgresPaymentOrderRepo struct {
	db *sql.DB
}

// NewPostgresPaymentOrderRepo はPostgresPaymentOrderRepoを生成する。
func NewPostgresPaymentOrderRepo(db *sql.DB) *PostgresPaymentOrderRepo {
	return &PostgresPaymentOrderRepo{db: db}
}

// FindByKey は冪等性キーでレコードを検索する。見つからない場合はnilを返す。
func (r *PostgresPaymentOrderRepo) FindByKey(ctx context.Context, key string) (*model.PaymentOrder, error) {
	po := &model.PaymentOrder{}
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, user_id, gateway_order_id, amount, currency, receipt, created_at
		 FROM payment_orders WHERE idempotency_key = $1`,
		key,
	).Scan(&po.IdempotencyKey, &po.UserID, &po.GatewayOrderID, &po.Amount, &po.Currency, &po.Receipt, &po.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment order: %w", err)
	}
	return po, nil
}

// Create はレコードを作成する。同一キーが既に存在する場合は先着を優先する。
func (r *PostgresPaymentOrderRepo) Create(ctx context.Context, po *model.PaymentOrder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_orders (idempotency_key, user_id, gateway_order_id, amount, currency, receipt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		po.IdempotencyKey, po.UserID, po.GatewayOrderID, po.Amount, po.Currency, po.Receipt, po.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PaymentOrderRepository = (*PostgresPaymentOrderRepo)(nil)
