package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/loomcart/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// PostgresCouponRepo はPostgreSQLを使用したクーポンリポジトリ。
type PostgresCouponRepo struct {
	db *sql.DB
}

// NewPostgresCouponRepo はPostgresCouponRepoを生成する。
func NewPostgresCouponRepo(db *sql.DB) *PostgresCouponRepo {
	return &PostgresCouponRepo{db: db}
}

const couponColumns = `id, code, description, discount_type, discount_value, min_order_amount,
	max_uses, used_count, status, valid_from, valid_until, created_at, updated_at`

// FindByID は指定IDのクーポンを取得する。見つからない場合はnilを返す。
func (r *PostgresCouponRepo) FindByID(ctx context.Context, id string) (*model.Coupon, error) {
	c := &model.Coupon{}
	var validFrom, validUntil sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MinOrderAmount,
		&c.MaxUses, &c.UsedCount, &c.Status, &validFrom, &validUntil, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find coupon by ID: %w", err)
	}
	if validFrom.Valid {
		c.ValidFrom = &validFrom.Time
	}
	if validUntil.Valid {
		c.ValidUntil = &validUntil.Time
	}
	return c, nil
}

// Create はクーポンを作成する。
func (r *PostgresCouponRepo) Create(ctx context.Context, c *model.Coupon) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coupons (id, code, description, discount_type, discount_value, min_order_amount,
		                      max_uses, used_count, status, valid_from, valid_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
		c.MaxUses, c.UsedCount, string(c.Status), nullTime(c.ValidFrom), nullTime(c.ValidUntil),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("coupon code %s: %w", c.Code, ErrDuplicate)
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// Update はクーポンの編集可能フィールドを更新する。used_countとcreated_atは変更しない。
func (r *PostgresCouponRepo) Update(ctx context.Context, c *model.Coupon) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE coupons
		 SET code = $2, description = $3, discount_type = $4, discount_value = $5,
		     min_order_amount = $6, max_uses = $7, status = $8,
		     valid_from = $9, valid_until = $10, updated_at = $11
		 WHERE id = $1`,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinOrderAmount, c.MaxUses, string(c.Status),
		nullTime(c.ValidFrom), nullTime(c.ValidUntil), c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("coupon code %s: %w", c.Code, ErrDuplicate)
		}
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	return expectAffected(result, "coupon", c.ID)
}

// UpdateStatus はstatusのみを更新する。
func (r *PostgresCouponRepo) UpdateStatus(ctx context.Context, id string, status model.CouponStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE coupons SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update coupon status: %w", err)
	}
	return expectAffected(result, "coupon", id)
}

// Delete は指定IDのクーポンを削除する。
func (r *PostgresCouponRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	return expectAffected(result, "coupon", id)
}

// nullTime は任意の日時をsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation はlib/pqのエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

// compile-time interface check
var _ CouponRepository = (*PostgresCouponRepo)(nil)
