package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/loomcart/internal/model"
)

// PostgresUserRoleRepo はPostgreSQLを使用したロールリポジトリ。
type PostgresUserRoleRepo struct {
	db *sql.DB
}

// NewPostgresUserRoleRepo はPostgresUserRoleRepoを生成する。
func NewPostgresUserRoleRepo(db *sql.DB) *PostgresUserRoleRepo {
	return &PostgresUserRoleRepo{db: db}
}

// HasRole は (userID, role) の行が存在するかを返す。
// 結果はキャッシュせず、毎回問い合わせる。
func (r *PostgresUserRoleRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user role: %w", err)
	}
	return exists, nil
}

// ListWithProfiles はロール行をプロフィールと結合して返す。
// プロフィール行が無いユーザーはProfileがnilになる。
func (r *PostgresUserRoleRepo) ListWithProfiles(ctx context.Context) ([]model.UserRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ur.id, ur.user_id, ur.role, ur.created_at, p.full_name, p.email
		 FROM user_roles ur
		 LEFT JOIN profiles p ON p.id = ur.user_id
		 ORDER BY ur.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	roles := []model.UserRole{}
	for rows.Next() {
		var ur model.UserRole
		var fullName, email sql.NullString
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.Role, &ur.CreatedAt, &fullName, &email); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		if fullName.Valid || email.Valid {
			ur.Profile = &model.Profile{FullName: fullName.String, Email: email.String}
		}
		roles = append(roles, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}
	return roles, nil
}

// compile-time interface check
var _ UserRoleRepository = (*PostgresUserRoleRepo)(nil)
