package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRateLimitRepo は複数インスタンス間でカウンタを共有するための
// PostgreSQL実装。チェックと加算は1文のUPSERTで原子的に行う。
type PostgresRateLimitRepo struct {
	db *sql.DB
}

// NewPostgresRateLimitRepo はPostgresRateLimitRepoを生成する。
func NewPostgresRateLimitRepo(db *sql.DB) *PostgresRateLimitRepo {
	return &PostgresRateLimitRepo{db: db}
}

// incrementQuery は固定ウィンドウのカウンタを加算する。
// 既存行のwindow_startから$3を超えて経過していればcount=1にリセットする。
const incrementQuery = `
INSERT INTO rate_limit_windows (key, count, window_start)
VALUES ($1, 1, $2::timestamptz)
ON CONFLICT (key) DO UPDATE SET
    count = CASE
        WHEN $2::timestamptz - rate_limit_windows.window_start > $3::interval THEN 1
        ELSE rate_limit_windows.count + 1
    END,
    window_start = CASE
        WHEN $2::timestamptz - rate_limit_windows.window_start > $3::interval THEN $2
        ELSE rate_limit_windows.window_start
    END
RETURNING count, window_start`

// Increment はキーのカウンタを原子的に加算する。
func (r *PostgresRateLimitRepo) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	var count int
	var windowStart time.Time
	err := r.db.QueryRowContext(ctx, incrementQuery, key, now, intervalLiteral(window)).
		Scan(&count, &windowStart)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit window: %w", err)
	}
	return count, windowStart, nil
}

// DeleteExpired はwindow_startがbeforeより古い行を削除する。
func (r *PostgresRateLimitRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE window_start < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limit windows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// intervalLiteral はtime.DurationをPostgreSQLのinterval文字列に変換する。
func intervalLiteral(d time.Duration) string {
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}

// compile-time interface check
var _ RateLimitRepository = (*PostgresRateLimitRepo)(nil)
