// Package cleanup は期限切れのレート制限カウンタを削除する定期ジョブを提供する。
// インメモリのリミッターと共有ストア（rate_limitsテーブル）の両方を対象にする。
// 経過済みのカウンタは次回アクセス時にリセットされるため、削除しても判定結果は変わらない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MemorySweeper はプロセス内リミッターのエントリを掃除する。
// middleware.FixedWindowLimiterが実装する。
type MemorySweeper interface {
	Sweep() int
	Len() int
}

// ExpiredDeleter は共有ストアの期限切れ行を削除する。
// repository.RateLimitRepositoryが実装する。
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// EntriesGauge はインメモリのエントリ数を公開する。
type EntriesGauge interface {
	SetRateLimitEntries(n int)
}

// Job は期限切れのレート制限カウンタの削除ジョブ。
// memoryとstoreはどちらか一方のみでもよい。冪等で、削除対象がなくてもエラーにならない。
type Job struct {
	memory MemorySweeper
	store  ExpiredDeleter
	gauge  EntriesGauge
	logger *slog.Logger
	now    func() time.Time

	// Window はカウンタのウィンドウ長。これより古いwindow_startの行を削除する。
	Window time.Duration
}

// NewJob は新しいJobを生成する。
func NewJob(memory MemorySweeper, store ExpiredDeleter, gauge EntriesGauge, window time.Duration, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		memory: memory,
		store:  store,
		gauge:  gauge,
		logger: logger,
		now:    time.Now,
		Window: window,
	}
}

// Run は1回分の削除を実行する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	swept := 0
	if j.memory != nil {
		swept = j.memory.Sweep()
		if j.gauge != nil {
			j.gauge.SetRateLimitEntries(j.memory.Len())
		}
	}

	var deleted int64
	if j.store != nil {
		before := j.now().Add(-j.Window)
		n, err := j.store.DeleteExpired(ctx, before)
		if err != nil {
			j.logger.Error("rate limit cleanup failed",
				slog.String("error", err.Error()),
				slog.Time("before", before),
			)
			return fmt.Errorf("failed to delete expired rate limit rows: %w", err)
		}
		deleted = n
	}

	j.logger.Info("rate limit cleanup completed",
		slog.Int("swept_entries", swept),
		slog.Int64("deleted_rows", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("rate limit cleanup started",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("rate limit cleanup stopped")
			return
		case <-ticker.C:
			// 失敗はRun内でログ出力済み。次の周期で再試行する
			_ = j.Run(ctx)
		}
	}
}
