// Package audit は管理操作の監査ログ書き込みを提供する。
//
// 書き込みはベストエフォートで行う。失敗はログに残すだけで、
// 呼び出し元の操作は成功として扱う。
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
)

// Recorder は監査ログを記録する。
type Recorder interface {
	Record(ctx context.Context, actor *model.Principal, action, targetType, targetID string, details map[string]any)
}

// Logger はAuditLogRepositoryを使ったRecorderの実装。
type Logger struct {
	repo  repository.AuditLogRepository
	now   func() time.Time
	newID func() string
}

// NewLogger はLoggerを生成する。
func NewLogger(repo repository.AuditLogRepository) *Logger {
	return &Logger{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Record は監査ログを1件書き込む。エラーは返さない。
func (l *Logger) Record(ctx context.Context, actor *model.Principal, action, targetType, targetID string, details map[string]any) {
	if l == nil || l.repo == nil {
		return
	}
	actorID := ""
	if actor != nil {
		actorID = actor.UserID
	}

	entry := &model.AuditLog{
		ID:         l.newID(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  l.now().UTC(),
	}

	// 呼び出し元のキャンセルに引きずられて記録が失われないようにする
	if err := l.repo.Insert(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("failed to write audit log",
			slog.String("action", action),
			slog.String("target_type", targetType),
			slog.String("target_id", targetID),
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()),
		)
	}
}

var _ Recorder = (*Logger)(nil)
