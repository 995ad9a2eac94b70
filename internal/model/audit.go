package model

import "time"

// AuditLog は管理操作の監査ログを表す。
// 書き込みはベストエフォートで、失敗しても主操作は失敗させない。
type AuditLog struct {
	ID         string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	CreatedAt  time.Time
}
