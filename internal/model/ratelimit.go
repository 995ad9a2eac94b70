package model

import "time"

// RateLimitResult はレート制限チェックの結果を表す。
type RateLimitResult struct {
	OK        bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}
