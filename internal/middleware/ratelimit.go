package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
)

const (
	// DefaultRateLimitWindow は固定ウィンドウの長さのデフォルト値。
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultRateLimitMax はウィンドウあたりの最大リクエスト数のデフォルト値。
	DefaultRateLimitMax = 100
)

// Limiter はキーごとのレート制限判定を行う。
// Checkは判定と加算を1つの原子的な操作として行う。
type Limiter interface {
	Check(ctx context.Context, key string) (model.RateLimitResult, error)
}

// RateLimiterConfig は固定ウィンドウリミッターの設定を保持する。
type RateLimiterConfig struct {
	Window time.Duration
	Max    int
	// Clock は現在時刻を返す。nilの場合はtime.Now。
	Clock func() time.Time
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.Window <= 0 {
		c.Window = DefaultRateLimitWindow
	}
	if c.Max <= 0 {
		c.Max = DefaultRateLimitMax
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// windowEntry はキーごとのカウンタとウィンドウ開始時刻を保持する。
type windowEntry struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter はプロセス内メモリ上の固定ウィンドウカウンタ。
// 単一インスタンス構成向け。複数インスタンスではSharedLimiterを使う。
type FixedWindowLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	entries map[string]*windowEntry
}

// NewFixedWindowLimiter は新しいFixedWindowLimiterを生成する。
func NewFixedWindowLimiter(config RateLimiterConfig) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		config:  config.withDefaults(),
		entries: make(map[string]*windowEntry),
	}
}

// Check はキーのカウンタを加算し、上限以内かを判定する。
// now - windowStart > window の場合はカウンタを1にリセットする。
func (l *FixedWindowLimiter) Check(_ context.Context, key string) (model.RateLimitResult, error) {
	now := l.config.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) > l.config.Window {
		e = &windowEntry{count: 1, windowStart: now}
		l.entries[key] = e
	} else {
		e.count++
	}

	return decide(e.count, l.config.Max, e.windowStart.Add(l.config.Window)), nil
}

// Sweep はウィンドウが経過済みのエントリを削除し、削除件数を返す。
// 経過済みエントリは次回アクセス時にリセットされるため、判定結果は変わらない。
func (l *FixedWindowLimiter) Sweep() int {
	now := l.config.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.Sub(e.windowStart) > l.config.Window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len は現在管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WindowStore は共有ストア上の固定ウィンドウカウンタ。
// repository.RateLimitRepositoryが実装する。
type WindowStore interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error)
}

// SharedLimiter はWindowStoreにカウンタを委ねるリミッター。
// 複数インスタンス構成でもキーごとのカウントを共有できる。
type SharedLimiter struct {
	store  WindowStore
	config RateLimiterConfig
}

// NewSharedLimiter は新しいSharedLimiterを生成する。
func NewSharedLimiter(store WindowStore, config RateLimiterConfig) *SharedLimiter {
	return &SharedLimiter{store: store, config: config.withDefaults()}
}

// Check はストア上のカウンタを原子的に加算して判定する。
func (l *SharedLimiter) Check(ctx context.Context, key string) (model.RateLimitResult, error) {
	count, windowStart, err := l.store.Increment(ctx, key, l.config.Clock(), l.config.Window)
	if err != nil {
		return model.RateLimitResult{}, err
	}
	return decide(count, l.config.Max, windowStart.Add(l.config.Window)), nil
}

// decide は加算後のカウントから判定結果を組み立てる。
func decide(count, max int, resetAt time.Time) model.RateLimitResult {
	if count > max {
		return model.RateLimitResult{OK: false, Limit: max, Remaining: 0, ResetAt: resetAt}
	}
	return model.RateLimitResult{OK: true, Limit: max, Remaining: max - count, ResetAt: resetAt}
}

// RateLimitPolicy はリミッター自体の障害時の振る舞いを決める。
type RateLimitPolicy struct {
	// FailOpen がtrueの場合、リミッターのエラー時は警告ログを出して通過させる。
	// falseの場合は503を返す。
	FailOpen bool
}

// RateLimitOutcome はレート制限判定の結果区分。
type RateLimitOutcome int

const (
	RateLimitAllowed RateLimitOutcome = iota
	RateLimitExceeded
	RateLimitBypassed    // リミッター障害でfail-open
	RateLimitUnavailable // リミッター障害でfail-closed
)

// String はメトリクスのラベル値を返す。
func (o RateLimitOutcome) String() string {
	switch o {
	case RateLimitAllowed:
		return "allowed"
	case RateLimitExceeded:
		return "rejected"
	case RateLimitBypassed:
		return "bypassed"
	case RateLimitUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RateLimitRecorder はレート制限の判定結果を記録する。
type RateLimitRecorder interface {
	RecordRateLimit(outcome string)
}

// ApplyRateLimit はキーに対してリミッターを評価し、ポリシーに従って結果区分を返す。
// 拒否・障害時のレスポンスは書き込まない。
func ApplyRateLimit(ctx context.Context, limiter Limiter, policy RateLimitPolicy, key string) (model.RateLimitResult, RateLimitOutcome) {
	result, err := limiter.Check(ctx, key)
	if err != nil {
		if policy.FailOpen {
			slog.Warn("rate limiter unavailable, proceeding without limit",
				slog.String("error", err.Error()),
			)
			return result, RateLimitBypassed
		}
		slog.Error("rate limiter unavailable, rejecting request",
			slog.String("error", err.Error()),
		)
		return result, RateLimitUnavailable
	}
	if !result.OK {
		return result, RateLimitExceeded
	}
	return result, RateLimitAllowed
}

// WriteRateLimitOutcome は拒否系の結果区分に対応するレスポンスを書き込む。
// 通過してよい場合はfalseを返し、何も書き込まない。
func WriteRateLimitOutcome(w http.ResponseWriter, result model.RateLimitResult, outcome RateLimitOutcome) bool {
	switch outcome {
	case RateLimitExceeded:
		writeRateLimitResponse(w, result, time.Now())
		return true
	case RateLimitUnavailable:
		WriteAPIError(w, model.NewServiceUnavailableError())
		return true
	default:
		if result.Limit > 0 {
			setRateLimitHeaders(w, result)
		}
		return false
	}
}

// NewRateLimitMiddleware はクライアントIPをキーとするレート制限ミドルウェアを返す。
// recorderはnilでもよい。
func NewRateLimitMiddleware(limiter Limiter, policy RateLimitPolicy, recorder RateLimitRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			result, outcome := ApplyRateLimit(r.Context(), limiter, policy, key)
			if recorder != nil {
				recorder.RecordRateLimit(outcome.String())
			}

			if WriteRateLimitOutcome(w, result, outcome) {
				if outcome == RateLimitExceeded {
					AnnotateRejection(r.Context(), "rate_limit")
					slog.Warn("rate limit exceeded",
						slog.String("client", key),
						slog.String("path", r.URL.Path),
					)
				} else {
					AnnotateRejection(r.Context(), "limiter_unavailable")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP はレート制限キーに使うクライアント識別子を返す。
// X-Forwarded-Forの先頭要素、X-Real-IP、"unknown"の順に採用する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

func setRateLimitHeaders(w http.ResponseWriter, result model.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには現在のウィンドウが終わるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, result model.RateLimitResult, now time.Time) {
	retryAfterSec := int(math.Ceil(result.ResetAt.Sub(now).Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	setRateLimitHeaders(w, result)
	WriteAPIError(w, model.NewRateLimitedError())
}
