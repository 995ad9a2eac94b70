package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
)

// annotationsContextKey はアクセスログ用の付帯情報を格納するためのキー。
var annotationsContextKey = contextKey("annotations")

// requestAnnotations は内側のハンドラーで判明した情報をアクセスログへ伝える。
// ロギングミドルウェアが生成し、認証やガードが書き込む。
type requestAnnotations struct {
	mu       sync.Mutex
	userID   string
	isAdmin  bool
	rejected string
}

func (a *requestAnnotations) setPrincipal(p *model.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userID = p.UserID
	a.isAdmin = p.IsAdmin
}

func (a *requestAnnotations) principal() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID, a.isAdmin
}

func (a *requestAnnotations) rejection() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rejected
}

func contextWithAnnotations(ctx context.Context) context.Context {
	return context.WithValue(ctx, annotationsContextKey, &requestAnnotations{})
}

func annotationsFrom(ctx context.Context) *requestAnnotations {
	a, _ := ctx.Value(annotationsContextKey).(*requestAnnotations)
	return a
}

// AnnotateRejection はリクエストを止めたガードの理由(csrf, rate_limitなど)をアクセスログに残す。
// 最初に記録された理由を優先する。
func AnnotateRejection(ctx context.Context, reason string) {
	a := annotationsFrom(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rejected == "" {
		a.rejected = reason
	}
}

// statusRecorder はレスポンスのステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はWriteHeader前に呼ばれた場合に200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はストアフロントのアクセスログを出力するミドルウェアを返す。
//
// 常に含むフィールド: method, path, status, duration_ms, client_ip
// 認証を通過した場合: user_id, admin
// ガードで拒否された場合: rejected_by
//
// 4xxはWarn、5xxはErrorで出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := contextWithAnnotations(r.Context())
			annotations := annotationsFrom(ctx)

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
				slog.String("client_ip", ClientIP(r)),
			}
			if userID, isAdmin := annotations.principal(); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID), slog.Bool("admin", isAdmin))
			}
			if reason := annotations.rejection(); reason != "" {
				attrs = append(attrs, slog.String("rejected_by", reason))
			}

			logger.Log(ctx, levelForStatus(rec.statusCode), "http_request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
