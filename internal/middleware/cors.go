package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsAllowedHeaders はブラウザから送信を許可するリクエストヘッダー。
var corsAllowedHeaders = []string{
	"Authorization",
	"Content-Type",
	CSRFHeaderName,
	"X-Client-Info",
	"apikey",
}

// NewCORSOptions は許可オリジンの完全一致リストからCORS設定を組み立てる。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
func NewCORSOptions(allowedOrigins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:     allowedOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     corsAllowedHeaders,
		AllowCredentials:   true,
		MaxAge:             86400,
		OptionsPassthrough: true,
	}
}

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// 許可リストにないオリジンにはAccess-Control-Allow-Originを付与しない。
// プリフライトはヘッダーを付与した後に後続のハンドラーへ渡し、204はルート側で返す。
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return cors.Handler(NewCORSOptions(allowedOrigins))
}

// NewPublicCORSMiddleware は読み取り専用の公開エンドポイント用に、
// 任意のオリジンを許可しcredentialsを許可しないCORSミドルウェアを返す。
func NewPublicCORSMiddleware() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
