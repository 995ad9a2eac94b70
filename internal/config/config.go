package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultDevOrigins は開発・ステージング環境で常に許可するオリジン。
var defaultDevOrigins = []string{
	"http://localhost:5173",
	"http://localhost:8080",
	"http://localhost:3000",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Supabase (Auth / Storage)
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string // 空の場合はAuth APIでトークンを検証する

	// Razorpay
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayAPIURL        string
	GatewayTimeout        time.Duration
	GatewayRatePerSec     float64
	VerifyMarksPaid       bool

	// Rate Limit
	RateLimitWindow   time.Duration
	RateLimitMax      int
	RateLimitBackend  string // memory | postgres
	RateLimitFailOpen bool
	CleanupInterval   time.Duration

	// Cookie
	SessionMaxAge int // sb_jwt Cookieの有効期間（秒）
	CSRFMaxAge    int // XSRF-TOKEN Cookieの有効期間（秒）
	CookieSecure  bool // 既定でtrue。INSECURE_DEV_COOKIES=trueのときのみfalse
	CookieDomain  string

	// Upload
	StorageBucket  string
	UploadMaxBytes int64

	// Server
	ServerPort string
	SiteURL    string
	LogLevel   string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.SiteURL = required("SITE_URL")
	cfg.SupabaseURL = strings.TrimRight(required("SUPABASE_URL"), "/")
	cfg.SupabaseAnonKey = required("SUPABASE_ANON_KEY")
	cfg.SupabaseServiceRoleKey = required("SUPABASE_SERVICE_ROLE_KEY")
	cfg.RazorpayKeyID = required("RAZORPAY_KEY_ID")
	cfg.RazorpayKeySecret = required("RAZORPAY_KEY_SECRET")
	cfg.RazorpayWebhookSecret = required("RAZORPAY_WEBHOOK_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	cfg.RazorpayAPIURL = strings.TrimRight(getEnvString("RAZORPAY_API_URL", "https://api.razorpay.com"), "/")
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.GatewayRatePerSec = getEnvFloat("GATEWAY_RATE_PER_SEC", 5)
	cfg.VerifyMarksPaid = getEnvBool("PAYMENT_VERIFY_MARKS_PAID", true)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", 100)
	cfg.RateLimitBackend = getEnvString("RATE_LIMIT_BACKEND", "memory")
	cfg.RateLimitFailOpen = getEnvBool("RATE_LIMIT_FAIL_OPEN", true)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 8*60*60)
	cfg.CSRFMaxAge = getEnvInt("CSRF_MAX_AGE", 3600)
	cfg.CookieSecure = !getEnvBool("INSECURE_DEV_COOKIES", false)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.StorageBucket = getEnvString("STORAGE_BUCKET", "product-images")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 5<<20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.RateLimitBackend != "memory" && cfg.RateLimitBackend != "postgres" {
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or postgres, got %q", cfg.RateLimitBackend)
	}

	cfg.CORSAllowedOrigins = allowedOrigins(cfg.SiteURL, os.Getenv("CORS_EXTRA_ORIGINS"))

	return cfg, nil
}

// allowedOrigins はサイトURL、固定の開発用オリジン、追加オリジンを重複なしで結合する。
func allowedOrigins(siteURL, extra string) []string {
	seen := make(map[string]bool)
	var origins []string
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			return
		}
		seen[o] = true
		origins = append(origins, o)
	}

	add(siteURL)
	for _, o := range defaultDevOrigins {
		add(o)
	}
	for _, o := range strings.Split(extra, ",") {
		add(o)
	}
	return origins
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
