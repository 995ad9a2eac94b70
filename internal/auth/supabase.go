package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
)

const defaultIdentityTimeout = 5 * time.Second

// SupabaseConfig はSupabase Auth APIの設定。
type SupabaseConfig struct {
	URL     string // 例: https://xyz.supabase.co（末尾スラッシュなし）
	AnonKey string
	Timeout time.Duration
}

// SupabaseIdentityProvider はSupabase Auth APIにトークンを問い合わせて検証する。
type SupabaseIdentityProvider struct {
	config SupabaseConfig
	client *http.Client
}

// NewSupabaseIdentityProvider はSupabaseIdentityProviderを生成する。
func NewSupabaseIdentityProvider(config SupabaseConfig) *SupabaseIdentityProvider {
	if config.Timeout <= 0 {
		config.Timeout = defaultIdentityTimeout
	}
	return &SupabaseIdentityProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// supabaseUser は/auth/v1/userのレスポンス。
type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ValidateToken はGET /auth/v1/userでトークンの持ち主を取得する。
// 401/403はErrInvalidToken、それ以外の失敗はプロバイダーエラーとして返す。
func (p *SupabaseIdentityProvider) ValidateToken(ctx context.Context, token string) (*model.AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("apikey", p.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("identity provider rejected token with status %d: %w", resp.StatusCode, ErrInvalidToken)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("user fetch failed with status %d", resp.StatusCode)
	}

	var u supabaseUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty id in user response: %w", ErrInvalidToken)
	}

	return &model.AuthUser{ID: u.ID, Email: u.Email}, nil
}

// compile-time interface check
var _ IdentityProvider = (*SupabaseIdentityProvider)(nil)
