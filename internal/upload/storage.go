package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultStorageTimeout = 30 * time.Second

// Storage はオブジェクトストレージのインターフェース。
type Storage interface {
	// Put はオブジェクトを保存し、公開URLを返す。
	Put(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// SupabaseStorageConfig はSupabase Storage APIの設定。
type SupabaseStorageConfig struct {
	URL            string // 例: https://xyz.supabase.co（末尾スラッシュなし）
	ServiceRoleKey string
	Bucket         string
	Timeout        time.Duration
}

// SupabaseStorage はSupabase Storage APIにオブジェクトを保存する。
type SupabaseStorage struct {
	config SupabaseStorageConfig
	client *http.Client
}

// NewSupabaseStorage はSupabaseStorageを生成する。
func NewSupabaseStorage(config SupabaseStorageConfig) *SupabaseStorage {
	if config.Timeout <= 0 {
		config.Timeout = defaultStorageTimeout
	}
	return &SupabaseStorage{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Put はPOST /storage/v1/object/{bucket}/{path}で保存する。既存オブジェクトは上書きしない。
func (s *SupabaseStorage) Put(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	endpoint := s.config.URL + "/storage/v1/object/" + url.PathEscape(s.config.Bucket) + "/" + objectPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create storage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.ServiceRoleKey)
	req.Header.Set("apikey", s.config.ServiceRoleKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage upload failed with status %d", resp.StatusCode)
	}

	return s.PublicURL(objectPath), nil
}

// PublicURL はオブジェクトの公開URLを返す。
func (s *SupabaseStorage) PublicURL(objectPath string) string {
	return s.config.URL + "/storage/v1/object/public/" + url.PathEscape(s.config.Bucket) + "/" + objectPath
}

// compile-time interface check
var _ Storage = (*SupabaseStorage)(nil)
