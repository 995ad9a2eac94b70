// Package userrole は管理者向けのロール一覧を提供する。
package userrole

import (
	"context"
	"fmt"

	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
)

// Response はロール一覧の応答。
type Response struct {
	UserRoles []model.UserRole `json:"userRoles"`
}

// Service はロール行をプロフィール表示項目と結合して返す。
type Service struct {
	repo repository.UserRoleRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.UserRoleRepository) *Service {
	return &Service{repo: repo}
}

// List はロール行をcreated_at降順で返す。行がない場合は空配列を返す。
func (s *Service) List(ctx context.Context) (*Response, error) {
	roles, err := s.repo.ListWithProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	if roles == nil {
		roles = []model.UserRole{}
	}
	return &Response{UserRoles: roles}, nil
}
