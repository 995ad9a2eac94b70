// Package order は管理者による注文ステータス更新を提供する。
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/loomcart/internal/audit"
	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
)

// StatusUpdate は注文ステータス更新の入力。
type StatusUpdate struct {
	OrderID string            `json:"orderId" validate:"required"`
	Status  model.OrderStatus `json:"status" validate:"required"`
}

// Response は注文ステータス更新の応答。
type Response struct {
	Success bool       `json:"success"`
	Order   *OrderView `json:"order,omitempty"`
}

// OrderView は応答に含める注文の項目。
type OrderView struct {
	ID        string            `json:"id"`
	Status    model.OrderStatus `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Service は注文ステータスを更新する。
type Service struct {
	repo  repository.OrderRepository
	audit audit.Recorder
	now   func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.OrderRepository, recorder audit.Recorder) *Service {
	return &Service{repo: repo, audit: recorder, now: time.Now}
}

// DecodeStatusUpdate はリクエストボディを検証する。
// ステータスは物流ステータス5種のいずれかでなければならない。
func DecodeStatusUpdate(r *http.Request) (StatusUpdate, error) {
	var in StatusUpdate
	if err := gatekeeper.DecodeJSON(r, &in); err != nil {
		return StatusUpdate{}, err
	}
	if !in.Status.IsLogisticsStatus() {
		return StatusUpdate{}, model.NewInvalidStatusError(string(in.Status))
	}
	return in, nil
}

// UpdateStatus は注文ステータスを更新し、変更前後のステータスを監査ログに残す。
// 遷移の妥当性は検証しない。
func (s *Service) UpdateStatus(ctx context.Context, actor *model.Principal, in StatusUpdate) (*Response, error) {
	// 注文IDはUUIDなので、形式が異なるIDに一致する注文は存在しない
	if uuid.Validate(in.OrderID) != nil {
		return nil, model.NewOrderNotFoundError(in.OrderID)
	}

	current, err := s.repo.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if current == nil {
		return nil, model.NewOrderNotFoundError(in.OrderID)
	}

	if err := s.repo.UpdateStatus(ctx, in.OrderID, in.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewOrderNotFoundError(in.OrderID)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	slog.Info("order status updated",
		slog.String("order_id", in.OrderID),
		slog.String("previous_status", string(current.Status)),
		slog.String("new_status", string(in.Status)),
		slog.String("actor_id", actor.UserID),
	)
	s.audit.Record(ctx, actor, "order.status_update", "order", in.OrderID, map[string]any{
		"previous_status": string(current.Status),
		"new_status":      string(in.Status),
	})

	return &Response{
		Success: true,
		Order: &OrderView{
			ID:        in.OrderID,
			Status:    in.Status,
			UpdatedAt: s.now().UTC(),
		},
	}, nil
}
