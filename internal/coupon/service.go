package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/loomcart/internal/audit"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
	"github.com/hitoshi/loomcart/internal/security"
)

// 監査ログの対象種別と操作名
const (
	auditTarget       = "coupon"
	auditCreate       = "coupon.create"
	auditUpdate       = "coupon.update"
	auditDelete       = "coupon.delete"
	auditToggleStatus = "coupon.toggle_status"
)

// Response はクーポン管理操作の応答。削除時はCouponを含まない。
type Response struct {
	Success bool          `json:"success"`
	Coupon  *model.Coupon `json:"coupon,omitempty"`
}

// Service はクーポン管理操作を実行する。
type Service struct {
	repo      repository.CouponRepository
	audit     audit.Recorder
	sanitizer security.TextSanitizerService
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(repo repository.CouponRepository, recorder audit.Recorder, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		repo:      repo,
		audit:     recorder,
		sanitizer: sanitizer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Execute は操作を実行する。呼び出し元は管理者であることを確認済みであること。
func (s *Service) Execute(ctx context.Context, actor *model.Principal, action Action) (*Response, error) {
	return action.execute(ctx, s, actor)
}

func (a CreateAction) execute(ctx context.Context, s *Service, actor *model.Principal) (*Response, error) {
	now := s.now().UTC()
	c := &model.Coupon{
		ID:        s.newID(),
		Status:    model.CouponStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyInput(c, a.Input)

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, classify(err, c.ID, c.Code)
	}

	slog.Info("coupon created",
		slog.String("coupon_id", c.ID),
		slog.String("code", c.Code),
		slog.String("actor_id", actor.UserID),
	)
	s.audit.Record(ctx, actor, auditCreate, auditTarget, c.ID, map[string]any{
		"code":           c.Code,
		"discount_type":  string(c.DiscountType),
		"discount_value": c.DiscountValue,
	})
	return &Response{Success: true, Coupon: c}, nil
}

func (a UpdateAction) execute(ctx context.Context, s *Service, actor *model.Principal) (*Response, error) {
	existing, err := s.repo.FindByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if existing == nil {
		return nil, model.NewCouponNotFoundError(a.ID)
	}

	c := *existing
	previousCode := existing.Code
	applyInput(&c, a.Input)
	c.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, &c); err != nil {
		return nil, classify(err, c.ID, c.Code)
	}

	s.audit.Record(ctx, actor, auditUpdate, auditTarget, c.ID, map[string]any{
		"previous_code": previousCode,
		"code":          c.Code,
	})
	return &Response{Success: true, Coupon: &c}, nil
}

func (a DeleteAction) execute(ctx context.Context, s *Service, actor *model.Principal) (*Response, error) {
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return nil, classify(err, a.ID, "")
	}

	s.audit.Record(ctx, actor, auditDelete, auditTarget, a.ID, nil)
	return &Response{Success: true}, nil
}

func (a ToggleStatusAction) execute(ctx context.Context, s *Service, actor *model.Principal) (*Response, error) {
	existing, err := s.repo.FindByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if existing == nil {
		return nil, model.NewCouponNotFoundError(a.ID)
	}

	next := a.Status
	if next == "" {
		next = existing.Status.Toggled()
	}
	if err := s.repo.UpdateStatus(ctx, a.ID, next); err != nil {
		return nil, classify(err, a.ID, "")
	}

	previous := existing.Status
	existing.Status = next
	existing.UpdatedAt = s.now().UTC()

	s.audit.Record(ctx, actor, auditToggleStatus, auditTarget, a.ID, map[string]any{
		"previous_status": string(previous),
		"new_status":      string(next),
	})
	return &Response{Success: true, Coupon: existing}, nil
}

// applyInput は入力項目をクーポンへ反映する。Statusが空の場合は既存値を維持する。
func applyInput(c *model.Coupon, in Input) {
	c.Code = in.Code
	c.Description = in.Description
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.MinOrderAmount = in.MinOrderAmount
	c.MaxUses = in.MaxUses
	c.ValidFrom = in.ValidFrom
	c.ValidUntil = in.ValidUntil
	if in.Status != "" {
		c.Status = in.Status
	}
}

// classify はリポジトリのエラーをAPIErrorに変換する。
func classify(err error, id, code string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.NewCouponNotFoundError(id)
	case errors.Is(err, repository.ErrDuplicate):
		return model.NewCouponCodeExistsError(code)
	default:
		return fmt.Errorf("coupon %s: %w", id, err)
	}
}
