// Package coupon は管理者によるクーポン管理操作を提供する。
//
// 操作は Action を実装する閉じた型の集合で表す。
// 未知の操作名はデコード時点で拒否され、変更処理には到達しない。
package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/model"
)

// 操作名
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDelete       = "delete"
	ActionToggleStatus = "toggle-status"
)

// codePattern は正規化後のクーポンコードの形式。
var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// Action はクーポン管理操作の1つ。
// executeが非公開のため、このパッケージ外で実装を追加することはできない。
type Action interface {
	Name() string
	execute(ctx context.Context, s *Service, actor *model.Principal) (*Response, error)
}

// Input はクーポンの作成・更新時に受け付ける項目。
type Input struct {
	Code           string             `json:"code" validate:"required"`
	Description    string             `json:"description" validate:"max=500"`
	DiscountType   model.DiscountType `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue  int64              `json:"discount_value" validate:"gt=0"`
	MinOrderAmount int64              `json:"min_order_amount" validate:"gte=0"`
	MaxUses        int                `json:"max_uses" validate:"gte=0"`
	Status         model.CouponStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	ValidFrom      *time.Time         `json:"valid_from"`
	ValidUntil     *time.Time         `json:"valid_until"`
}

// CreateAction は新規クーポンを作成する。
type CreateAction struct {
	Input
}

// UpdateAction は既存クーポンの編集可能項目を置き換える。
type UpdateAction struct {
	ID string `json:"id" validate:"required,uuid"`
	Input
}

// DeleteAction はクーポンを削除する。
type DeleteAction struct {
	ID string `json:"id" validate:"required,uuid"`
}

// ToggleStatusAction はstatusのみを更新する。
// Statusが空の場合は現在の値を反転する。
type ToggleStatusAction struct {
	ID     string             `json:"id" validate:"required,uuid"`
	Status model.CouponStatus `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (CreateAction) Name() string       { return ActionCreate }
func (UpdateAction) Name() string       { return ActionUpdate }
func (DeleteAction) Name() string       { return ActionDelete }
func (ToggleStatusAction) Name() string { return ActionToggleStatus }

// envelope はリクエストボディ {action, coupon}。
type envelope struct {
	Action string          `json:"action" validate:"required"`
	Coupon json.RawMessage `json:"coupon"`
}

// DecodeAction はリクエストボディを操作に変換する。
// 構造・値の検証に失敗した場合は400として返せるエラーを返す。
func (s *Service) DecodeAction(r *http.Request) (Action, error) {
	var env envelope
	if err := gatekeeper.DecodeJSON(r, &env); err != nil {
		return nil, err
	}

	switch env.Action {
	case ActionCreate:
		var a CreateAction
		if err := decodePayload(env.Coupon, &a); err != nil {
			return nil, err
		}
		if err := s.normalize(&a.Input); err != nil {
			return nil, err
		}
		return a, nil
	case ActionUpdate:
		var a UpdateAction
		if err := decodePayload(env.Coupon, &a); err != nil {
			return nil, err
		}
		if err := s.normalize(&a.Input); err != nil {
			return nil, err
		}
		return a, nil
	case ActionDelete:
		var a DeleteAction
		if err := decodePayload(env.Coupon, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionToggleStatus:
		var a ToggleStatusAction
		if err := decodePayload(env.Coupon, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown action %q", env.Action)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("coupon is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("coupon is not a valid object")
	}
	return gatekeeper.ValidateStruct(v)
}

// normalize はテキスト項目をサニタイズし、タグで表現できない業務ルールを検証する。
func (s *Service) normalize(in *Input) error {
	in.Code = strings.ToUpper(s.sanitizer.Sanitize(in.Code))
	in.Description = s.sanitizer.Sanitize(in.Description)

	if !codePattern.MatchString(in.Code) {
		return errors.New("code must be 3-32 characters of A-Z, 0-9, '-' or '_'")
	}
	if in.DiscountType == model.DiscountTypePercentage && in.DiscountValue > 100 {
		return errors.New("percentage discount must not exceed 100")
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidUntil.After(*in.ValidFrom) {
		return errors.New("valid_until must be after valid_from")
	}
	return nil
}
