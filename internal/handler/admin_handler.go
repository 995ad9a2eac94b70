package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/loomcart/internal/coupon"
	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/order"
	"github.com/hitoshi/loomcart/internal/userrole"
)

// CouponServiceInterface はクーポン管理ハンドラーが必要とするサービスインターフェース。
type CouponServiceInterface interface {
	DecodeAction(r *http.Request) (coupon.Action, error)
	Execute(ctx context.Context, actor *model.Principal, action coupon.Action) (*coupon.Response, error)
}

// OrderStatusServiceInterface は注文ステータス更新ハンドラーが必要とするサービスインターフェース。
type OrderStatusServiceInterface interface {
	UpdateStatus(ctx context.Context, actor *model.Principal, in order.StatusUpdate) (*order.Response, error)
}

// UserRoleServiceInterface はロール一覧ハンドラーが必要とするサービスインターフェース。
type UserRoleServiceInterface interface {
	List(ctx context.Context) (*userrole.Response, error)
}

// AdminHandler は管理APIのハンドラー。
// すべての操作はgatekeeper.Pipelineのガードを通過してから実行される。
type AdminHandler struct {
	pipeline *gatekeeper.Pipeline
	coupons  CouponServiceInterface
	orders   OrderStatusServiceInterface
	roles    UserRoleServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(pipeline *gatekeeper.Pipeline, coupons CouponServiceInterface, orders OrderStatusServiceInterface, roles UserRoleServiceInterface) *AdminHandler {
	return &AdminHandler{
		pipeline: pipeline,
		coupons:  coupons,
		orders:   orders,
		roles:    roles,
	}
}

// Coupons はクーポン管理操作のハンドラーを返す。
// POST /api/admin/coupons
func (h *AdminHandler) Coupons() http.Handler {
	return gatekeeper.Mutating(h.pipeline, "admin_coupons", gatekeeper.Mutation[coupon.Action]{
		Decode: h.coupons.DecodeAction,
		Apply: func(ctx context.Context, actor *model.Principal, action coupon.Action) (any, error) {
			return h.coupons.Execute(ctx, actor, action)
		},
	})
}

// OrderStatus は注文ステータス更新のハンドラーを返す。
// POST /api/admin/orders/status
func (h *AdminHandler) OrderStatus() http.Handler {
	return gatekeeper.Mutating(h.pipeline, "admin_order_status", gatekeeper.Mutation[order.StatusUpdate]{
		Decode: order.DecodeStatusUpdate,
		Apply: func(ctx context.Context, actor *model.Principal, in order.StatusUpdate) (any, error) {
			return h.orders.UpdateStatus(ctx, actor, in)
		},
	})
}

// UserRoles はロール一覧のハンドラーを返す。
// GET|POST /api/admin/user-roles
func (h *AdminHandler) UserRoles() http.Handler {
	return h.pipeline.ReadOnly("admin_user_roles", func(ctx context.Context, _ *model.Principal) (any, error) {
		return h.roles.List(ctx)
	})
}
