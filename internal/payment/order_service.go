package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/repository"
)

// 金額の範囲（最小通貨単位）
const (
	MinAmount int64 = 100
	MaxAmount int64 = 1_000_000_000
)

const defaultCurrency = "INR"

// 注文作成の結果（メトリクスのラベル値）
const (
	resultCreated      = "created"
	resultCollapsed    = "collapsed"
	resultGatewayError = "gateway_error"
	resultError        = "error"
	resultInvalid      = "invalid"
)

// CreateOrderInput は注文作成リクエスト。
// amountは小数や指数表記を拒否するためjson.Numberで受け取る。
type CreateOrderInput struct {
	Amount   json.Number       `json:"amount" validate:"required"`
	Currency string            `json:"currency" validate:"omitempty,iso4217"`
	Receipt  string            `json:"receipt" validate:"max=40"`
	Notes    map[string]string `json:"notes" validate:"max=15"`
}

// OrderResponse は注文作成の応答。
type OrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// OrderService はゲートウェイに注文を作成する。
type OrderService struct {
	gateway  Gateway
	repo     repository.PaymentOrderRepository
	recorder Recorder
	now      func() time.Time
}

// NewOrderService はOrderServiceを生成する。repoがnilの場合はローカルでの重複排除を行わない。
func NewOrderService(gateway Gateway, repo repository.PaymentOrderRepository, recorder Recorder) *OrderService {
	return &OrderService{
		gateway:  gateway,
		repo:     repo,
		recorder: recorderOrNop(recorder),
		now:      time.Now,
	}
}

// ParseAmount は金額を検証して整数に変換する。
// 整数表記で [MinAmount, MaxAmount] の範囲にない場合はInvalidAmountエラーを返す。
func ParseAmount(n json.Number) (int64, error) {
	amount, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil || amount < MinAmount || amount > MaxAmount {
		return 0, model.NewInvalidAmountError()
	}
	return amount, nil
}

// CreateOrder は注文を作成する。呼び出し元は認証済みであること。
// 同じ (ユーザー, receipt) の再送信は保存済みのゲートウェイ注文を返し、ゲートウェイを呼ばない。
func (s *OrderService) CreateOrder(ctx context.Context, caller *model.Principal, in CreateOrderInput) (*OrderResponse, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		s.recorder.RecordPaymentOrder(resultInvalid)
		return nil, err
	}
	currency := in.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	key, receipt := IdempotencyKey(caller.UserID, in.Receipt, s.now())

	if existing := s.findExisting(ctx, key); existing != nil {
		if existing.Amount != amount || existing.Currency != currency {
			s.recorder.RecordPaymentOrder(resultInvalid)
			return nil, model.NewBadRequestError("receipt was already used for a different amount")
		}
		s.recorder.RecordPaymentOrder(resultCollapsed)
		slog.Info("payment order collapsed to existing gateway order",
			slog.String("user_id", caller.UserID),
			slog.String("gateway_order_id", existing.GatewayOrderID),
		)
		return &OrderResponse{
			OrderID:  existing.GatewayOrderID,
			Amount:   existing.Amount,
			Currency: existing.Currency,
			Receipt:  existing.Receipt,
		}, nil
	}

	notes := make(map[string]string, len(in.Notes)+1)
	maps.Copy(notes, in.Notes)
	notes["user_id"] = caller.UserID

	start := time.Now()
	created, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	}, key)
	s.recorder.RecordGatewayLatency(time.Since(start))
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			s.recorder.RecordPaymentOrder(resultGatewayError)
			slog.Error("gateway rejected order",
				slog.Int("status", gwErr.StatusCode),
				slog.String("gateway_code", gwErr.Code),
				slog.String("user_id", caller.UserID),
			)
			return nil, err
		}
		s.recorder.RecordPaymentOrder(resultError)
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	s.store(ctx, &model.PaymentOrder{
		IdempotencyKey: key,
		UserID:         caller.UserID,
		GatewayOrderID: created.ID,
		Amount:         amount,
		Currency:       currency,
		Receipt:        receipt,
		CreatedAt:      s.now().UTC(),
	})

	s.recorder.RecordPaymentOrder(resultCreated)
	slog.Info("payment order created",
		slog.String("user_id", caller.UserID),
		slog.String("gateway_order_id", created.ID),
		slog.Int64("amount", amount),
	)

	return &OrderResponse{
		OrderID:  created.ID,
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	}, nil
}

// findExisting は保存済みの注文を探す。ストアの障害時はゲートウェイ側の冪等性に任せる。
func (s *OrderService) findExisting(ctx context.Context, key string) *model.PaymentOrder {
	if s.repo == nil {
		return nil
	}
	existing, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		slog.Warn("payment order lookup failed",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return existing
}

func (s *OrderService) store(ctx context.Context, po *model.PaymentOrder) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Create(context.WithoutCancel(ctx), po); err != nil {
		slog.Warn("failed to store payment order",
			slog.String("gateway_order_id", po.GatewayOrderID),
			slog.String("error", err.Error()),
		)
	}
}
