package payment

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/loomcart/internal/model"
)

// mockGateway はテスト用のGatewayモック。
type mockGateway struct {
	createFn func(ctx context.Context, req OrderRequest, key string) (*GatewayOrder, error)
	calls    int
	lastReq  OrderRequest
	lastKey  string
}

func (m *mockGateway) CreateOrder(ctx context.Context, req OrderRequest, key string) (*GatewayOrder, error) {
	m.calls++
	m.lastReq = req
	m.lastKey = key
	if m.createFn != nil {
		return m.createFn(ctx, req, key)
	}
	return &GatewayOrder{ID: "order_gw_1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

// mockPaymentOrderRepo はテスト用のPaymentOrderRepositoryモック。
type mockPaymentOrderRepo struct {
	records   map[string]*model.PaymentOrder
	findErr   error
	createErr error
}

func newMockPaymentOrderRepo() *mockPaymentOrderRepo {
	return &mockPaymentOrderRepo{records: map[string]*model.PaymentOrder{}}
}

func (m *mockPaymentOrderRepo) FindByKey(ctx context.Context, key string) (*model.PaymentOrder, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.records[key], nil
}

func (m *mockPaymentOrderRepo) Create(ctx context.Context, po *model.PaymentOrder) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.records[po.IdempotencyKey]; !ok {
		m.records[po.IdempotencyKey] = po
	}
	return nil
}

// mockOrderRepo はテスト用のOrderRepositoryモック。
type mockOrderRepo struct {
	mu       sync.Mutex
	statuses map[string]model.OrderStatus
	paid     map[string][2]string
	err      error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{statuses: map[string]model.OrderStatus{}, paid: map[string][2]string{}}
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[id]
	if !ok {
		return nil, nil
	}
	return &model.Order{ID: id, Status: s}, nil
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses[id] = status
	return nil
}

func (m *mockOrderRepo) MarkPaid(ctx context.Context, id, gatewayOrderID, gatewayPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses[id] = model.OrderStatusPaid
	m.paid[id] = [2]string{gatewayOrderID, gatewayPaymentID}
	return nil
}

func (m *mockOrderRepo) status(id string) model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

// mockRecorder はテスト用のRecorderモック。
type mockRecorder struct {
	orders        []string
	verifications []string
	webhooks      []string
	latencies     int
}

func (m *mockRecorder) RecordPaymentOrder(result string)        { m.orders = append(m.orders, result) }
func (m *mockRecorder) RecordPaymentVerification(result string) { m.verifications = append(m.verifications, result) }
func (m *mockRecorder) RecordWebhookEvent(event, result string) {
	m.webhooks = append(m.webhooks, event+"/"+result)
}
func (m *mockRecorder) RecordGatewayLatency(time.Duration) { m.latencies++ }
