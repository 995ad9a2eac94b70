package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/loomcart/internal/auth"
	"github.com/hitoshi/loomcart/internal/coupon"
	"github.com/hitoshi/loomcart/internal/metrics"
	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/order"
	"github.com/hitoshi/loomcart/internal/payment"
	"github.com/hitoshi/loomcart/internal/repository"
	"github.com/hitoshi/loomcart/internal/security"
	"github.com/hitoshi/loomcart/internal/upload"
	"github.com/hitoshi/loomcart/internal/userrole"
)

const (
	adminToken    = "admin-token"
	customerToken = "customer-token"
	adminUserID   = "a0000000-0000-4000-8000-000000000001"
	customerID    = "c0000000-0000-4000-8000-000000000002"
	siteOrigin    = "https://sarees.example"
	keySecret     = "rzp_key_secret"
	webhookSecret = "whsec_test"
)

// --- 認証のフェイク ---

// fakeAuth はトークン文字列で呼び出し元を決めるAuthenticator。
type fakeAuth struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAuth) principal(token string) (*model.Principal, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	switch token {
	case adminToken:
		return &model.Principal{UserID: adminUserID}, nil
	case customerToken:
		return &model.Principal{UserID: customerID}, nil
	default:
		return nil, fmt.Errorf("token rejected: %w", auth.ErrUnauthorized)
	}
}

func (f *fakeAuth) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	return f.principal(token)
}

func (f *fakeAuth) RequireAdmin(ctx context.Context, token string) (*model.Principal, error) {
	p, err := f.principal(token)
	if err != nil {
		return nil, err
	}
	if p.UserID != adminUserID {
		return nil, fmt.Errorf("not admin: %w", auth.ErrForbidden)
	}
	p.IsAdmin = true
	return p, nil
}

// --- インメモリのリポジトリ ---

type memCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*model.Coupon
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{coupons: map[string]*model.Coupon{}}
}

func (m *memCouponRepo) FindByID(ctx context.Context, id string) (*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCouponRepo) Create(ctx context.Context, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.coupons {
		if existing.Code == c.Code {
			return repository.ErrDuplicate
		}
	}
	cp := *c
	m.coupons[c.ID] = &cp
	return nil
}

func (m *memCouponRepo) Update(ctx context.Context, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	m.coupons[c.ID] = &cp
	return nil
}

func (m *memCouponRepo) UpdateStatus(ctx context.Context, id string, status model.CouponStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memCouponRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.coupons, id)
	return nil
}

func (m *memCouponRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.coupons)
}

func (m *memCouponRepo) all() []model.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		out = append(out, *c)
	}
	return out
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

func newMemOrderRepo(orders ...*model.Order) *memOrderRepo {
	m := &memOrderRepo{orders: map[string]*model.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memOrderRepo) MarkPaid(ctx context.Context, id, gatewayOrderID, gatewayPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = model.OrderStatusPaid
	o.RazorpayOrderID = gatewayOrderID
	o.RazorpayPaymentID = gatewayPaymentID
	return nil
}

func (m *memOrderRepo) status(id string) model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.Status
	}
	return ""
}

type stubRoleRepo struct{}

func (stubRoleRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return userID == adminUserID, nil
}

func (stubRoleRepo) ListWithProfiles(ctx context.Context) ([]model.UserRole, error) {
	return []model.UserRole{{
		ID: "r1", UserID: adminUserID, Role: model.RoleAdmin,
		CreatedAt: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		Profile:   &model.Profile{FullName: "Store Admin", Email: "admin@sarees.example"},
	}}, nil
}

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, actor *model.Principal, action, targetType, targetID string, details map[string]any) {
}

type fakeGateway struct {
	err   error
	calls int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest, key string) (*payment.GatewayOrder, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &payment.GatewayOrder{ID: "order_gw_1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStorage) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return "https://cdn.sarees.example/" + path, nil
}

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

// --- テスト用サーバー ---

type testEnv struct {
	router   http.Handler
	auth     *fakeAuth
	coupons  *memCouponRepo
	orders   *memOrderRepo
	gateway  *fakeGateway
	storage  *memStorage
	registry *prometheus.Registry
}

type envOption func(*envConfig)

type envConfig struct {
	rateLimitMax int
	db           Pinger
	orders       []*model.Order
}

func withRateLimitMax(n int) envOption { return func(c *envConfig) { c.rateLimitMax = n } }
func withDB(p Pinger) envOption        { return func(c *envConfig) { c.db = p } }
func withOrders(orders ...*model.Order) envOption {
	return func(c *envConfig) { c.orders = orders }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{rateLimitMax: 100, db: fakePinger{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	env := &testEnv{
		auth:     &fakeAuth{},
		coupons:  newMemCouponRepo(),
		orders:   newMemOrderRepo(cfg.orders...),
		gateway:  &fakeGateway{},
		storage:  &memStorage{objects: map[string][]byte{}},
		registry: prometheus.NewRegistry(),
	}
	collector := metrics.NewCollector(env.registry)

	webhooks, err := payment.NewWebhookProcessor(webhookSecret, env.orders, collector)
	if err != nil {
		t.Fatalf("NewWebhookProcessor() error = %v", err)
	}

	env.router = NewRouter(&RouterDeps{
		AllowedOrigins:  []string{siteOrigin},
		CSRFConfig:      middleware.CSRFConfig{CookieSecure: true},
		SessionConfig:   middleware.SessionCookieConfig{CookieSecure: true, MaxAge: 28800},
		Limiter:         middleware.NewFixedWindowLimiter(middleware.RateLimiterConfig{Window: time.Minute, Max: cfg.rateLimitMax}),
		RateLimitPolicy: middleware.RateLimitPolicy{FailOpen: true},

		AdminAuth: env.auth,
		UserAuth:  env.auth,

		CouponService:      coupon.NewService(env.coupons, nopAudit{}, security.NewTextSanitizer()),
		OrderStatusService: order.NewService(env.orders, nopAudit{}),
		UserRoleService:    userrole.NewService(stubRoleRepo{}),

		PaymentOrderService: payment.NewOrderService(env.gateway, nil, collector),
		PaymentVerifier:     payment.NewVerifier(keySecret, env.orders, true, collector),
		WebhookProcessor:    webhooks,

		UploadService:  upload.NewService(upload.NewScanner(), env.storage, collector),
		UploadMaxBytes: 1024,

		DB:       cfg.db,
		Metrics:  collector,
		Gatherer: env.registry,
	})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// jsonRequest はJSONボディのリクエストを組み立てる。
func jsonRequest(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withCSRF はヘッダーとCookieに同じトークンを設定する。
func withCSRF(req *http.Request, token string) *http.Request {
	req.Header.Set(middleware.CSRFHeaderName, token)
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: token})
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// multipartRequest はfile項目を持つmultipartリクエストを組み立てる。
func multipartRequest(t *testing.T, path, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(upload.FieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
