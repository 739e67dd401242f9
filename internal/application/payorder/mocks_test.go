package payorder

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Mock Providers
// =============================================================================

type MockPricingProvider struct {
	mock.Mock
}

func (m *MockPricingProvider) GetPrice(ctx context.Context, currency payorder.Currency) (payorder.Price, error) {
	args := m.Called(ctx, currency.ID)
	return args.Get(0).(payorder.Price), args.Error(1)
}

type MockRoutingProvider struct {
	mock.Mock
}

func (m *MockRoutingProvider) Name() string {
	return "mock-router"
}

func (m *MockRoutingProvider) CreateRoute(ctx context.Context, req payorder.RouteRequest) (payorder.RouteDetails, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payorder.RouteDetails), args.Error(1)
}

func (m *MockRoutingProvider) GetRoute(ctx context.Context, routeID string) (payorder.RouteStatusReport, error) {
	args := m.Called(ctx, routeID)
	return args.Get(0).(payorder.RouteStatusReport), args.Error(1)
}

type MockChainReader struct {
	mock.Mock
	family payorder.ChainFamily
}

func (m *MockChainReader) Family() payorder.ChainFamily {
	return m.family
}

func (m *MockChainReader) GetTransaction(ctx context.Context, hash string) (payorder.ChainTransaction, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(payorder.ChainTransaction), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type MockOrganizationRepository struct {
	mock.Mock
}

func (m *MockOrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*payorder.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payorder.Organization), args.Error(1)
}

func (m *MockOrganizationRepository) FindByAPIKey(ctx context.Context, apiKey string) (*payorder.Organization, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payorder.Organization), args.Error(1)
}

func (m *MockOrganizationRepository) ExistsByAPIKey(ctx context.Context, apiKey string) (bool, error) {
	args := m.Called(ctx, apiKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrganizationRepository) Save(ctx context.Context, org *payorder.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *MockOrganizationRepository) SaveWithLock(ctx context.Context, org *payorder.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

// =============================================================================
// In-memory fakes
// =============================================================================

// fakeRepository keeps copies of orders and enforces the version check the
// real repository does
type fakeRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]payorder.PayOrder
	// beforeSave runs inside SaveWithLock, before the version check
	beforeSave func(order *payorder.PayOrder)
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{orders: map[uuid.UUID]payorder.PayOrder{}}
}

func (r *fakeRepository) load(id uuid.UUID) (*payorder.PayOrder, error) {
	stored, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	o := stored
	o.Transitions = append([]payorder.TransitionRecord(nil), stored.Transitions...)
	o.RejectedTxHashes = append([]string(nil), stored.RejectedTxHashes...)
	o.ClearDomainEvents()
	return &o, nil
}

func (r *fakeRepository) FindByID(_ context.Context, id uuid.UUID) (*payorder.PayOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *fakeRepository) FindByIDForOrganization(_ context.Context, orgID, id uuid.UUID) (*payorder.PayOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if o.OrganizationID != orgID {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (r *fakeRepository) FindAllForOrganization(_ context.Context, orgID uuid.UUID, filter shared.Filter) ([]payorder.PayOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.matching(orgID, filter)
	start := filter.Offset()
	if start > len(out) {
		return []payorder.PayOrder{}, nil
	}
	end := min(start+filter.PageSize, len(out))
	return out[start:end], nil
}

func (r *fakeRepository) CountForOrganization(_ context.Context, orgID uuid.UUID, filter shared.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(orgID, filter))), nil
}

func (r *fakeRepository) matching(orgID uuid.UUID, filter shared.Filter) []payorder.PayOrder {
	out := make([]payorder.PayOrder, 0)
	for id, o := range r.orders {
		if o.OrganizationID != orgID {
			continue
		}
		if status, ok := filter.Filters["status"]; ok && o.Status != status {
			continue
		}
		loaded, _ := r.load(id)
		out = append(out, *loaded)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *fakeRepository) FindExpirable(_ context.Context, now time.Time, limit int) ([]payorder.PayOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payorder.PayOrder, 0)
	for id, o := range r.orders {
		if o.IsOverdue(now) && len(out) < limit {
			loaded, _ := r.load(id)
			out = append(out, *loaded)
		}
	}
	return out, nil
}

func (r *fakeRepository) FindByStatus(_ context.Context, status payorder.Status, limit int) ([]payorder.PayOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payorder.PayOrder, 0)
	for id, o := range r.orders {
		if o.Status == status && len(out) < limit {
			loaded, _ := r.load(id)
			out = append(out, *loaded)
		}
	}
	return out, nil
}

func (r *fakeRepository) Save(_ context.Context, order *payorder.PayOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *fakeRepository) SaveWithLock(_ context.Context, order *payorder.PayOrder) error {
	if r.beforeSave != nil {
		r.beforeSave(order)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != order.Version {
		return payorder.ErrConcurrentTransitionConflict
	}
	order.IncrementVersion()
	r.orders[order.ID] = *order
	return nil
}

// memoryClaims is a ClaimStore without TTL handling
type memoryClaims struct {
	mu     sync.Mutex
	claims map[string]bool
}

func newMemoryClaims() *memoryClaims {
	return &memoryClaims{claims: map[string]bool{}}
}

func (c *memoryClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *memoryClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}

func (c *memoryClaims) Close() error { return nil }

// =============================================================================
// Fixtures
// =============================================================================

const (
	usdcContract = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	depositAddr  = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
)

var testStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testStart}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCatalog(t *testing.T) *payorder.CurrencyCatalog {
	t.Helper()
	catalog, err := payorder.NewCurrencyCatalog([]payorder.Currency{
		{ID: "eth", Ticker: "ETH", Chain: "ethereum", Family: payorder.ChainFamilyEVM, Token: payorder.NativeToken, Decimals: 18, PricingID: "ethereum", RoutingTicker: "eth", RoutingNetwork: "eth"},
		{ID: "usdc-eth", Ticker: "USDC", Chain: "ethereum", Family: payorder.ChainFamilyEVM, Token: usdcContract, Decimals: 6, PricingID: "usd-coin", RoutingTicker: "usdc", RoutingNetwork: "eth"},
		{ID: "sol", Ticker: "SOL", Chain: "solana", Family: payorder.ChainFamilySolana, Token: payorder.NativeToken, Decimals: 9, PricingID: "solana", RoutingTicker: "sol", RoutingNetwork: "sol"},
		{ID: "sui", Ticker: "SUI", Chain: "sui", Family: payorder.ChainFamilySui, Token: "0x2::sui::SUI", Decimals: 9, PricingID: "sui", RoutingTicker: "sui", RoutingNetwork: "sui"},
	})
	require.NoError(t, err)
	return catalog
}

func fastRetrier() *Retrier {
	return NewRetrier(RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}, zap.NewNop())
}

func price(v string) payorder.Price {
	return payorder.Price{UnitPriceUSD: decimal.RequireFromString(v), AsOf: testStart}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newDepositOrder(t *testing.T, orgID uuid.UUID, now time.Time) *payorder.PayOrder {
	t.Helper()
	order, err := payorder.NewPayOrder(payorder.NewPayOrderParams{
		OrganizationID:      orgID,
		Mode:                payorder.ModeDeposit,
		DestinationCurrency: "usdc-eth",
		DestinationAddress:  "0x000000000000000000000000000000000000dEaD",
		AmountExpected:      dec("100"),
		TTL:                 15 * time.Minute,
	}, now)
	require.NoError(t, err)
	order.ClearDomainEvents()
	return order
}

// ethTransfer builds a native ETH payment of amount whole units
func ethTransfer(hash, to, amount string, confirmations uint64, at time.Time) payorder.ChainTransaction {
	return payorder.ChainTransaction{
		Hash: hash,
		Transfers: []payorder.Transfer{
			{From: "0xpayer", To: to, Asset: payorder.NativeToken, Amount: dec(amount).Shift(18)},
		},
		Confirmations: confirmations,
		Timestamp:     at,
	}
}
