package payorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Harness
// =============================================================================

type serviceHarness struct {
	repo       *fakeRepository
	orgRepo    *MockOrganizationRepository
	pricing    *MockPricingProvider
	routing    *MockRoutingProvider
	reader     *MockChainReader
	publisher  *MockEventPublisher
	clock      *testClock
	org        *payorder.Organization
	svc        *PayOrderService
	expiry     *ExpiryService
	settlement *SettlementService
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		repo:      newFakeRepository(),
		orgRepo:   new(MockOrganizationRepository),
		pricing:   new(MockPricingProvider),
		routing:   new(MockRoutingProvider),
		reader:    &MockChainReader{family: payorder.ChainFamilyEVM},
		publisher: new(MockEventPublisher),
		clock:     newTestClock(),
	}

	org, err := payorder.NewOrganization("Acme", uuid.New(), []payorder.SettlementCurrency{
		{CurrencyID: "usdc-eth", Address: "0x000000000000000000000000000000000000bEEF"},
	})
	require.NoError(t, err)
	h.org = org

	h.orgRepo.On("FindByID", mock.Anything, org.ID).Return(org, nil).Maybe()
	h.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.pricing.On("GetPrice", mock.Anything, "usdc-eth").Return(price("1"), nil).Maybe()
	h.pricing.On("GetPrice", mock.Anything, "eth").Return(price("2000"), nil).Maybe()
	h.routing.On("CreateRoute", mock.Anything, mock.Anything).
		Return(payorder.RouteDetails{RouteID: "cn-1", DepositAddress: depositAddr}, nil).Maybe()

	catalog := testCatalog(t)
	retrier := fastRetrier()
	h.svc = NewPayOrderService(PayOrderServiceConfig{
		Repo:       h.repo,
		OrgRepo:    h.orgRepo,
		Currencies: catalog,
		Quotes: NewQuoteEngine(QuoteEngineConfig{
			Pricing: h.pricing, Currencies: catalog, Retrier: retrier, QuoteTTL: 5 * time.Minute, Clock: h.clock.Now,
		}),
		Provisioner: NewRouteProvisioner(RouteProvisionerConfig{
			Routing: h.routing, Currencies: catalog, Claims: newMemoryClaims(), Retrier: retrier, Clock: h.clock.Now,
		}),
		Verifier: NewTransactionVerifier(TransactionVerifierConfig{
			Readers: ChainReaders{"ethereum": h.reader}, Currencies: catalog, Retrier: retrier,
			AmountTolerance: dec("0.005"), Clock: h.clock.Now,
		}),
		Routing:        h.routing,
		Retrier:        retrier,
		EventPublisher: h.publisher,
		Policy:         payorder.DefaultVerificationPolicy(),
		OrderTTL:       30 * time.Minute,
		PaymentWindow:  15 * time.Minute,
		Clock:          h.clock.Now,
	})
	h.expiry = NewExpiryService(h.repo, h.publisher, 50, nil).WithClock(h.clock.Now)
	h.settlement = NewSettlementService(h.repo, h.routing, retrier, h.publisher, 50, nil)
	return h
}

// awaitingPayment creates a 100 USDC deposit order, quotes it in ETH and
// provisions payment details
func (h *serviceHarness) awaitingPayment(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	amount := dec("100")

	created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{
		Mode:                "DEPOSIT",
		DestinationCurrency: "usdc-eth",
		DestinationAddress:  "0x000000000000000000000000000000000000dEaD",
		AmountExpected:      &amount,
	})
	require.NoError(t, err)

	quote, err := h.svc.Quote(ctx, h.org.ID, created.ID, QuoteRequest{CandidateCurrencies: []string{"eth"}})
	require.NoError(t, err)
	require.Len(t, quote.Options, 1)
	require.True(t, quote.Options[0].ImpliedAmount.Equal(dec("0.05")))

	details, err := h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
	require.NoError(t, err)
	require.Equal(t, string(payorder.StatusAwaitingPayment), details.Status)
	return created.ID
}

func (h *serviceHarness) stored(t *testing.T, id uuid.UUID) *payorder.PayOrder {
	t.Helper()
	order, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

// =============================================================================
// Scenarios
// =============================================================================

func TestPayOrderService_ScenarioCompleted(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	h.clock.Advance(2 * time.Minute)
	h.reader.On("GetTransaction", mock.Anything, "0xpay").
		Return(ethTransfer("0xpay", depositAddr, "0.05", 12, h.clock.Now().Add(-30*time.Second)), nil)
	h.routing.On("GetRoute", mock.Anything, "cn-1").
		Return(payorder.RouteStatusReport{RouteID: "cn-1", Status: payorder.RouteStatusInProgress}, nil).Once()

	resp, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
	require.NoError(t, err)
	assert.Equal(t, string(payorder.StatusExecutingOrder), resp.Order.Status)
	require.NotNil(t, resp.Verification)
	assert.Equal(t, payorder.VerificationMatch, resp.Verification.Status)

	h.routing.On("GetRoute", mock.Anything, "cn-1").
		Return(payorder.RouteStatusReport{RouteID: "cn-1", Status: payorder.RouteStatusSettled, PayoutTxHash: "0xout"}, nil)

	poll, err := h.settlement.PollSettlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, poll.Completed)

	order := h.stored(t, id)
	assert.Equal(t, payorder.StatusCompleted, order.Status)
	assert.Equal(t, "0xpay", order.TxHash)

	var path []payorder.Status
	for _, rec := range order.Transitions {
		path = append(path, rec.To)
	}
	assert.Equal(t, []payorder.Status{
		payorder.StatusPending,
		payorder.StatusAwaitingPayment,
		payorder.StatusAwaitingConfirmation,
		payorder.StatusExecutingOrder,
		payorder.StatusCompleted,
	}, path)

	// replay after completion
	version := order.Version
	again, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
	require.NoError(t, err)
	assert.Equal(t, string(payorder.StatusCompleted), again.Order.Status)
	assert.Equal(t, version, h.stored(t, id).Version)
}

func TestPayOrderService_ScenarioMismatchBudget(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)
	h.clock.Advance(time.Minute)

	for i, hash := range []string{"0x1", "0x2", "0x3"} {
		h.reader.On("GetTransaction", mock.Anything, hash).
			Return(ethTransfer(hash, depositAddr, "0.025", 12, h.clock.Now()), nil)

		_, err := h.svc.Process(ctx, h.org.ID, id, hash)
		assert.True(t, errors.Is(err, payorder.ErrVerificationMismatch), "attempt %d", i+1)

		order := h.stored(t, id)
		assert.Equal(t, i+1, order.MismatchCount)
		if i < 2 {
			assert.Equal(t, payorder.StatusAwaitingPayment, order.Status)
		}

		if i == 0 {
			// a rejected hash never counts twice
			_, err := h.svc.Process(ctx, h.org.ID, id, hash)
			assert.True(t, errors.Is(err, payorder.ErrVerificationMismatch))
			assert.Equal(t, 1, h.stored(t, id).MismatchCount)
		}
	}

	order := h.stored(t, id)
	assert.Equal(t, payorder.StatusFailed, order.Status)
	assert.Empty(t, order.TxHash)

	_, err := h.svc.Process(ctx, h.org.ID, id, "0x4")
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestPayOrderService_ScenarioSweepThenSubmit(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	h.clock.Advance(16 * time.Minute)
	result, err := h.expiry.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalExpired)
	assert.Equal(t, 1, result.SuccessExpired)
	assert.Equal(t, payorder.StatusExpired, h.stored(t, id).Status)

	_, err = h.svc.Process(ctx, h.org.ID, id, "0xlate")
	assert.True(t, errors.Is(err, payorder.ErrOrderExpired))
	h.reader.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything)
}

// =============================================================================
// Process
// =============================================================================

func TestPayOrderService_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("not found before expiry leaves the order waiting", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xsoon").Return(payorder.ChainTransaction{}, payorder.ErrTransactionNotFound)

		resp, err := h.svc.Process(ctx, h.org.ID, id, "0xsoon")
		require.NoError(t, err)
		assert.Equal(t, string(payorder.StatusAwaitingPayment), resp.Order.Status)
		assert.Equal(t, payorder.VerificationNotFound, resp.Verification.Status)
	})

	t.Run("not found after expiry expires lazily", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.clock.Advance(20 * time.Minute)
		h.reader.On("GetTransaction", mock.Anything, "0xlost").Return(payorder.ChainTransaction{}, payorder.ErrTransactionNotFound)

		_, err := h.svc.Process(ctx, h.org.ID, id, "0xlost")
		assert.True(t, errors.Is(err, payorder.ErrOrderExpired))
		assert.Equal(t, payorder.StatusExpired, h.stored(t, id).Status)
	})

	t.Run("unconfirmed then confirmed", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.clock.Advance(time.Minute)
		paidAt := h.clock.Now()

		h.reader.On("GetTransaction", mock.Anything, "0xpay").
			Return(ethTransfer("0xpay", depositAddr, "0.05", 2, paidAt), nil).Once()
		resp, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
		require.NoError(t, err)
		assert.Equal(t, string(payorder.StatusAwaitingConfirmation), resp.Order.Status)

		// polling without a hash uses the bound one
		h.reader.On("GetTransaction", mock.Anything, "0xpay").
			Return(ethTransfer("0xpay", depositAddr, "0.05", 12, paidAt), nil)
		h.routing.On("GetRoute", mock.Anything, "cn-1").
			Return(payorder.RouteStatusReport{}, payorder.NewProviderUnavailableError("changenow"))
		h.clock.Advance(30 * time.Minute)

		resp, err = h.svc.Process(ctx, h.org.ID, id, "")
		require.NoError(t, err)
		assert.Equal(t, string(payorder.StatusExecutingOrder), resp.Order.Status)
	})

	t.Run("a transaction that never confirms fails at the deadline", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xstuck").
			Return(ethTransfer("0xstuck", depositAddr, "0.05", 2, h.clock.Now()), nil).Once()
		resp, err := h.svc.Process(ctx, h.org.ID, id, "0xstuck")
		require.NoError(t, err)
		require.Equal(t, string(payorder.StatusAwaitingConfirmation), resp.Order.Status)

		// dropped from the mempool
		h.reader.On("GetTransaction", mock.Anything, "0xstuck").Return(payorder.ChainTransaction{}, payorder.ErrTransactionNotFound)
		h.clock.Advance(30 * time.Minute)
		resp, err = h.svc.Process(ctx, h.org.ID, id, "")
		require.NoError(t, err)
		assert.Equal(t, string(payorder.StatusAwaitingConfirmation), resp.Order.Status)

		h.clock.Advance(31 * time.Minute)
		_, err = h.svc.Process(ctx, h.org.ID, id, "")
		assert.True(t, errors.Is(err, payorder.ErrConfirmationTimeout))

		order := h.stored(t, id)
		assert.Equal(t, payorder.StatusFailed, order.Status)
		last, ok := order.LastTransition()
		require.True(t, ok)
		assert.Equal(t, payorder.EventConfirmationTimedOut, last.Event)
	})

	t.Run("a quote on an unconfirmed order past its deadline fails it", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xslow").
			Return(ethTransfer("0xslow", depositAddr, "0.05", 1, h.clock.Now()), nil).Once()
		_, err := h.svc.Process(ctx, h.org.ID, id, "0xslow")
		require.NoError(t, err)

		h.clock.Advance(2 * time.Hour)
		_, err = h.svc.Quote(ctx, h.org.ID, id, QuoteRequest{CandidateCurrencies: []string{"eth"}})
		assert.True(t, errors.Is(err, payorder.ErrConfirmationTimeout))
		assert.Equal(t, payorder.StatusFailed, h.stored(t, id).Status)
	})

	t.Run("a different hash cannot replace the bound one", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xpay").
			Return(ethTransfer("0xpay", depositAddr, "0.05", 1, h.clock.Now()), nil)
		_, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
		require.NoError(t, err)

		_, err = h.svc.Process(ctx, h.org.ID, id, "0xother")
		assert.True(t, errors.Is(err, payorder.ErrTxHashAlreadySet))
	})

	t.Run("pending order has no payment details", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("100")
		created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{
			Mode: "DEPOSIT", DestinationCurrency: "usdc-eth", DestinationAddress: "0xdead", AmountExpected: &amount,
		})
		require.NoError(t, err)

		_, err = h.svc.Process(ctx, h.org.ID, created.ID, "0xpay")
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("another organization's order is not found", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		_, err := h.svc.Process(ctx, uuid.New(), id, "0xpay")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("concurrent duplicate submissions commit once", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xpay").
			Return(ethTransfer("0xpay", depositAddr, "0.05", 12, h.clock.Now()), nil)
		h.routing.On("GetRoute", mock.Anything, "cn-1").
			Return(payorder.RouteStatusReport{RouteID: "cn-1", Status: payorder.RouteStatusInProgress}, nil)

		before := h.stored(t, id).Version
		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				resp, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
				if err == nil {
					assert.Equal(t, string(payorder.StatusExecutingOrder), resp.Order.Status)
				}
				errs[i] = err
			}(i)
		}
		close(start)
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		order := h.stored(t, id)
		assert.Equal(t, before+1, order.Version)
		assert.Len(t, order.Transitions, 4)
	})

	t.Run("losing a race to a different outcome is a conflict", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)
		h.reader.On("GetTransaction", mock.Anything, "0xpay").
			Return(ethTransfer("0xpay", depositAddr, "0.05", 12, h.clock.Now()), nil)
		h.routing.On("GetRoute", mock.Anything, "cn-1").
			Return(payorder.RouteStatusReport{RouteID: "cn-1", Status: payorder.RouteStatusInProgress}, nil)

		// The sweep wins between evidence gathering and the write
		h.repo.beforeSave = func(order *payorder.PayOrder) {
			h.repo.beforeSave = nil
			winner, err := h.repo.FindByID(ctx, order.ID)
			require.NoError(t, err)
			winner.Status = payorder.StatusFailed
			require.NoError(t, h.repo.SaveWithLock(ctx, winner))
		}

		_, err := h.svc.Process(ctx, h.org.ID, id, "0xpay")
		assert.True(t, errors.Is(err, payorder.ErrConcurrentTransitionConflict))
	})
}

// =============================================================================
// Create / Quote / PaymentDetails / List
// =============================================================================

func TestPayOrderService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("sale order takes the settlement address", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("25")
		resp, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "SALE", DestinationCurrency: "usdc-eth", AmountExpected: &amount})
		require.NoError(t, err)
		assert.Equal(t, "0x000000000000000000000000000000000000bEEF", resp.DestinationAddress)
		assert.Equal(t, string(payorder.StatusPending), resp.Status)
		assert.Equal(t, testStart.Add(30*time.Minute), resp.ExpiresAt)
	})

	t.Run("sale order without settlement currencies", func(t *testing.T) {
		h := newServiceHarness(t)
		bare, err := payorder.NewOrganization("Bare", uuid.New(), nil)
		require.NoError(t, err)
		h.orgRepo.On("FindByID", mock.Anything, bare.ID).Return(bare, nil)

		usd := dec("10")
		_, err = h.svc.Create(ctx, bare.ID, CreatePayOrderRequest{Mode: "SALE", DestinationValueUSD: &usd})
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "NO_SETTLEMENT_CURRENCIES", de.Code)
	})

	t.Run("unsupported destination", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("1")
		_, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "doge", DestinationAddress: "D1", AmountExpected: &amount})
		assert.True(t, errors.Is(err, payorder.ErrUnsupportedCurrency))
	})

	t.Run("publishes the creation event", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("5")
		_, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)
		h.publisher.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			return len(events) == 1 && events[0].EventType() == payorder.EventTypePayOrderCreated
		}))
	})
}

func TestPayOrderService_PaymentDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("second request returns the same route", func(t *testing.T) {
		h := newServiceHarness(t)
		id := h.awaitingPayment(t)

		again, err := h.svc.PaymentDetails(ctx, h.org.ID, id, PaymentDetailsRequest{SourceCurrency: "eth"})
		require.NoError(t, err)
		require.NotNil(t, again.PaymentDetails)
		assert.Equal(t, "cn-1", again.PaymentDetails.RouteID)
		h.routing.AssertNumberOfCalls(t, "CreateRoute", 1)
	})

	t.Run("a route survives losing the write to a concurrent update", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("100")
		created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "usdc-eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)
		_, err = h.svc.Quote(ctx, h.org.ID, created.ID, QuoteRequest{CandidateCurrencies: []string{"eth"}})
		require.NoError(t, err)

		// a requote lands between provisioning and the write
		h.repo.beforeSave = func(order *payorder.PayOrder) {
			h.repo.beforeSave = nil
			other, err := h.repo.FindByID(ctx, order.ID)
			require.NoError(t, err)
			require.NoError(t, h.repo.SaveWithLock(ctx, other))
		}

		resp, err := h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
		require.NoError(t, err)
		assert.Equal(t, string(payorder.StatusAwaitingPayment), resp.Status)
		require.NotNil(t, resp.PaymentDetails)
		assert.Equal(t, "cn-1", resp.PaymentDetails.RouteID)

		stored := h.stored(t, created.ID)
		require.NotNil(t, stored.Route)
		assert.Equal(t, "cn-1", stored.Route.RouteID)

		again, err := h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
		require.NoError(t, err)
		assert.Equal(t, "cn-1", again.PaymentDetails.RouteID)
		h.routing.AssertNumberOfCalls(t, "CreateRoute", 1)
	})

	t.Run("a route is not reattached once the order moved on", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("100")
		created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "usdc-eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)
		_, err = h.svc.Quote(ctx, h.org.ID, created.ID, QuoteRequest{CandidateCurrencies: []string{"eth"}})
		require.NoError(t, err)

		h.repo.beforeSave = func(order *payorder.PayOrder) {
			h.repo.beforeSave = nil
			other, err := h.repo.FindByID(ctx, order.ID)
			require.NoError(t, err)
			other.Status = payorder.StatusExpired
			require.NoError(t, h.repo.SaveWithLock(ctx, other))
		}

		_, err = h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
		assert.True(t, errors.Is(err, payorder.ErrConcurrentTransitionConflict))
		assert.Nil(t, h.stored(t, created.ID).Route)
	})

	t.Run("stale quote", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("100")
		created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "usdc-eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)
		_, err = h.svc.Quote(ctx, h.org.ID, created.ID, QuoteRequest{CandidateCurrencies: []string{"eth"}})
		require.NoError(t, err)

		h.clock.Advance(6 * time.Minute)
		_, err = h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
		assert.True(t, errors.Is(err, payorder.ErrStaleQuote))
	})

	t.Run("overdue pending order expires", func(t *testing.T) {
		h := newServiceHarness(t)
		amount := dec("100")
		created, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "usdc-eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)

		h.clock.Advance(31 * time.Minute)
		_, err = h.svc.PaymentDetails(ctx, h.org.ID, created.ID, PaymentDetailsRequest{SourceCurrency: "eth"})
		assert.True(t, errors.Is(err, payorder.ErrOrderExpired))
		assert.Equal(t, payorder.StatusExpired, h.stored(t, created.ID).Status)
	})
}

func TestPayOrderService_List(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.awaitingPayment(t)
	amount := dec("1")
	for range 2 {
		h.clock.Advance(time.Second)
		_, err := h.svc.Create(ctx, h.org.ID, CreatePayOrderRequest{Mode: "DEPOSIT", DestinationCurrency: "eth", DestinationAddress: "0xdead", AmountExpected: &amount})
		require.NoError(t, err)
	}

	all, err := h.svc.List(ctx, h.org.ID, ListPayOrdersFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 20, all.PageSize)

	pending, err := h.svc.List(ctx, h.org.ID, ListPayOrdersFilter{Status: "PENDING", PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.Total)
	assert.Len(t, pending.Items, 1)
	assert.Equal(t, 2, pending.TotalPages)

	_, err = h.svc.List(ctx, h.org.ID, ListPayOrdersFilter{Status: "BOGUS"})
	assert.Error(t, err)
}
