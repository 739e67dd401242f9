package payorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Default confirmation thresholds per chain family
var defaultMinConfirmations = map[payorder.ChainFamily]uint64{
	payorder.ChainFamilyEVM:    12,
	payorder.ChainFamilySolana: 32,
	payorder.ChainFamilySui:    1,
}

// blockTimeSkew allows for block timestamps that trail the wall clock
const blockTimeSkew = 2 * time.Minute

// ChainReaders maps a chain ID to the reader for that chain
type ChainReaders map[string]payorder.ChainReader

// TransactionVerifierConfig holds the dependencies of a TransactionVerifier
type TransactionVerifierConfig struct {
	Readers    ChainReaders
	Currencies payorder.CurrencyResolver
	Retrier    *Retrier
	// MinConfirmations overrides the family default per chain ID
	MinConfirmations map[string]uint64
	AmountTolerance  decimal.Decimal
	Logger           *zap.Logger
	Clock            func() time.Time
}

// TransactionVerifier checks a submitted transaction against an order's route.
// It produces evidence only and never changes the order.
type TransactionVerifier struct {
	readers          ChainReaders
	currencies       payorder.CurrencyResolver
	retrier          *Retrier
	minConfirmations map[string]uint64
	tolerance        decimal.Decimal
	logger           *zap.Logger
	clock            func() time.Time
}

// NewTransactionVerifier creates a new TransactionVerifier
func NewTransactionVerifier(cfg TransactionVerifierConfig) *TransactionVerifier {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig(), logger)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	minConf := cfg.MinConfirmations
	if minConf == nil {
		minConf = map[string]uint64{}
	}
	return &TransactionVerifier{
		readers:          cfg.Readers,
		currencies:       cfg.Currencies,
		retrier:          retrier,
		minConfirmations: minConf,
		tolerance:        cfg.AmountTolerance,
		logger:           logger,
		clock:            clock,
	}
}

// Verify looks the transaction up on the source currency's chain and compares
// it with the order's route.
func (v *TransactionVerifier) Verify(ctx context.Context, order *payorder.PayOrder, txHash string) (payorder.VerificationResult, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return payorder.VerificationResult{}, shared.NewDomainError("INVALID_TX_HASH", "Transaction hash cannot be empty")
	}
	if order.Route == nil {
		return payorder.VerificationResult{}, shared.NewDomainError("INVALID_STATE", "Payment details have not been provisioned")
	}

	cur, err := v.currencies.Lookup(order.Route.SourceCurrency)
	if err != nil {
		return payorder.VerificationResult{}, err
	}
	reader, ok := v.readers[cur.Chain]
	if !ok {
		return payorder.VerificationResult{}, fmt.Errorf("%w: no reader for chain %s", payorder.ErrUnsupportedCurrency, cur.Chain)
	}

	var tx payorder.ChainTransaction
	err = v.retrier.Do(ctx, "chain.get_transaction", func(ctx context.Context) error {
		var err error
		tx, err = reader.GetTransaction(ctx, txHash)
		return err
	})

	result := payorder.VerificationResult{
		TxHash:                txHash,
		RequiredConfirmations: v.requiredConfirmations(cur),
		ObservedAt:            v.clock(),
	}
	if errors.Is(err, payorder.ErrTransactionNotFound) {
		result.Status = payorder.VerificationNotFound
		result.Reason = "transaction not found"
		return result, nil
	}
	if err != nil {
		v.logger.Warn("Chain lookup failed",
			zap.String("order_id", order.ID.String()),
			zap.String("chain", cur.Chain),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		if IsTransient(err) {
			return payorder.VerificationResult{}, err
		}
		return payorder.VerificationResult{}, fmt.Errorf("%w: %v", payorder.NewProviderUnavailableError("chain "+cur.Chain), err)
	}

	result.Confirmations = tx.Confirmations
	result.TxTimestamp = tx.Timestamp

	v.evaluate(order, cur, tx, &result)

	v.logger.Debug("Transaction verified",
		zap.String("order_id", order.ID.String()),
		zap.String("tx_hash", txHash),
		zap.String("status", string(result.Status)),
		zap.String("amount_observed", result.AmountObserved.String()),
		zap.Uint64("confirmations", result.Confirmations),
	)

	return result, nil
}

func (v *TransactionVerifier) evaluate(order *payorder.PayOrder, cur payorder.Currency, tx payorder.ChainTransaction, result *payorder.VerificationResult) {
	route := order.Route
	mismatch := func(reason string) {
		result.Status = payorder.VerificationMismatch
		result.Reason = reason
	}

	if tx.Failed {
		mismatch("transaction failed on chain")
		return
	}

	toDeposit := false
	units := decimal.Zero
	for _, t := range tx.Transfers {
		if !sameAddress(cur.Family, t.To, route.DepositAddress) {
			continue
		}
		toDeposit = true
		if cur.SameToken(t.Asset) {
			units = units.Add(t.Amount)
		}
	}
	if !toDeposit {
		mismatch("recipient does not match the deposit address")
		return
	}
	if units.IsZero() {
		mismatch(fmt.Sprintf("transaction does not transfer %s", cur.Ticker))
		return
	}

	result.AmountObserved = cur.FromBaseUnits(units)
	minimum := route.ExpectedAmount.Mul(decimal.NewFromInt(1).Sub(v.tolerance))
	if result.AmountObserved.LessThan(minimum) {
		mismatch(fmt.Sprintf("received %s, expected at least %s", result.AmountObserved, minimum))
		return
	}

	if !tx.Timestamp.IsZero() {
		if tx.Timestamp.Before(route.ProvisionedAt.Add(-blockTimeSkew)) {
			mismatch("transaction predates the payment route")
			return
		}
		if !tx.Timestamp.Before(order.ExpiresAt) {
			mismatch("transaction was sent after the order expired")
			return
		}
	}

	if tx.Confirmations < result.RequiredConfirmations {
		result.Status = payorder.VerificationUnconfirmed
		result.Reason = fmt.Sprintf("%d of %d confirmations", tx.Confirmations, result.RequiredConfirmations)
		return
	}
	result.Status = payorder.VerificationMatch
}

func (v *TransactionVerifier) requiredConfirmations(cur payorder.Currency) uint64 {
	if n, ok := v.minConfirmations[cur.Chain]; ok && n > 0 {
		return n
	}
	if n, ok := defaultMinConfirmations[cur.Family]; ok {
		return n
	}
	return 1
}

func sameAddress(family payorder.ChainFamily, a, b string) bool {
	if family == payorder.ChainFamilyEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}
