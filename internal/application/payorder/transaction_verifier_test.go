package payorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// routedOrder returns an ETH-funded order awaiting payment at depositAddr
func routedOrder(t *testing.T) *payorder.PayOrder {
	t.Helper()
	order := quotedOrder(t, testStart)
	require.NoError(t, order.AttachRoute(payorder.RouteDetails{
		RouteID:             "cn-1",
		DepositAddress:      depositAddr,
		SourceCurrency:      "eth",
		DestinationCurrency: "usdc-eth",
		ExpectedAmount:      dec("0.05"),
	}, "", 15*time.Minute, testStart.Add(time.Minute)))
	order.ClearDomainEvents()
	return order
}

func newTestVerifier(t *testing.T, readers ChainReaders) *TransactionVerifier {
	return NewTransactionVerifier(TransactionVerifierConfig{
		Readers:         readers,
		Currencies:      testCatalog(t),
		Retrier:         fastRetrier(),
		AmountTolerance: dec("0.005"),
		Clock:           func() time.Time { return testStart.Add(5 * time.Minute) },
	})
}

func TestTransactionVerifier_Verify(t *testing.T) {
	paidAt := testStart.Add(3 * time.Minute)

	tests := []struct {
		name       string
		tx         payorder.ChainTransaction
		err        error
		wantStatus payorder.VerificationStatus
		wantReason string
	}{
		{
			name:       "confirmed payment",
			tx:         ethTransfer("0xabc", depositAddr, "0.05", 12, paidAt),
			wantStatus: payorder.VerificationMatch,
		},
		{
			name:       "recipient compared case-insensitively on EVM",
			tx:         ethTransfer("0xabc", strings.ToLower(depositAddr), "0.05", 20, paidAt),
			wantStatus: payorder.VerificationMatch,
		},
		{
			name:       "too few confirmations",
			tx:         ethTransfer("0xabc", depositAddr, "0.05", 3, paidAt),
			wantStatus: payorder.VerificationUnconfirmed,
			wantReason: "3 of 12 confirmations",
		},
		{
			name:       "unknown hash",
			err:        payorder.ErrTransactionNotFound,
			wantStatus: payorder.VerificationNotFound,
		},
		{
			name:       "wrong recipient",
			tx:         ethTransfer("0xabc", "0x0000000000000000000000000000000000000001", "0.05", 12, paidAt),
			wantStatus: payorder.VerificationMismatch,
			wantReason: "recipient",
		},
		{
			name: "wrong asset",
			tx: payorder.ChainTransaction{
				Hash:          "0xabc",
				Transfers:     []payorder.Transfer{{To: depositAddr, Asset: usdcContract, Amount: dec("100000000")}},
				Confirmations: 12,
				Timestamp:     paidAt,
			},
			wantStatus: payorder.VerificationMismatch,
			wantReason: "does not transfer ETH",
		},
		{
			name:       "amount below tolerance",
			tx:         ethTransfer("0xabc", depositAddr, "0.025", 12, paidAt),
			wantStatus: payorder.VerificationMismatch,
			wantReason: "received 0.025",
		},
		{
			name:       "amount within tolerance",
			tx:         ethTransfer("0xabc", depositAddr, "0.04976", 12, paidAt),
			wantStatus: payorder.VerificationMatch,
		},
		{
			name:       "sent before the route existed",
			tx:         ethTransfer("0xabc", depositAddr, "0.05", 12, testStart.Add(-time.Hour)),
			wantStatus: payorder.VerificationMismatch,
			wantReason: "predates",
		},
		{
			name:       "sent after expiry",
			tx:         ethTransfer("0xabc", depositAddr, "0.05", 12, testStart.Add(time.Hour)),
			wantStatus: payorder.VerificationMismatch,
			wantReason: "after the order expired",
		},
		{
			name: "reverted transaction",
			tx: func() payorder.ChainTransaction {
				tx := ethTransfer("0xabc", depositAddr, "0.05", 12, paidAt)
				tx.Failed = true
				return tx
			}(),
			wantStatus: payorder.VerificationMismatch,
			wantReason: "failed",
		},
		{
			name: "split transfers are summed",
			tx: payorder.ChainTransaction{
				Hash: "0xabc",
				Transfers: []payorder.Transfer{
					{To: depositAddr, Asset: payorder.NativeToken, Amount: dec("0.03").Shift(18)},
					{To: depositAddr, Asset: payorder.NativeToken, Amount: dec("0.02").Shift(18)},
				},
				Confirmations: 12,
				Timestamp:     paidAt,
			},
			wantStatus: payorder.VerificationMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &MockChainReader{family: payorder.ChainFamilyEVM}
			reader.On("GetTransaction", mock.Anything, "0xabc").Return(tt.tx, tt.err)

			order := routedOrder(t)
			version := order.Version
			result, err := newTestVerifier(t, ChainReaders{"ethereum": reader}).Verify(context.Background(), order, "0xabc")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, "0xabc", result.TxHash)
			assert.Equal(t, uint64(12), result.RequiredConfirmations)
			if tt.wantReason != "" {
				assert.Contains(t, result.Reason, tt.wantReason)
			}
			// evidence only
			assert.Equal(t, payorder.StatusAwaitingPayment, order.Status)
			assert.Equal(t, version, order.Version)
			assert.Empty(t, order.TxHash)
		})
	}
}

func TestTransactionVerifier_Errors(t *testing.T) {
	t.Run("chain outage after retries", func(t *testing.T) {
		reader := &MockChainReader{family: payorder.ChainFamilyEVM}
		reader.On("GetTransaction", mock.Anything, "0xabc").
			Return(payorder.ChainTransaction{}, payorder.NewProviderUnavailableError("ethereum rpc"))

		_, err := newTestVerifier(t, ChainReaders{"ethereum": reader}).Verify(context.Background(), routedOrder(t), "0xabc")
		assert.True(t, errors.Is(err, payorder.ErrProviderUnavailable))
		reader.AssertNumberOfCalls(t, "GetTransaction", 3)
	})

	t.Run("raw reader error becomes provider unavailable", func(t *testing.T) {
		reader := &MockChainReader{family: payorder.ChainFamilyEVM}
		reader.On("GetTransaction", mock.Anything, "0xabc").Return(payorder.ChainTransaction{}, errors.New("bad json"))

		_, err := newTestVerifier(t, ChainReaders{"ethereum": reader}).Verify(context.Background(), routedOrder(t), "0xabc")
		assert.True(t, errors.Is(err, payorder.ErrProviderUnavailable))
	})

	t.Run("no reader for the chain", func(t *testing.T) {
		_, err := newTestVerifier(t, ChainReaders{}).Verify(context.Background(), routedOrder(t), "0xabc")
		assert.True(t, errors.Is(err, payorder.ErrUnsupportedCurrency))
	})

	t.Run("order without route", func(t *testing.T) {
		_, err := newTestVerifier(t, ChainReaders{}).Verify(context.Background(), newDepositOrder(t, uuid.New(), testStart), "0xabc")
		assert.Error(t, err)
	})

	t.Run("confirmation override per chain", func(t *testing.T) {
		reader := &MockChainReader{family: payorder.ChainFamilyEVM}
		reader.On("GetTransaction", mock.Anything, "0xabc").
			Return(ethTransfer("0xabc", depositAddr, "0.05", 3, testStart.Add(2*time.Minute)), nil)

		v := NewTransactionVerifier(TransactionVerifierConfig{
			Readers:          ChainReaders{"ethereum": reader},
			Currencies:       testCatalog(t),
			Retrier:          fastRetrier(),
			MinConfirmations: map[string]uint64{"ethereum": 3},
		})
		result, err := v.Verify(context.Background(), routedOrder(t), "0xabc")
		require.NoError(t, err)
		assert.Equal(t, payorder.VerificationMatch, result.Status)
	})
}
