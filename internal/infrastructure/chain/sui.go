package chain

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/shopspring/decimal"
)

// suiNativeCoinType is the coin type of SUI itself
const suiNativeCoinType = "0x2::sui::SUI"

type suiBalanceChange struct {
	Owner struct {
		AddressOwner string `json:"AddressOwner"`
	} `json:"owner"`
	CoinType string `json:"coinType"`
	Amount   string `json:"amount"`
}

type suiTransactionBlock struct {
	Digest      string `json:"digest"`
	TimestampMs string `json:"timestampMs"`
	Checkpoint  string `json:"checkpoint"`
	Effects     struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
	} `json:"effects"`
	BalanceChanges []suiBalanceChange `json:"balanceChanges"`
}

// SuiReader reads transaction blocks through Sui JSON-RPC.
// Confirmations are the number of checkpoints since inclusion.
type SuiReader struct {
	chainID string
	client  *rpc.Client
}

// NewSuiReader creates a reader over a dialed node client
func NewSuiReader(chainID string, client *rpc.Client) *SuiReader {
	return &SuiReader{chainID: chainID, client: client}
}

// Family returns SUI
func (r *SuiReader) Family() payorder.ChainFamily {
	return payorder.ChainFamilySui
}

// GetTransaction looks up a transaction digest
func (r *SuiReader) GetTransaction(ctx context.Context, hash string) (payorder.ChainTransaction, error) {
	var block *suiTransactionBlock
	err := r.client.CallContext(ctx, &block, "sui_getTransactionBlock", hash, map[string]any{
		"showEffects":        true,
		"showBalanceChanges": true,
	})
	if err != nil && !errors.Is(err, rpc.ErrNoResult) {
		return payorder.ChainTransaction{}, classify(r.chainID, err)
	}
	if block == nil {
		return payorder.ChainTransaction{}, payorder.ErrTransactionNotFound
	}

	out := payorder.ChainTransaction{
		Hash:      block.Digest,
		Failed:    block.Effects.Status.Status == "failure",
		Transfers: suiTransfers(block.BalanceChanges),
	}
	if out.Hash == "" {
		out.Hash = hash
	}
	if ms, err := strconv.ParseInt(block.TimestampMs, 10, 64); err == nil {
		out.Timestamp = time.UnixMilli(ms).UTC()
	}

	if block.Checkpoint == "" {
		return out, nil
	}
	included, err := strconv.ParseUint(block.Checkpoint, 10, 64)
	if err != nil {
		return out, nil
	}

	var latestRaw string
	if err := r.client.CallContext(ctx, &latestRaw, "sui_getLatestCheckpointSequenceNumber"); err != nil {
		return payorder.ChainTransaction{}, classify(r.chainID, err)
	}
	latest, err := strconv.ParseUint(latestRaw, 10, 64)
	if err == nil && latest >= included {
		out.Confirmations = latest - included + 1
	}
	return out, nil
}

func suiTransfers(changes []suiBalanceChange) []payorder.Transfer {
	var from string
	for _, c := range changes {
		if len(c.Amount) > 0 && c.Amount[0] == '-' {
			from = c.Owner.AddressOwner
			break
		}
	}

	var transfers []payorder.Transfer
	for _, c := range changes {
		amt, err := decimal.NewFromString(c.Amount)
		if err != nil || !amt.IsPositive() || c.Owner.AddressOwner == "" {
			continue
		}
		asset := c.CoinType
		if asset == suiNativeCoinType {
			asset = payorder.NativeToken
		}
		transfers = append(transfers, payorder.Transfer{
			From:   from,
			To:     c.Owner.AddressOwner,
			Asset:  asset,
			Amount: amt,
		})
	}
	return transfers
}

var _ payorder.ChainReader = (*SuiReader)(nil)
