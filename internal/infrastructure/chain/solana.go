package chain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/shopspring/decimal"
)

// solanaFinalizedConfirmations is reported for finalized signatures, whose
// status no longer carries a confirmation count
const solanaFinalizedConfirmations = 32

type solanaAccountKey struct {
	Pubkey string `json:"pubkey"`
	Signer bool   `json:"signer"`
}

type solanaTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

type solanaTransaction struct {
	BlockTime *int64 `json:"blockTime"`
	Meta      struct {
		Err               json.RawMessage      `json:"err"`
		PreBalances       []decimal.Decimal    `json:"preBalances"`
		PostBalances      []decimal.Decimal    `json:"postBalances"`
		PreTokenBalances  []solanaTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []solanaTokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []solanaAccountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

type solanaSignatureStatus struct {
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

type solanaStatuses struct {
	Value []*solanaSignatureStatus `json:"value"`
}

// SolanaReader reads transactions through Solana JSON-RPC.
// Transfers are derived from balance deltas, so the destination of an SPL
// transfer is the token account owner rather than the token account.
type SolanaReader struct {
	chainID string
	client  *rpc.Client
}

// NewSolanaReader creates a reader over a dialed node client
func NewSolanaReader(chainID string, client *rpc.Client) *SolanaReader {
	return &SolanaReader{chainID: chainID, client: client}
}

// Family returns SOLANA
func (r *SolanaReader) Family() payorder.ChainFamily {
	return payorder.ChainFamilySolana
}

// GetTransaction looks up a signature
func (r *SolanaReader) GetTransaction(ctx context.Context, hash string) (payorder.ChainTransaction, error) {
	var tx *solanaTransaction
	err := r.client.CallContext(ctx, &tx, "getTransaction", hash, map[string]any{
		"encoding":                       "jsonParsed",
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil && !errors.Is(err, rpc.ErrNoResult) {
		return payorder.ChainTransaction{}, classify(r.chainID, err)
	}
	if tx == nil {
		return r.pending(ctx, hash)
	}

	out := payorder.ChainTransaction{
		Hash:      hash,
		Failed:    isSet(tx.Meta.Err),
		Transfers: solanaTransfers(tx),
	}
	if tx.BlockTime != nil {
		out.Timestamp = time.Unix(*tx.BlockTime, 0).UTC()
	}

	status, err := r.status(ctx, hash)
	if err != nil {
		return payorder.ChainTransaction{}, err
	}
	if status != nil {
		out.Confirmations = confirmationsOf(status)
	}
	return out, nil
}

// pending distinguishes a processed-but-unconfirmed signature from an unknown one
func (r *SolanaReader) pending(ctx context.Context, hash string) (payorder.ChainTransaction, error) {
	status, err := r.status(ctx, hash)
	if err != nil {
		return payorder.ChainTransaction{}, err
	}
	if status == nil {
		return payorder.ChainTransaction{}, payorder.ErrTransactionNotFound
	}
	return payorder.ChainTransaction{Hash: hash, Failed: isSet(status.Err)}, nil
}

func (r *SolanaReader) status(ctx context.Context, hash string) (*solanaSignatureStatus, error) {
	var statuses solanaStatuses
	err := r.client.CallContext(ctx, &statuses, "getSignatureStatuses", []string{hash}, map[string]any{
		"searchTransactionHistory": true,
	})
	if err != nil && !errors.Is(err, rpc.ErrNoResult) {
		return nil, classify(r.chainID, err)
	}
	if len(statuses.Value) == 0 {
		return nil, nil
	}
	return statuses.Value[0], nil
}

func confirmationsOf(s *solanaSignatureStatus) uint64 {
	switch {
	case s.Confirmations != nil:
		return *s.Confirmations
	case s.ConfirmationStatus == "finalized":
		return solanaFinalizedConfirmations
	default:
		return 0
	}
}

func solanaTransfers(tx *solanaTransaction) []payorder.Transfer {
	keys := tx.Transaction.Message.AccountKeys
	var payer string
	for _, k := range keys {
		if k.Signer {
			payer = k.Pubkey
			break
		}
	}

	var transfers []payorder.Transfer
	for i, key := range keys {
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			break
		}
		delta := tx.Meta.PostBalances[i].Sub(tx.Meta.PreBalances[i])
		if delta.IsPositive() {
			transfers = append(transfers, payorder.Transfer{
				From:   payer,
				To:     key.Pubkey,
				Asset:  payorder.NativeToken,
				Amount: delta,
			})
		}
	}

	type holding struct{ owner, mint string }
	before := make(map[holding]decimal.Decimal, len(tx.Meta.PreTokenBalances))
	for _, b := range tx.Meta.PreTokenBalances {
		amt, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		k := holding{b.Owner, b.Mint}
		before[k] = before[k].Add(amt)
	}
	after := make(map[holding]decimal.Decimal, len(tx.Meta.PostTokenBalances))
	var order []holding
	for _, b := range tx.Meta.PostTokenBalances {
		amt, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		k := holding{b.Owner, b.Mint}
		if _, seen := after[k]; !seen {
			order = append(order, k)
		}
		after[k] = after[k].Add(amt)
	}
	for _, k := range order {
		delta := after[k].Sub(before[k])
		if delta.IsPositive() {
			transfers = append(transfers, payorder.Transfer{
				From:   payer,
				To:     k.owner,
				Asset:  k.mint,
				Amount: delta,
			})
		}
	}
	return transfers
}

// isSet reports whether a raw JSON value is present and not null
func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

var _ payorder.ChainReader = (*SolanaReader)(nil)
