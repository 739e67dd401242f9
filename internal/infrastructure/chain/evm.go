package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/shopspring/decimal"
)

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)")
var erc20TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256)
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

var evmHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// EVMClient is the subset of *ethclient.Client the reader needs
type EVMClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// EVMReader reads transactions from an EVM JSON-RPC node
type EVMReader struct {
	chainID string
	client  EVMClient
}

// NewEVMReader creates a reader over an EVM client
func NewEVMReader(chainID string, client EVMClient) *EVMReader {
	return &EVMReader{chainID: chainID, client: client}
}

// Family returns EVM
func (r *EVMReader) Family() payorder.ChainFamily {
	return payorder.ChainFamilyEVM
}

// GetTransaction returns native and ERC-20 transfers of a transaction.
// Mined transactions are read from their receipt logs; pending ones from
// their value and calldata with zero confirmations.
func (r *EVMReader) GetTransaction(ctx context.Context, hash string) (payorder.ChainTransaction, error) {
	if !evmHashPattern.MatchString(hash) {
		return payorder.ChainTransaction{}, fmt.Errorf("%w: malformed hash %q", payorder.ErrTransactionNotFound, hash)
	}
	h := common.HexToHash(hash)

	tx, pending, err := r.client.TransactionByHash(ctx, h)
	if err != nil {
		return payorder.ChainTransaction{}, r.wrap("transaction", err)
	}

	out := payorder.ChainTransaction{Hash: tx.Hash().Hex()}
	from := senderOf(tx)

	if pending {
		out.Transfers = pendingTransfers(tx, from)
		return out, nil
	}

	receipt, err := r.client.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		// indexed but receipt not served yet
		out.Transfers = pendingTransfers(tx, from)
		return out, nil
	}
	if err != nil {
		return payorder.ChainTransaction{}, r.wrap("receipt", err)
	}

	out.Failed = receipt.Status == types.ReceiptStatusFailed
	out.Transfers = minedTransfers(tx, from, receipt)

	if receipt.BlockNumber != nil {
		latest, err := r.client.BlockNumber(ctx)
		if err != nil {
			return payorder.ChainTransaction{}, r.wrap("block number", err)
		}
		mined := receipt.BlockNumber.Uint64()
		if latest >= mined {
			out.Confirmations = latest - mined + 1
		}

		header, err := r.client.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return payorder.ChainTransaction{}, r.wrap("header", err)
		}
		out.Timestamp = time.Unix(int64(header.Time), 0).UTC()
	}

	return out, nil
}

func (r *EVMReader) wrap(what string, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return payorder.ErrTransactionNotFound
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", payorder.ErrProviderUnavailable, r.chainID, what, err)
}

func senderOf(tx *types.Transaction) string {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	return from.Hex()
}

func nativeTransfer(tx *types.Transaction, from string) (payorder.Transfer, bool) {
	if tx.To() == nil || tx.Value() == nil || tx.Value().Sign() <= 0 {
		return payorder.Transfer{}, false
	}
	return payorder.Transfer{
		From:   from,
		To:     tx.To().Hex(),
		Asset:  payorder.NativeToken,
		Amount: decimal.NewFromBigInt(tx.Value(), 0),
	}, true
}

func pendingTransfers(tx *types.Transaction, from string) []payorder.Transfer {
	transfers := make([]payorder.Transfer, 0, 1)
	if t, ok := nativeTransfer(tx, from); ok {
		transfers = append(transfers, t)
	}
	if t, ok := decodeTransferCall(tx, from); ok {
		transfers = append(transfers, t)
	}
	return transfers
}

func minedTransfers(tx *types.Transaction, from string, receipt *types.Receipt) []payorder.Transfer {
	transfers := make([]payorder.Transfer, 0, len(receipt.Logs)+1)
	if t, ok := nativeTransfer(tx, from); ok {
		transfers = append(transfers, t)
	}
	for _, lg := range receipt.Logs {
		if t, ok := decodeTransferLog(lg); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers
}

// decodeTransferLog decodes an ERC-20 Transfer event
func decodeTransferLog(lg *types.Log) (payorder.Transfer, bool) {
	if lg == nil || len(lg.Topics) != 3 || lg.Topics[0] != erc20TransferTopic || len(lg.Data) != 32 {
		return payorder.Transfer{}, false
	}
	return payorder.Transfer{
		From:   common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:     common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Asset:  lg.Address.Hex(),
		Amount: decimal.NewFromBigInt(new(big.Int).SetBytes(lg.Data), 0),
	}, true
}

// decodeTransferCall decodes transfer(address,uint256) calldata sent to a token contract
func decodeTransferCall(tx *types.Transaction, from string) (payorder.Transfer, bool) {
	data := tx.Data()
	if tx.To() == nil || len(data) != 4+64 || !bytes.Equal(data[:4], erc20TransferSelector) {
		return payorder.Transfer{}, false
	}
	return payorder.Transfer{
		From:   from,
		To:     common.BytesToAddress(data[4:36]).Hex(),
		Asset:  tx.To().Hex(),
		Amount: decimal.NewFromBigInt(new(big.Int).SetBytes(data[36:68]), 0),
	}, true
}

var _ payorder.ChainReader = (*EVMReader)(nil)
