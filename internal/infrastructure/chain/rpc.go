package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/provider"
)

// codeInvalidParams is the JSON-RPC code nodes return for malformed hashes
const codeInvalidParams = -32602

// dialRPC opens a JSON-RPC 2.0 client for a non-EVM node. HTTP endpoints
// are not contacted until the first call.
func dialRPC(ctx context.Context, url string, httpClient *http.Client) (*rpc.Client, error) {
	return rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
}

// classify maps a lookup failure onto the chain reader error contract
func classify(chainID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return payorder.NewRateLimitedError(chainID, provider.ParseRetryAfter("", time.Now()))
		}
		return fmt.Errorf("%w: %s: %s", payorder.ErrProviderUnavailable, chainID, httpErr.Status)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Error())
		if rpcErr.ErrorCode() == codeInvalidParams || strings.Contains(msg, "could not find") || strings.Contains(msg, "not found") {
			return fmt.Errorf("%w: %s: %s", payorder.ErrTransactionNotFound, chainID, rpcErr.Error())
		}
		return fmt.Errorf("%w: %s: rpc error %d: %s", payorder.ErrProviderUnavailable, chainID, rpcErr.ErrorCode(), rpcErr.Error())
	}
	return fmt.Errorf("%w: %s: %v", payorder.ErrProviderUnavailable, chainID, err)
}
