// Package chain provides ChainReader implementations for the supported chain
// families and a registry that builds them from configuration.
package chain

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Registry owns one reader per configured chain
type Registry struct {
	readers          map[string]payorder.ChainReader
	minConfirmations map[string]uint64
	closers          []func()
	logger           *zap.Logger
}

// dialEVM is replaced in tests
var dialEVM = func(ctx context.Context, url string) (EVMClient, func(), error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// NewRegistry builds readers for every chain. The HTTP client is shared by
// the Solana and Sui readers; a nil client gets one with the given timeout.
func NewRegistry(ctx context.Context, chains []config.ChainConfig, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	r := &Registry{
		readers:          make(map[string]payorder.ChainReader, len(chains)),
		minConfirmations: make(map[string]uint64),
		logger:           logger.Named("chain"),
	}

	for _, c := range chains {
		if _, dup := r.readers[c.ID]; dup {
			r.Close()
			return nil, fmt.Errorf("chain %q configured more than once", c.ID)
		}

		family := payorder.ChainFamily(strings.ToUpper(c.Family))
		var reader payorder.ChainReader
		switch family {
		case payorder.ChainFamilyEVM:
			client, closeFn, err := dialEVM(ctx, c.RPCURL)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("failed to dial %s: %w", c.ID, err)
			}
			r.closers = append(r.closers, closeFn)
			reader = NewEVMReader(c.ID, client)
		case payorder.ChainFamilySolana, payorder.ChainFamilySui:
			client, err := dialRPC(ctx, c.RPCURL, httpClient)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("failed to dial %s: %w", c.ID, err)
			}
			r.closers = append(r.closers, client.Close)
			if family == payorder.ChainFamilySolana {
				reader = NewSolanaReader(c.ID, client)
			} else {
				reader = NewSuiReader(c.ID, client)
			}
		default:
			r.Close()
			return nil, fmt.Errorf("chain %q has unsupported family %q", c.ID, c.Family)
		}

		r.readers[c.ID] = reader
		if c.MinConfirmations > 0 {
			r.minConfirmations[c.ID] = c.MinConfirmations
		}
		r.logger.Info("Chain reader configured",
			zap.String("chain", c.ID),
			zap.String("family", string(family)),
		)
	}

	return r, nil
}

// Readers returns the readers keyed by chain ID
func (r *Registry) Readers() map[string]payorder.ChainReader {
	out := make(map[string]payorder.ChainReader, len(r.readers))
	for id, reader := range r.readers {
		out[id] = reader
	}
	return out
}

// MinConfirmations returns the per-chain confirmation overrides
func (r *Registry) MinConfirmations() map[string]uint64 {
	out := make(map[string]uint64, len(r.minConfirmations))
	for id, n := range r.minConfirmations {
		out[id] = n
	}
	return out
}

// Close releases node connections
func (r *Registry) Close() {
	for _, closeFn := range r.closers {
		closeFn()
	}
	r.closers = nil
}
