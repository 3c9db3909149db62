// Package ethereum wraps the settlement-chain RPC client and the three
// bridge contracts the watchtower observes and can pause.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	// ConnectionRetries bounds every direct RPC call. No backoff: either
	// the endpoint answers promptly or the probe fails for this iteration.
	ConnectionRetries = 2
	// BlockTime is the nominal seconds per settlement-chain block, used to
	// convert time frames into block windows.
	BlockTime = 12
)

// Dial connects an RPC client and verifies it answers a chain ID query.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("invalid ethereum rpc: %w", err)
	}
	return client, chainID, nil
}

func withRetry(ctx context.Context, fn func() error) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(ConnectionRetries),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return 0
		}),
	)
	return r.Do(fn)
}

// Chain probes settlement-chain health.
type Chain struct {
	client *ethclient.Client
	logger zerolog.Logger
}

// NewChain constructs a chain probe over a connected client.
func NewChain(client *ethclient.Client, logger zerolog.Logger) *Chain {
	return &Chain{
		client: client,
		logger: logger.With().Str("component", "ethereum_chain").Logger(),
	}
}

// CheckConnection verifies the RPC endpoint still answers.
func (c *Chain) CheckConnection(ctx context.Context) error {
	err := withRetry(ctx, func() error {
		_, err := c.client.ChainID(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to establish connection after %d retries: %w", ConnectionRetries, err)
	}
	return nil
}

// LatestBlockNumber returns the chain head height.
func (c *Chain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := withRetry(ctx, func() error {
		n, err := c.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve block number after %d retries: %w", ConnectionRetries, err)
	}
	return number, nil
}

// SecondsSinceLastBlock measures block production staleness.
func (c *Chain) SecondsSinceLastBlock(ctx context.Context) (uint64, error) {
	var blockTime uint64
	err := withRetry(ctx, func() error {
		header, err := c.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		blockTime = header.Time
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve latest header after %d retries: %w", ConnectionRetries, err)
	}

	now := uint64(time.Now().Unix())
	if now < blockTime {
		return 0, fmt.Errorf("block time %d is ahead of current time %d", blockTime, now)
	}
	return now - blockTime, nil
}

// AccountBalance returns the base-asset balance of the given account.
func (c *Chain) AccountBalance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid account address %q", addr)
	}
	var balance *big.Int
	err := withRetry(ctx, func() error {
		b, err := c.client.BalanceAt(ctx, common.HexToAddress(addr), nil)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve balance after %d retries: %w", ConnectionRetries, err)
	}
	return balance, nil
}
