// Package watcher runs the per-chain watch loops. Each loop polls its
// chain on a fixed interval, evaluates a configured sequence of
// indicators, and forwards breaches to the alerting and actions
// pipelines.
package watcher

import (
	"context"
	"math/big"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/actions"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

// ChainProbe is the health surface every watched chain exposes.
type ChainProbe interface {
	CheckConnection(ctx context.Context) error
	SecondsSinceLastBlock(ctx context.Context) (uint64, error)
}

// SettlementChain is the settlement-side chain surface.
type SettlementChain interface {
	ChainProbe
	LatestBlockNumber(ctx context.Context) (uint64, error)
	AccountBalance(ctx context.Context, addr string) (*big.Int, error)
}

// CommitSource lists state commits submitted on the settlement chain
// since a given block height.
type CommitSource interface {
	CommitsSince(ctx context.Context, fromBlock uint64) ([]string, error)
}

// CommitVerifier checks a committed block hash against the rollup chain.
type CommitVerifier interface {
	VerifyBlockCommit(ctx context.Context, blockHash string) (bool, error)
}

// PortalVolumeSource sums base-asset bridge volume on the settlement side.
type PortalVolumeSource interface {
	BaseDeposited(ctx context.Context, timeFrame uint32, latestBlock uint64) (*big.Int, error)
	BaseWithdrawn(ctx context.Context, timeFrame uint32, latestBlock uint64) (*big.Int, error)
}

// GatewayVolumeSource sums per-token bridge volume on the settlement side.
type GatewayVolumeSource interface {
	TokenDeposited(ctx context.Context, timeFrame uint32, tokenAddress string, latestBlock uint64) (*big.Int, error)
	TokenWithdrawn(ctx context.Context, timeFrame uint32, tokenAddress string, latestBlock uint64) (*big.Int, error)
}

// RollupChain is the rollup-side chain surface.
type RollupChain interface {
	ChainProbe
	CommitVerifier
	BaseWithdrawn(ctx context.Context, timeFrame uint32) (*big.Int, error)
	TokenWithdrawn(ctx context.Context, timeFrame uint32, tokenContract string) (*big.Int, error)
}

// AlertSink receives indicator outcomes.
type AlertSink interface {
	Alert(text string, level alerting.AlertLevel, category alerting.AlertType)
}

// ActionSink receives protective actions triggered by breaches.
type ActionSink interface {
	Dispatch(kind actions.ActionKind, escalation alerting.AlertLevel)
}
