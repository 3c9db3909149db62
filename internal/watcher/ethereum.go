package watcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/scheduler"
)

const (
	// settlementBlockTime is the nominal seconds per settlement block,
	// used to size the initial commit scan window.
	settlementBlockTime = 12
	// commitScanBlocks is how far below the head the commit watermark
	// starts: roughly one day of blocks.
	commitScanBlocks = (24 * 60 * 60) / settlementBlockTime

	// baseAssetDecimals is the precision of settlement-side base-asset
	// amounts after portal upscaling.
	baseAssetDecimals = 18
)

// EthereumWatcher polls the settlement chain: connection health, block
// production, operator funds, state commit validity, and bridge volume.
type EthereumWatcher struct {
	chain    SettlementChain
	commits  CommitSource
	verifier CommitVerifier
	portal   PortalVolumeSource
	gateway  GatewayVolumeSource

	cfg     config.EthereumWatcherConfig
	account string

	alerts   AlertSink
	dispatch ActionSink
	logger   zerolog.Logger

	// watermark is the settlement block height commits have been verified
	// up to. It only ever advances.
	watermark uint64
}

// NewEthereumWatcher constructs the settlement-chain watch loop. The
// account address may be empty when the watchtower runs read-only; the
// funds indicator is then skipped regardless of configuration.
func NewEthereumWatcher(
	chain SettlementChain,
	commits CommitSource,
	verifier CommitVerifier,
	portal PortalVolumeSource,
	gateway GatewayVolumeSource,
	cfg config.EthereumWatcherConfig,
	account string,
	alerts AlertSink,
	dispatch ActionSink,
	logger zerolog.Logger,
) *EthereumWatcher {
	return &EthereumWatcher{
		chain:    chain,
		commits:  commits,
		verifier: verifier,
		portal:   portal,
		gateway:  gateway,
		cfg:      cfg,
		account:  account,
		alerts:   alerts,
		dispatch: dispatch,
		logger:   logger.With().Str("component", "ethereum_watcher").Logger(),
	}
}

// Run blocks, polling until the context is cancelled. It fails fast if
// the initial watermark cannot be established.
func (w *EthereumWatcher) Run(ctx context.Context) error {
	latest, err := w.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize commit watermark: %w", err)
	}
	if latest > commitScanBlocks {
		w.watermark = latest - commitScanBlocks
	}
	w.logger.Info().Uint64("watermark", w.watermark).Msg("starting ethereum watcher")

	sched := scheduler.New(scheduler.Options{Interval: w.cfg.PollInterval}, w.logger)
	return sched.Run(ctx, w.runOnce)
}

func (w *EthereumWatcher) runOnce(ctx context.Context) error {
	w.alerts.Alert("Watching ethereum chain.", alerting.LevelInfo, alerting.TypeEthereumWatching)

	// One head read per iteration: every volume scan below anchors its
	// block window to the same height, and the watermark advances to it.
	latest, latestErr := w.chain.LatestBlockNumber(ctx)

	for _, ind := range w.indicators(latest, latestErr) {
		evaluate(ctx, ind, w.alerts, w.dispatch, w.logger)
	}

	if latestErr == nil && latest > w.watermark {
		w.watermark = latest
	}
	return nil
}

func (w *EthereumWatcher) indicators(latest uint64, latestErr error) []indicator {
	inds := []indicator{
		{
			name:           "ethereum_connection",
			level:          w.cfg.ConnectionAlert.AlertLevel,
			action:         w.cfg.ConnectionAlert.AlertAction,
			failCategory:   alerting.TypeEthereumConnection,
			breachCategory: alerting.TypeEthereumConnection,
			probe: func(ctx context.Context) (probeResult, error) {
				if err := w.chain.CheckConnection(ctx); err != nil {
					return probeResult{}, fmt.Errorf("failed to check ethereum connection: %w", err)
				}
				return probeResult{}, nil
			},
		},
		{
			name:           "ethereum_block_production",
			level:          w.cfg.BlockProductionAlert.AlertLevel,
			action:         w.cfg.BlockProductionAlert.AlertAction,
			failCategory:   alerting.TypeEthereumBlockProduction,
			breachCategory: alerting.TypeEthereumBlockProduction,
			probe:          w.probeBlockProduction,
		},
	}

	if w.account != "" {
		inds = append(inds, indicator{
			name:           "ethereum_account_funds",
			level:          w.cfg.AccountFundsAlert.AlertLevel,
			action:         w.cfg.AccountFundsAlert.AlertAction,
			failCategory:   alerting.TypeEthereumAccountFunds,
			breachCategory: alerting.TypeEthereumAccountFunds,
			probe:          w.probeAccountFunds,
		})
	}

	inds = append(inds, indicator{
		name:           "invalid_state_commit",
		level:          w.cfg.InvalidStateCommitAlert.AlertLevel,
		action:         w.cfg.InvalidStateCommitAlert.AlertAction,
		failCategory:   alerting.TypeStateCommitProbe,
		breachCategory: alerting.TypeInvalidStateCommit,
		probe:          w.probeStateCommits,
	})

	for _, alert := range w.cfg.PortalDepositAlerts {
		inds = append(inds, w.volumeIndicator(alert, "deposit", latestErr,
			func(ctx context.Context, a config.VolumeAlertConfig) (probeResult, error) {
				total, err := w.portal.BaseDeposited(ctx, a.TimeFrame, latest)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s deposits: %w", a.TokenName, err)
				}
				return w.volumeResult(a, "deposits", total), nil
			}))
	}
	for _, alert := range w.cfg.PortalWithdrawalAlerts {
		inds = append(inds, w.volumeIndicator(alert, "withdrawal", latestErr,
			func(ctx context.Context, a config.VolumeAlertConfig) (probeResult, error) {
				total, err := w.portal.BaseWithdrawn(ctx, a.TimeFrame, latest)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s withdrawals: %w", a.TokenName, err)
				}
				return w.volumeResult(a, "withdrawals", total), nil
			}))
	}
	for _, alert := range w.cfg.GatewayDepositAlerts {
		inds = append(inds, w.volumeIndicator(alert, "deposit", latestErr,
			func(ctx context.Context, a config.VolumeAlertConfig) (probeResult, error) {
				total, err := w.gateway.TokenDeposited(ctx, a.TimeFrame, a.TokenAddress, latest)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s deposits: %w", a.TokenName, err)
				}
				return w.volumeResult(a, "deposits", total), nil
			}))
	}
	for _, alert := range w.cfg.GatewayWithdrawalAlerts {
		inds = append(inds, w.volumeIndicator(alert, "withdrawal", latestErr,
			func(ctx context.Context, a config.VolumeAlertConfig) (probeResult, error) {
				total, err := w.gateway.TokenWithdrawn(ctx, a.TimeFrame, a.TokenAddress, latest)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s withdrawals: %w", a.TokenName, err)
				}
				return w.volumeResult(a, "withdrawals", total), nil
			}))
	}

	return inds
}

func (w *EthereumWatcher) probeBlockProduction(ctx context.Context) (probeResult, error) {
	seconds, err := w.chain.SecondsSinceLastBlock(ctx)
	if err != nil {
		return probeResult{}, fmt.Errorf("failed to check ethereum block production: %w", err)
	}
	max := uint64(w.cfg.BlockProductionAlert.MaxBlockTime)
	if seconds <= max {
		return probeResult{}, nil
	}
	return probeResult{
		breached: true,
		detail:   fmt.Sprintf("Ethereum has not produced a block in %d seconds (threshold %d seconds).", seconds, max),
	}, nil
}

func (w *EthereumWatcher) probeAccountFunds(ctx context.Context) (probeResult, error) {
	balance, err := w.chain.AccountBalance(ctx, w.account)
	if err != nil {
		return probeResult{}, fmt.Errorf("failed to check ethereum account funds: %w", err)
	}
	minimum := thresholdBaseUnits(w.cfg.AccountFundsAlert.MinBalance, baseAssetDecimals)
	if balance.Cmp(minimum) >= 0 {
		return probeResult{}, nil
	}
	return probeResult{
		breached: true,
		detail: fmt.Sprintf("Ethereum account %s is low on funds: %s ETH left (minimum %s ETH).",
			w.account,
			formatBaseUnits(balance, baseAssetDecimals),
			formatBaseUnits(minimum, baseAssetDecimals)),
	}, nil
}

// probeStateCommits verifies every commit submitted since the watermark
// against the rollup chain. Any commit that provably does not exist on the
// rollup is a breach even if other commits could not be verified.
func (w *EthereumWatcher) probeStateCommits(ctx context.Context) (probeResult, error) {
	hashes, err := w.commits.CommitsSince(ctx, w.watermark)
	if err != nil {
		return probeResult{}, fmt.Errorf("failed to retrieve state commits: %w", err)
	}

	var invalid []string
	var verifyErr error
	for _, hash := range hashes {
		ok, err := w.verifier.VerifyBlockCommit(ctx, hash)
		if err != nil {
			if verifyErr == nil {
				verifyErr = err
			}
			continue
		}
		if !ok {
			invalid = append(invalid, hash)
		}
	}

	if len(invalid) > 0 {
		return probeResult{
			breached: true,
			detail:   fmt.Sprintf("Invalid state commit found on ethereum: %s", strings.Join(invalid, ", ")),
		}, nil
	}
	if verifyErr != nil {
		return probeResult{}, fmt.Errorf("failed to verify state commit: %w", verifyErr)
	}
	return probeResult{}, nil
}

func (w *EthereumWatcher) volumeIndicator(
	alert config.VolumeAlertConfig,
	direction string,
	latestErr error,
	probe func(ctx context.Context, a config.VolumeAlertConfig) (probeResult, error),
) indicator {
	var failCategory, breachCategory alerting.AlertType
	if direction == "deposit" {
		failCategory = alerting.DepositProbeCategory(alert.TokenName)
		breachCategory = alerting.DepositCategory(alert.TokenName)
	} else {
		failCategory = alerting.WithdrawalProbeCategory("ethereum", alert.TokenName)
		breachCategory = alerting.WithdrawalCategory("ethereum", alert.TokenName)
	}
	return indicator{
		name:           fmt.Sprintf("ethereum_%s_%s", alert.TokenName, direction),
		level:          alert.AlertLevel,
		action:         alert.AlertAction,
		failCategory:   failCategory,
		breachCategory: breachCategory,
		probe: func(ctx context.Context) (probeResult, error) {
			if latestErr != nil {
				return probeResult{}, fmt.Errorf("failed to retrieve latest block for %s scan: %w", alert.TokenName, latestErr)
			}
			return probe(ctx, alert)
		},
	}
}

func (w *EthereumWatcher) volumeResult(alert config.VolumeAlertConfig, direction string, total *big.Int) probeResult {
	threshold := thresholdBaseUnits(alert.Amount, alert.TokenDecimals)
	if total.Cmp(threshold) < 0 {
		return probeResult{}
	}
	return probeResult{
		breached: true,
		detail: fmt.Sprintf("Large amount of %s %s on ethereum: %s %s in %d seconds (threshold %s).",
			alert.TokenName, direction,
			formatBaseUnits(total, alert.TokenDecimals), alert.TokenName,
			alert.TimeFrame,
			formatBaseUnits(threshold, alert.TokenDecimals)),
	}
}
