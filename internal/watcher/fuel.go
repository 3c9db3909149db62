package watcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/scheduler"
)

// FuelWatcher polls the rollup chain: connection health, block production,
// and withdrawal volume back toward the settlement chain.
type FuelWatcher struct {
	chain    RollupChain
	cfg      config.FuelWatcherConfig
	alerts   AlertSink
	dispatch ActionSink
	logger   zerolog.Logger
}

// NewFuelWatcher constructs the rollup-chain watch loop.
func NewFuelWatcher(chain RollupChain, cfg config.FuelWatcherConfig, alerts AlertSink, dispatch ActionSink, logger zerolog.Logger) *FuelWatcher {
	return &FuelWatcher{
		chain:    chain,
		cfg:      cfg,
		alerts:   alerts,
		dispatch: dispatch,
		logger:   logger.With().Str("component", "fuel_watcher").Logger(),
	}
}

// Run blocks, polling until the context is cancelled.
func (w *FuelWatcher) Run(ctx context.Context) error {
	w.logger.Info().Msg("starting fuel watcher")
	sched := scheduler.New(scheduler.Options{Interval: w.cfg.PollInterval}, w.logger)
	return sched.Run(ctx, w.runOnce)
}

func (w *FuelWatcher) runOnce(ctx context.Context) error {
	w.alerts.Alert("Watching fuel chain.", alerting.LevelInfo, alerting.TypeFuelWatching)

	for _, ind := range w.indicators() {
		evaluate(ctx, ind, w.alerts, w.dispatch, w.logger)
	}
	return nil
}

func (w *FuelWatcher) indicators() []indicator {
	inds := []indicator{
		{
			name:           "fuel_connection",
			level:          w.cfg.ConnectionAlert.AlertLevel,
			action:         w.cfg.ConnectionAlert.AlertAction,
			failCategory:   alerting.TypeFuelConnection,
			breachCategory: alerting.TypeFuelConnection,
			probe: func(ctx context.Context) (probeResult, error) {
				if err := w.chain.CheckConnection(ctx); err != nil {
					return probeResult{}, fmt.Errorf("failed to check fuel connection: %w", err)
				}
				return probeResult{}, nil
			},
		},
		{
			name:           "fuel_block_production",
			level:          w.cfg.BlockProductionAlert.AlertLevel,
			action:         w.cfg.BlockProductionAlert.AlertAction,
			failCategory:   alerting.TypeFuelBlockProduction,
			breachCategory: alerting.TypeFuelBlockProduction,
			probe:          w.probeBlockProduction,
		},
	}

	for _, alert := range w.cfg.PortalWithdrawAlerts {
		inds = append(inds, indicator{
			name:           fmt.Sprintf("fuel_%s_withdrawal", alert.TokenName),
			level:          alert.AlertLevel,
			action:         alert.AlertAction,
			failCategory:   alerting.WithdrawalProbeCategory("fuel", alert.TokenName),
			breachCategory: alerting.WithdrawalCategory("fuel", alert.TokenName),
			probe: func(ctx context.Context) (probeResult, error) {
				total, err := w.chain.BaseWithdrawn(ctx, alert.TimeFrame)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s withdrawals: %w", alert.TokenName, err)
				}
				return w.volumeResult(alert, total), nil
			},
		})
	}
	for _, alert := range w.cfg.GatewayWithdrawAlerts {
		inds = append(inds, indicator{
			name:           fmt.Sprintf("fuel_%s_withdrawal", alert.TokenName),
			level:          alert.AlertLevel,
			action:         alert.AlertAction,
			failCategory:   alerting.WithdrawalProbeCategory("fuel", alert.TokenName),
			breachCategory: alerting.WithdrawalCategory("fuel", alert.TokenName),
			probe: func(ctx context.Context) (probeResult, error) {
				total, err := w.chain.TokenWithdrawn(ctx, alert.TimeFrame, alert.TokenAddress)
				if err != nil {
					return probeResult{}, fmt.Errorf("failed to scan %s withdrawals: %w", alert.TokenName, err)
				}
				return w.volumeResult(alert, total), nil
			},
		})
	}

	return inds
}

func (w *FuelWatcher) probeBlockProduction(ctx context.Context) (probeResult, error) {
	seconds, err := w.chain.SecondsSinceLastBlock(ctx)
	if err != nil {
		return probeResult{}, fmt.Errorf("failed to check fuel block production: %w", err)
	}
	max := uint64(w.cfg.BlockProductionAlert.MaxBlockTime)
	if seconds <= max {
		return probeResult{}, nil
	}
	return probeResult{
		breached: true,
		detail:   fmt.Sprintf("Fuel has not produced a block in %d seconds (threshold %d seconds).", seconds, max),
	}, nil
}

func (w *FuelWatcher) volumeResult(alert config.VolumeAlertConfig, total *big.Int) probeResult {
	threshold := thresholdBaseUnits(alert.Amount, alert.TokenDecimals)
	if total.Cmp(threshold) < 0 {
		return probeResult{}
	}
	return probeResult{
		breached: true,
		detail: fmt.Sprintf("Large amount of %s withdrawals on fuel: %s %s in %d seconds (threshold %s).",
			alert.TokenName,
			formatBaseUnits(total, alert.TokenDecimals), alert.TokenName,
			alert.TimeFrame,
			formatBaseUnits(threshold, alert.TokenDecimals)),
	}
}
