// Package app wires configuration into the running watchtower and backs
// the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/actions"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/ethereum"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/fuel"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/version"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/watcher"
)

// watchtowerLockKey is the advisory lock guarding against two instances
// alerting off the same database.
const watchtowerLockKey int64 = 0x46554543 // "FUEC"

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newPager() alerting.Pager {
	if !a.Config.Alerting.PagerDuty.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.PagerDuty
	return alerting.NewPagerDutyClient(cfg.RoutingKey, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

// Run executes the long-running watchtower.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if store != nil {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		unlock, acquired, err := store.TryAdvisoryLock(ctx, watchtowerLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another watchtower instance already holds the database lock")
		}
		defer unlock()

		a.pruneHistory(ctx, store)
	}

	client, chainID, err := ethereum.Dial(ctx, a.Config.Ethereum.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	wallet, err := ethereum.NewWallet(a.Config.Ethereum.WalletKey)
	if err != nil {
		return fmt.Errorf("load ethereum wallet: %w", err)
	}
	account := ""
	if wallet.ReadOnly() {
		a.Logger.Warn().Msg("no ethereum private key configured; pause actions disabled")
	} else {
		account = wallet.Address().Hex()
		a.Logger.Info().Str("account", account).Msg("ethereum wallet loaded")
	}

	state, err := ethereum.NewStateContract(a.Config.Ethereum.StateContractAddress, client, wallet, chainID, a.Logger)
	if err != nil {
		return err
	}
	portal, err := ethereum.NewPortalContract(a.Config.Ethereum.PortalContractAddress, client, wallet, chainID, a.Logger)
	if err != nil {
		return err
	}
	gateway, err := ethereum.NewGatewayContract(a.Config.Ethereum.GatewayContractAddress, client, wallet, chainID, a.Logger)
	if err != nil {
		return err
	}

	// Startup verification: every contract must answer a read call before
	// the watch loops begin.
	for name, c := range map[string]interface {
		VerifyConnection(ctx context.Context) error
	}{
		"state":   state,
		"portal":  portal,
		"gateway": gateway,
	} {
		if err := c.VerifyConnection(ctx); err != nil {
			return fmt.Errorf("verify %s contract: %w", name, err)
		}
	}

	ethChain := ethereum.NewChain(client, a.Logger)
	fuelChain := fuel.NewChain(a.Config.Fuel.GraphQLURL, a.Config.Fuel.RequestTimeout, a.Logger)
	if err := fuelChain.CheckConnection(ctx); err != nil {
		return fmt.Errorf("verify fuel connection: %w", err)
	}

	var history alerting.HistoryStore
	if store != nil {
		history = store
	}
	alerter := alerting.NewAlerter(alerting.Options{
		CacheExpiry:  a.Config.Alerting.CacheExpiry,
		StartupGrace: a.Config.Alerting.StartupGrace,
		Source:       a.Config.Alerting.Source,
	}, a.newPager(), history, a.Logger)
	alerter.Start()

	dispatcher := actions.NewDispatcher(state, gateway, portal, alerter, a.Config.Actions.PauseTimeout, a.Logger)
	dispatcher.Start()

	ethWatcher := watcher.NewEthereumWatcher(
		ethChain, state, fuelChain, portal, gateway,
		a.Config.EthereumWatcher, account,
		alerter, dispatcher, a.Logger,
	)
	fuelWatcher := watcher.NewFuelWatcher(
		fuelChain, a.Config.FuelWatcher,
		alerter, dispatcher, a.Logger,
	)

	a.Logger.Info().Str("build", version.String()).Msg("starting watchtower")

	errCh := make(chan error, 2)
	go func() { errCh <- ethWatcher.Run(ctx) }()
	go func() { errCh <- fuelWatcher.Run(ctx) }()

	// Either loop failing (or the context being cancelled) brings the
	// whole process down: a watchtower with one eye open is not watching.
	err = <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watchtower terminated with error")
		return err
	}

	a.Logger.Info().Msg("watchtower stopped")
	return nil
}

// pruneHistory enforces the configured alert retention. Best effort: a
// failed prune is logged but never stops the watchtower from starting.
func (a *App) pruneHistory(ctx context.Context, store storage.AlertStore) {
	retention := a.Config.Database.Retention
	if retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-retention)
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		a.Logger.Error().Err(err).Msg("failed to prune alert history")
		return
	}

	count, err := store.CountAlerts(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to count alert history")
		return
	}
	a.Logger.Info().
		Int64("alerts", count).
		Dur("retention", retention).
		Msg("alert history pruned")
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	Window  time.Duration
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
