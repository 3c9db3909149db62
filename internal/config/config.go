package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/actions"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/logging"
)

// PrivateKeyEnvVar supplies the operator signing key outside the config
// file.
const PrivateKeyEnvVar = "WATCHTOWER_ETH_PRIVATE_KEY"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Actions  ActionsConfig  `mapstructure:"actions"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Fuel     FuelConfig     `mapstructure:"fuel"`

	EthereumWatcher EthereumWatcherConfig `mapstructure:"ethereum_watcher"`
	FuelWatcher     FuelWatcherConfig     `mapstructure:"fuel_watcher"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional alert history store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Retention drops alert history older than this on startup. Zero
	// keeps history forever.
	Retention time.Duration `mapstructure:"retention"`
}

// AlertingConfig governs the alert cache and external paging.
type AlertingConfig struct {
	CacheExpiry  time.Duration   `mapstructure:"cache_expiry"`
	StartupGrace time.Duration   `mapstructure:"startup_grace"`
	Source       string          `mapstructure:"source"`
	PagerDuty    PagerDutyConfig `mapstructure:"pagerduty"`
}

// PagerDutyConfig describes the paging transport.
type PagerDutyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RoutingKey     string        `mapstructure:"routing_key"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ActionsConfig tunes the action dispatcher.
type ActionsConfig struct {
	PauseTimeout time.Duration `mapstructure:"pause_timeout"`
}

// EthereumConfig covers settlement-chain access.
type EthereumConfig struct {
	RPCURL                 string `mapstructure:"rpc_url"`
	StateContractAddress   string `mapstructure:"state_contract_address"`
	PortalContractAddress  string `mapstructure:"portal_contract_address"`
	GatewayContractAddress string `mapstructure:"gateway_contract_address"`
	WalletKey              string `mapstructure:"wallet_key"`
}

// FuelConfig covers rollup-chain access.
type FuelConfig struct {
	GraphQLURL     string        `mapstructure:"graphql_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IndicatorConfig is the generic per-check tuple: the level to alert at
// (none disables the check) and the protective action a breach dispatches.
type IndicatorConfig struct {
	AlertLevel  alerting.AlertLevel `mapstructure:"alert_level"`
	AlertAction actions.ActionKind  `mapstructure:"alert_action"`
}

// BlockProductionConfig adds the staleness threshold.
type BlockProductionConfig struct {
	AlertLevel   alerting.AlertLevel `mapstructure:"alert_level"`
	AlertAction  actions.ActionKind  `mapstructure:"alert_action"`
	MaxBlockTime uint32              `mapstructure:"max_block_time"`
}

// AccountFundsConfig adds the operator balance floor, in whole base-asset
// units.
type AccountFundsConfig struct {
	AlertLevel  alerting.AlertLevel `mapstructure:"alert_level"`
	AlertAction actions.ActionKind  `mapstructure:"alert_action"`
	MinBalance  float64             `mapstructure:"min_balance"`
}

// VolumeAlertConfig thresholds deposit or withdrawal volume for one asset
// over a sliding time frame.
type VolumeAlertConfig struct {
	AlertLevel    alerting.AlertLevel `mapstructure:"alert_level"`
	AlertAction   actions.ActionKind  `mapstructure:"alert_action"`
	TokenName     string              `mapstructure:"token_name"`
	TokenDecimals uint8               `mapstructure:"token_decimals"`
	TokenAddress  string              `mapstructure:"token_address"`
	TimeFrame     uint32              `mapstructure:"time_frame"`
	Amount        float64             `mapstructure:"amount"`
}

// EthereumWatcherConfig configures the settlement-chain watch loop.
type EthereumWatcherConfig struct {
	PollInterval            time.Duration         `mapstructure:"poll_interval"`
	ConnectionAlert         IndicatorConfig       `mapstructure:"connection_alert"`
	BlockProductionAlert    BlockProductionConfig `mapstructure:"block_production_alert"`
	AccountFundsAlert       AccountFundsConfig    `mapstructure:"account_funds_alert"`
	InvalidStateCommitAlert IndicatorConfig       `mapstructure:"invalid_state_commit_alert"`
	PortalDepositAlerts     []VolumeAlertConfig   `mapstructure:"portal_deposit_alerts"`
	PortalWithdrawalAlerts  []VolumeAlertConfig   `mapstructure:"portal_withdrawal_alerts"`
	GatewayDepositAlerts    []VolumeAlertConfig   `mapstructure:"gateway_deposit_alerts"`
	GatewayWithdrawalAlerts []VolumeAlertConfig   `mapstructure:"gateway_withdrawal_alerts"`
}

// FuelWatcherConfig configures the rollup-chain watch loop.
type FuelWatcherConfig struct {
	PollInterval          time.Duration         `mapstructure:"poll_interval"`
	ConnectionAlert       IndicatorConfig       `mapstructure:"connection_alert"`
	BlockProductionAlert  BlockProductionConfig `mapstructure:"block_production_alert"`
	PortalWithdrawAlerts  []VolumeAlertConfig   `mapstructure:"portal_withdraw_alerts"`
	GatewayWithdrawAlerts []VolumeAlertConfig   `mapstructure:"gateway_withdraw_alerts"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	resolveWalletKey(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveWalletKey fills the signing key from the environment. Leaving the
// key out entirely puts the watchtower in read-only mode.
func resolveWalletKey(cfg *Config) {
	if cfg.Ethereum.WalletKey != "" {
		return
	}
	cfg.Ethereum.WalletKey = os.Getenv(PrivateKeyEnvVar)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fuel-canary-watchtower")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("alerting.cache_expiry", "5m")
	v.SetDefault("alerting.startup_grace", "1h")
	v.SetDefault("alerting.source", "fuel-canary-watchtower")
	v.SetDefault("alerting.pagerduty.enabled", false)
	v.SetDefault("alerting.pagerduty.api_base", "https://events.eu.pagerduty.com")
	v.SetDefault("alerting.pagerduty.request_timeout", "10s")

	v.SetDefault("actions.pause_timeout", "30s")

	v.SetDefault("fuel.request_timeout", "10s")

	v.SetDefault("ethereum_watcher.poll_interval", "6s")
	v.SetDefault("fuel_watcher.poll_interval", "6s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "2160h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if c.Fuel.GraphQLURL == "" {
		return fmt.Errorf("fuel.graphql_url is required")
	}
	if c.Ethereum.StateContractAddress == "" {
		return fmt.Errorf("ethereum.state_contract_address is required")
	}
	if c.Ethereum.PortalContractAddress == "" {
		return fmt.Errorf("ethereum.portal_contract_address is required")
	}
	if c.Ethereum.GatewayContractAddress == "" {
		return fmt.Errorf("ethereum.gateway_contract_address is required")
	}
	if c.EthereumWatcher.PollInterval <= 0 {
		return fmt.Errorf("ethereum_watcher.poll_interval must be greater than zero")
	}
	if c.FuelWatcher.PollInterval <= 0 {
		return fmt.Errorf("fuel_watcher.poll_interval must be greater than zero")
	}
	if c.Alerting.CacheExpiry <= 0 {
		return fmt.Errorf("alerting.cache_expiry must be greater than zero")
	}
	if c.Alerting.PagerDuty.Enabled && c.Alerting.PagerDuty.RoutingKey == "" {
		return fmt.Errorf("alerting.pagerduty.routing_key is required when pagerduty is enabled")
	}

	if err := validateLevels(c); err != nil {
		return err
	}
	return nil
}

func validateLevels(c *Config) error {
	check := func(where string, level alerting.AlertLevel, action actions.ActionKind) error {
		if _, err := alerting.ParseLevel(string(level)); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if _, err := actions.ParseKind(string(action)); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		return nil
	}

	if err := check("ethereum_watcher.connection_alert", c.EthereumWatcher.ConnectionAlert.AlertLevel, c.EthereumWatcher.ConnectionAlert.AlertAction); err != nil {
		return err
	}
	if err := check("ethereum_watcher.block_production_alert", c.EthereumWatcher.BlockProductionAlert.AlertLevel, c.EthereumWatcher.BlockProductionAlert.AlertAction); err != nil {
		return err
	}
	if err := check("ethereum_watcher.account_funds_alert", c.EthereumWatcher.AccountFundsAlert.AlertLevel, c.EthereumWatcher.AccountFundsAlert.AlertAction); err != nil {
		return err
	}
	if err := check("ethereum_watcher.invalid_state_commit_alert", c.EthereumWatcher.InvalidStateCommitAlert.AlertLevel, c.EthereumWatcher.InvalidStateCommitAlert.AlertAction); err != nil {
		return err
	}
	if err := check("fuel_watcher.connection_alert", c.FuelWatcher.ConnectionAlert.AlertLevel, c.FuelWatcher.ConnectionAlert.AlertAction); err != nil {
		return err
	}
	if err := check("fuel_watcher.block_production_alert", c.FuelWatcher.BlockProductionAlert.AlertLevel, c.FuelWatcher.BlockProductionAlert.AlertAction); err != nil {
		return err
	}

	volumes := map[string][]VolumeAlertConfig{
		"ethereum_watcher.portal_deposit_alerts":     c.EthereumWatcher.PortalDepositAlerts,
		"ethereum_watcher.portal_withdrawal_alerts":  c.EthereumWatcher.PortalWithdrawalAlerts,
		"ethereum_watcher.gateway_deposit_alerts":    c.EthereumWatcher.GatewayDepositAlerts,
		"ethereum_watcher.gateway_withdrawal_alerts": c.EthereumWatcher.GatewayWithdrawalAlerts,
		"fuel_watcher.portal_withdraw_alerts":        c.FuelWatcher.PortalWithdrawAlerts,
		"fuel_watcher.gateway_withdraw_alerts":       c.FuelWatcher.GatewayWithdrawAlerts,
	}
	for where, alerts := range volumes {
		for i, a := range alerts {
			if err := check(fmt.Sprintf("%s[%d]", where, i), a.AlertLevel, a.AlertAction); err != nil {
				return err
			}
			if a.Amount < 0 {
				return fmt.Errorf("%s[%d]: amount cannot be negative", where, i)
			}
		}
	}
	return nil
}
