package alerting

import "fmt"

// AlertLevel grades the severity of an alert. None disables a check or
// drops an event entirely.
type AlertLevel string

const (
	LevelNone  AlertLevel = "none"
	LevelInfo  AlertLevel = "info"
	LevelWarn  AlertLevel = "warn"
	LevelError AlertLevel = "error"
)

// ParseLevel normalises a configured level string.
func ParseLevel(s string) (AlertLevel, error) {
	switch AlertLevel(s) {
	case LevelNone, LevelInfo, LevelWarn, LevelError:
		return AlertLevel(s), nil
	case "":
		return LevelNone, nil
	}
	return LevelNone, fmt.Errorf("unknown alert level %q", s)
}

// AlertType is the finite category an alert belongs to. Deduplication is
// keyed on the category, never on the rendered text, so two occurrences of
// the same condition with different interpolated values still coalesce.
type AlertType string

const (
	TypeEthereumWatching        AlertType = "ethereum_watching"
	TypeEthereumConnection      AlertType = "ethereum_connection"
	TypeEthereumBlockProduction AlertType = "ethereum_block_production"
	TypeEthereumAccountFunds    AlertType = "ethereum_account_funds"
	TypeInvalidStateCommit      AlertType = "invalid_state_commit"
	TypeStateCommitProbe        AlertType = "state_commit_probe"

	TypeFuelWatching        AlertType = "fuel_watching"
	TypeFuelConnection      AlertType = "fuel_connection"
	TypeFuelBlockProduction AlertType = "fuel_block_production"
)

// Per-token and per-direction categories are derived from configuration, so
// the category set stays finite for a given config.

// DepositCategory returns the category for a deposit volume breach or its
// probe failure on the named token ("ETH" for the base asset).
func DepositCategory(token string) AlertType {
	return AlertType("deposit_threshold:" + token)
}

// DepositProbeCategory is the probe-failure counterpart of DepositCategory.
func DepositProbeCategory(token string) AlertType {
	return AlertType("deposit_probe:" + token)
}

// WithdrawalCategory returns the category for a withdrawal volume breach on
// the named token.
func WithdrawalCategory(chain, token string) AlertType {
	return AlertType("withdrawal_threshold:" + chain + ":" + token)
}

// WithdrawalProbeCategory is the probe-failure counterpart of
// WithdrawalCategory.
func WithdrawalProbeCategory(chain, token string) AlertType {
	return AlertType("withdrawal_probe:" + chain + ":" + token)
}

// PauseAttemptCategory marks an in-progress pause on the named resource.
func PauseAttemptCategory(resource string) AlertType {
	return AlertType("pause_attempt:" + resource)
}

// PauseSucceededCategory marks a completed pause on the named resource.
func PauseSucceededCategory(resource string) AlertType {
	return AlertType("pause_succeeded:" + resource)
}

// PauseFailedCategory marks a failed pause on the named resource.
func PauseFailedCategory(resource string) AlertType {
	return AlertType("pause_failed:" + resource)
}

// PauseTimeoutCategory marks an abandoned pause on the named resource.
func PauseTimeoutCategory(resource string) AlertType {
	return AlertType("pause_timeout:" + resource)
}

// AlertEvent is a single immutable observation submitted to the alerter.
type AlertEvent struct {
	Text     string
	Level    AlertLevel
	Category AlertType
}
