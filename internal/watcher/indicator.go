package watcher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/actions"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

// probeResult is what a probe learned: whether the guarded condition is
// breached and, if so, the alert text describing it.
type probeResult struct {
	breached bool
	detail   string
}

// indicator is one configured check. A probe that errors is itself an
// alertable condition: a watchtower that cannot see is as bad as one that
// sees trouble.
type indicator struct {
	name           string
	level          alerting.AlertLevel
	action         actions.ActionKind
	failCategory   alerting.AlertType
	breachCategory alerting.AlertType
	probe          func(ctx context.Context) (probeResult, error)
}

// evaluate runs one indicator. A level of none disables the indicator
// entirely: the probe is never invoked.
func evaluate(ctx context.Context, ind indicator, alerts AlertSink, dispatch ActionSink, logger zerolog.Logger) {
	if ind.level == alerting.LevelNone || ind.level == "" {
		return
	}

	res, err := ind.probe(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("indicator", ind.name).Msg("indicator probe failed")
		alerts.Alert(err.Error(), ind.level, ind.failCategory)
		dispatch.Dispatch(ind.action, ind.level)
		return
	}
	if !res.breached {
		return
	}

	logger.Warn().Str("indicator", ind.name).Str("detail", res.detail).Msg("indicator breached")
	alerts.Alert(res.detail, ind.level, ind.breachCategory)
	dispatch.Dispatch(ind.action, ind.level)
}
