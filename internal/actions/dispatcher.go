// Package actions executes protective pause commands against the bridge
// contracts. Commands flow through an unbounded queue into a single worker
// so that watch loops never block on a slow transaction.
package actions

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/queue"
)

// DefaultPauseTimeout bounds how long a single pause call is awaited before
// it is abandoned.
const DefaultPauseTimeout = 30 * time.Second

// ActionKind identifies a protective action.
type ActionKind string

const (
	ActionNone         ActionKind = "none"
	ActionPauseState   ActionKind = "pause_state"
	ActionPauseGateway ActionKind = "pause_gateway"
	ActionPausePortal  ActionKind = "pause_portal"
	ActionPauseAll     ActionKind = "pause_all"
)

// ParseKind normalises a configured action string.
func ParseKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionNone, ActionPauseState, ActionPauseGateway, ActionPausePortal, ActionPauseAll:
		return ActionKind(s), nil
	case "":
		return ActionNone, nil
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

// Command pairs an action with the level to escalate to if the pause
// attempt itself fails.
type Command struct {
	Kind       ActionKind
	Escalation alerting.AlertLevel
}

// Pausable is the single capability the dispatcher needs from a bridge
// contract. Pausing is idempotent and one-directional by contract design.
type Pausable interface {
	Pause(ctx context.Context) error
}

// AlertSink receives the dispatcher's outcome alerts.
type AlertSink interface {
	Alert(text string, level alerting.AlertLevel, category alerting.AlertType)
}

// Dispatcher consumes pause commands and reports outcomes through the
// alert pipeline.
type Dispatcher struct {
	commands *queue.Queue[Command]
	state    Pausable
	gateway  Pausable
	portal   Pausable
	alerts   AlertSink
	timeout  time.Duration
	logger   zerolog.Logger

	fatal func()
}

// NewDispatcher constructs a dispatcher over the three pausable contracts.
func NewDispatcher(state, gateway, portal Pausable, alerts AlertSink, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultPauseTimeout
	}
	return &Dispatcher{
		commands: queue.New[Command](),
		state:    state,
		gateway:  gateway,
		portal:   portal,
		alerts:   alerts,
		timeout:  timeout,
		logger:   logger.With().Str("component", "actions").Logger(),
		fatal:    func() { os.Exit(1) },
	}
}

// Dispatch submits a command. Never blocks the caller. An empty escalation
// level defaults to Info.
func (d *Dispatcher) Dispatch(kind ActionKind, escalation alerting.AlertLevel) {
	if escalation == "" {
		escalation = alerting.LevelInfo
	}
	d.commands.Push(Command{Kind: kind, Escalation: escalation})
}

// Start launches the consumer worker.
func (d *Dispatcher) Start() {
	go d.run()
}

// Close shuts the command queue. Only meaningful in tests.
func (d *Dispatcher) Close() {
	d.commands.Close()
}

func (d *Dispatcher) run() {
	for {
		cmd, ok := d.commands.Pop()
		if !ok {
			// A dispatcher that can no longer receive commands can no
			// longer protect the bridge and must not run as a no-op.
			d.logger.Error().Msg("connections to the actions worker have all closed")
			d.fatal()
			return
		}
		d.handle(cmd)
	}
}

func (d *Dispatcher) handle(cmd Command) {
	switch cmd.Kind {
	case ActionPauseState:
		d.pauseOne("state", d.state, cmd.Escalation)
	case ActionPauseGateway:
		d.pauseOne("gateway", d.gateway, cmd.Escalation)
	case ActionPausePortal:
		d.pauseOne("portal", d.portal, cmd.Escalation)
	case ActionPauseAll:
		// Sequential and independent: a failure pausing one contract must
		// not prevent attempting the others, and there is no rollback of
		// contracts already paused.
		d.pauseOne("state", d.state, cmd.Escalation)
		d.pauseOne("gateway", d.gateway, cmd.Escalation)
		d.pauseOne("portal", d.portal, cmd.Escalation)
	}
}

func (d *Dispatcher) pauseOne(name string, contract Pausable, escalation alerting.AlertLevel) {
	d.alerts.Alert(
		fmt.Sprintf("Pausing %s contract.", name),
		alerting.LevelInfo,
		alerting.PauseAttemptCategory(name),
	)

	done := make(chan error, 1)
	go func() {
		done <- contract.Pause(context.Background())
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			d.alerts.Alert(
				fmt.Sprintf("Failed to pause %s contract: %v", name, err),
				escalation,
				alerting.PauseFailedCategory(name),
			)
			return
		}
		d.alerts.Alert(
			fmt.Sprintf("Successfully paused %s contract.", name),
			alerting.LevelInfo,
			alerting.PauseSucceededCategory(name),
		)
	case <-timer.C:
		// The underlying call is abandoned, not cancelled: a late result
		// from it is never observed or reported.
		d.alerts.Alert(
			fmt.Sprintf("Pausing %s contract timed out after %s.", name, d.timeout),
			escalation,
			alerting.PauseTimeoutCategory(name),
		)
	}
}
