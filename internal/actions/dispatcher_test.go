package actions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

type recordedAlert struct {
	text     string
	level    alerting.AlertLevel
	category alerting.AlertType
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (r *alertRecorder) Alert(text string, level alerting.AlertLevel, category alerting.AlertType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, recordedAlert{text: text, level: level, category: category})
}

func (r *alertRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type fakeContract struct {
	err   error
	hang  bool
	calls int
}

func (c *fakeContract) Pause(ctx context.Context) error {
	c.calls++
	if c.hang {
		select {}
	}
	return c.err
}

func newTestDispatcher(state, gateway, portal Pausable, rec *alertRecorder, timeout time.Duration) *Dispatcher {
	return NewDispatcher(state, gateway, portal, rec, timeout, zerolog.Nop())
}

func TestHandleNoneIsNoOp(t *testing.T) {
	rec := &alertRecorder{}
	state := &fakeContract{}
	d := newTestDispatcher(state, &fakeContract{}, &fakeContract{}, rec, time.Second)

	d.handle(Command{Kind: ActionNone, Escalation: alerting.LevelError})

	if len(rec.alerts) != 0 {
		t.Fatalf("none command must have no observable side effect, got %d alerts", len(rec.alerts))
	}
	if state.calls != 0 {
		t.Fatal("none command must not touch any contract")
	}
}

func TestPauseSuccessEmitsAttemptAndSuccess(t *testing.T) {
	rec := &alertRecorder{}
	d := newTestDispatcher(&fakeContract{}, &fakeContract{}, &fakeContract{}, rec, time.Second)

	d.handle(Command{Kind: ActionPauseState, Escalation: alerting.LevelError})

	if len(rec.alerts) != 2 {
		t.Fatalf("expected attempt and success alerts, got %d", len(rec.alerts))
	}
	if rec.alerts[0].category != alerting.PauseAttemptCategory("state") || rec.alerts[0].level != alerting.LevelInfo {
		t.Fatalf("unexpected attempt alert: %#v", rec.alerts[0])
	}
	if rec.alerts[1].category != alerting.PauseSucceededCategory("state") || rec.alerts[1].level != alerting.LevelInfo {
		t.Fatalf("unexpected success alert: %#v", rec.alerts[1])
	}
}

func TestPauseFailureEscalates(t *testing.T) {
	rec := &alertRecorder{}
	gateway := &fakeContract{err: errors.New("ethereum account not configured")}
	d := newTestDispatcher(&fakeContract{}, gateway, &fakeContract{}, rec, time.Second)

	d.handle(Command{Kind: ActionPauseGateway, Escalation: alerting.LevelError})

	if len(rec.alerts) != 2 {
		t.Fatalf("expected attempt and failure alerts, got %d", len(rec.alerts))
	}
	failure := rec.alerts[1]
	if failure.category != alerting.PauseFailedCategory("gateway") {
		t.Fatalf("unexpected failure category: %q", failure.category)
	}
	if failure.level != alerting.LevelError {
		t.Fatalf("failure must escalate to the command level, got %q", failure.level)
	}
	if !strings.Contains(failure.text, "ethereum account not configured") {
		t.Fatalf("failure alert must carry the underlying error, got %q", failure.text)
	}
}

func TestPauseTimeoutAbandonsCall(t *testing.T) {
	rec := &alertRecorder{}
	portal := &fakeContract{hang: true}
	d := newTestDispatcher(&fakeContract{}, &fakeContract{}, portal, rec, 50*time.Millisecond)

	d.handle(Command{Kind: ActionPausePortal, Escalation: alerting.LevelWarn})

	if len(rec.alerts) != 2 {
		t.Fatalf("expected attempt and timeout alerts, got %d", len(rec.alerts))
	}
	timeout := rec.alerts[1]
	if timeout.category != alerting.PauseTimeoutCategory("portal") {
		t.Fatalf("unexpected timeout category: %q", timeout.category)
	}
	if timeout.level != alerting.LevelWarn {
		t.Fatalf("timeout must use the escalation level, got %q", timeout.level)
	}
	for _, a := range rec.alerts {
		if a.category == alerting.PauseSucceededCategory("portal") {
			t.Fatal("no success alert may follow a timed out pause")
		}
	}
}

func TestPauseAllIsSequentialAndIndependent(t *testing.T) {
	rec := &alertRecorder{}
	state := &fakeContract{}
	gateway := &fakeContract{err: errors.New("revert")}
	portal := &fakeContract{}
	d := newTestDispatcher(state, gateway, portal, rec, time.Second)

	d.handle(Command{Kind: ActionPauseAll, Escalation: alerting.LevelError})

	if state.calls != 1 || gateway.calls != 1 || portal.calls != 1 {
		t.Fatalf("all three pauses must be attempted, got %d/%d/%d", state.calls, gateway.calls, portal.calls)
	}

	var outcomes []alerting.AlertType
	for _, a := range rec.alerts {
		switch a.category {
		case alerting.PauseSucceededCategory("state"),
			alerting.PauseFailedCategory("gateway"),
			alerting.PauseSucceededCategory("portal"):
			outcomes = append(outcomes, a.category)
		}
	}
	want := []alerting.AlertType{
		alerting.PauseSucceededCategory("state"),
		alerting.PauseFailedCategory("gateway"),
		alerting.PauseSucceededCategory("portal"),
	}
	if len(outcomes) != len(want) {
		t.Fatalf("expected %d outcome alerts, got %d", len(want), len(outcomes))
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcome %d: expected %q, got %q", i, want[i], outcomes[i])
		}
	}
}

func TestDispatchDefaultsEscalationToInfo(t *testing.T) {
	rec := &alertRecorder{}
	d := newTestDispatcher(&fakeContract{}, &fakeContract{}, &fakeContract{}, rec, time.Second)
	d.Start()

	d.Dispatch(ActionPauseState, "")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher did not process the command in time")
		}
		if rec.count() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerTerminatesWhenQueueCloses(t *testing.T) {
	rec := &alertRecorder{}
	d := newTestDispatcher(&fakeContract{}, &fakeContract{}, &fakeContract{}, rec, time.Second)
	fatal := make(chan struct{})
	d.fatal = func() { close(fatal) }
	d.Start()

	d.Close()

	select {
	case <-fatal:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not treat a closed queue as fatal")
	}
}
