package alerting

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/queue"
)

const (
	defaultCacheExpiry  = 5 * time.Minute
	defaultStartupGrace = time.Hour
	defaultPageSource   = "fuel-canary-watchtower"

	pageTimeout = 10 * time.Second
)

// HistoryStore persists fresh alert occurrences for auditing. Failures are
// logged and swallowed; persistence never blocks the alert pipeline.
type HistoryStore interface {
	RecordAlert(ctx context.Context, level, category, text string, paged bool) error
}

// Options tune the alerter.
type Options struct {
	// CacheExpiry is the dedup TTL: repeated alerts of the same category
	// inside this window are logged but not re-paged.
	CacheExpiry time.Duration
	// StartupGrace suppresses external paging until this long after
	// construction, while the monitored chains are still catching up.
	StartupGrace time.Duration
	// Source names this process in outbound pages.
	Source string
}

// Alerter is the alert cache and router. Producers submit events through
// Alert; a single worker drains the queue, logs every event locally,
// deduplicates by category, and forwards fresh Warn/Error events to the
// pager.
type Alerter struct {
	events  *queue.Queue[AlertEvent]
	dedup   map[AlertType]time.Time
	expiry  time.Duration
	pageOK  time.Time
	source  string
	pager   Pager
	history HistoryStore
	logger  zerolog.Logger

	now   func() time.Time
	fatal func()
}

// NewAlerter constructs an alerter. pager and history may be nil.
func NewAlerter(opts Options, pager Pager, history HistoryStore, logger zerolog.Logger) *Alerter {
	if opts.CacheExpiry <= 0 {
		opts.CacheExpiry = defaultCacheExpiry
	}
	if opts.StartupGrace < 0 {
		opts.StartupGrace = defaultStartupGrace
	}
	if opts.Source == "" {
		opts.Source = defaultPageSource
	}

	now := time.Now

	return &Alerter{
		events:  queue.New[AlertEvent](),
		dedup:   make(map[AlertType]time.Time),
		expiry:  opts.CacheExpiry,
		pageOK:  now().Add(opts.StartupGrace),
		source:  opts.Source,
		pager:   pager,
		history: history,
		logger:  logger.With().Str("component", "alerter").Logger(),
		now:     now,
		fatal:   func() { os.Exit(1) },
	}
}

// Alert submits an event. Never blocks the caller.
func (a *Alerter) Alert(text string, level AlertLevel, category AlertType) {
	a.events.Push(AlertEvent{Text: text, Level: level, Category: category})
}

// Start launches the consumer worker.
func (a *Alerter) Start() {
	go a.run()
}

// Close shuts the event queue. Only meaningful in tests; in production the
// producer side never goes away while the process lives.
func (a *Alerter) Close() {
	a.events.Close()
}

func (a *Alerter) run() {
	for {
		ev, ok := a.events.Pop()
		if !ok {
			// An alerting pipe that goes silent is worse than a crash:
			// a crash is at least visible to process supervision.
			a.logger.Error().Msg("connections to the alerter worker have all closed")
			a.fatal()
			return
		}
		a.process(ev)
	}
}

// process handles one event: local log, lazy cache purge, dedup check, and
// external forwarding for fresh Warn/Error occurrences past the grace
// period.
func (a *Alerter) process(ev AlertEvent) {
	switch ev.Level {
	case LevelInfo:
		a.logger.Info().Str("category", string(ev.Category)).Msg(ev.Text)
	case LevelWarn:
		a.logger.Warn().Str("category", string(ev.Category)).Msg(ev.Text)
	case LevelError:
		a.logger.Error().Str("category", string(ev.Category)).Msg(ev.Text)
	default:
		return
	}

	now := a.now()
	for category, expiresAt := range a.dedup {
		if !now.Before(expiresAt) {
			delete(a.dedup, category)
		}
	}

	if expiresAt, ok := a.dedup[ev.Category]; ok && now.Before(expiresAt) {
		// Duplicate inside the TTL window. The window is fixed, not
		// sliding: the first occurrence governs suppression.
		return
	}
	a.dedup[ev.Category] = now.Add(a.expiry)

	paged := false
	if a.pager != nil && !now.Before(a.pageOK) {
		if severity, ok := pageSeverity(ev.Level); ok {
			ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
			if err := a.pager.SendPage(ctx, severity, ev.Text, a.source); err != nil {
				a.logger.Error().Err(err).
					Str("category", string(ev.Category)).
					Msg("failed to send page")
			} else {
				paged = true
			}
			cancel()
		}
	}

	if a.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		if err := a.history.RecordAlert(ctx, string(ev.Level), string(ev.Category), ev.Text, paged); err != nil {
			a.logger.Error().Err(err).Msg("failed to record alert history")
		}
		cancel()
	}
}

func pageSeverity(level AlertLevel) (string, bool) {
	switch level {
	case LevelWarn:
		return "warning", true
	case LevelError:
		return "critical", true
	}
	return "", false
}
