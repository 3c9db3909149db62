package watcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/actions"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
)

type recordedAlert struct {
	text     string
	level    alerting.AlertLevel
	category alerting.AlertType
}

type alertRecorder struct {
	alerts []recordedAlert
}

func (r *alertRecorder) Alert(text string, level alerting.AlertLevel, category alerting.AlertType) {
	r.alerts = append(r.alerts, recordedAlert{text: text, level: level, category: category})
}

func (r *alertRecorder) byCategory(cat alerting.AlertType) []recordedAlert {
	var out []recordedAlert
	for _, a := range r.alerts {
		if a.category == cat {
			out = append(out, a)
		}
	}
	return out
}

type actionRecorder struct {
	kinds []actions.ActionKind
}

func (r *actionRecorder) Dispatch(kind actions.ActionKind, _ alerting.AlertLevel) {
	r.kinds = append(r.kinds, kind)
}

type fakeSettlement struct {
	connectionErr error
	blockAge      uint64
	blockAgeErr   error
	balance       *big.Int
	balanceErr    error
	latest        uint64
	latestErr     error

	connectionCalls int
	blockAgeCalls   int
	balanceCalls    int
}

func (f *fakeSettlement) CheckConnection(context.Context) error {
	f.connectionCalls++
	return f.connectionErr
}

func (f *fakeSettlement) SecondsSinceLastBlock(context.Context) (uint64, error) {
	f.blockAgeCalls++
	return f.blockAge, f.blockAgeErr
}

func (f *fakeSettlement) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, f.latestErr
}

func (f *fakeSettlement) AccountBalance(context.Context, string) (*big.Int, error) {
	f.balanceCalls++
	return f.balance, f.balanceErr
}

type fakeCommits struct {
	hashes    []string
	err       error
	fromBlock uint64
	calls     int
}

func (f *fakeCommits) CommitsSince(_ context.Context, fromBlock uint64) ([]string, error) {
	f.calls++
	f.fromBlock = fromBlock
	return f.hashes, f.err
}

type fakeVerifier struct {
	valid map[string]bool
	errs  map[string]error
}

func (f *fakeVerifier) VerifyBlockCommit(_ context.Context, hash string) (bool, error) {
	if err, ok := f.errs[hash]; ok {
		return false, err
	}
	return f.valid[hash], nil
}

type fakePortal struct {
	deposited *big.Int
	withdrawn *big.Int
	err       error
}

func (f *fakePortal) BaseDeposited(context.Context, uint32, uint64) (*big.Int, error) {
	return f.deposited, f.err
}

func (f *fakePortal) BaseWithdrawn(context.Context, uint32, uint64) (*big.Int, error) {
	return f.withdrawn, f.err
}

type fakeGateway struct {
	deposited *big.Int
	withdrawn *big.Int
	err       error
}

func (f *fakeGateway) TokenDeposited(context.Context, uint32, string, uint64) (*big.Int, error) {
	return f.deposited, f.err
}

func (f *fakeGateway) TokenWithdrawn(context.Context, uint32, string, uint64) (*big.Int, error) {
	return f.withdrawn, f.err
}

func warnAlert() config.IndicatorConfig {
	return config.IndicatorConfig{AlertLevel: alerting.LevelWarn, AlertAction: actions.ActionNone}
}

func newEthWatcher(chain *fakeSettlement, commits *fakeCommits, verifier *fakeVerifier, cfg config.EthereumWatcherConfig, account string) (*EthereumWatcher, *alertRecorder, *actionRecorder) {
	alerts := &alertRecorder{}
	dispatched := &actionRecorder{}
	w := NewEthereumWatcher(chain, commits, verifier, &fakePortal{deposited: big.NewInt(0), withdrawn: big.NewInt(0)}, &fakeGateway{deposited: big.NewInt(0), withdrawn: big.NewInt(0)}, cfg, account, alerts, dispatched, zerolog.Nop())
	return w, alerts, dispatched
}

func TestHeartbeatAlertEveryIteration(t *testing.T) {
	chain := &fakeSettlement{latest: 100}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, config.EthereumWatcherConfig{}, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	beats := alerts.byCategory(alerting.TypeEthereumWatching)
	if len(beats) != 1 {
		t.Fatalf("expected one heartbeat alert, got %d", len(beats))
	}
	if beats[0].level != alerting.LevelInfo {
		t.Fatalf("heartbeat must be info, got %s", beats[0].level)
	}
}

func TestDisabledIndicatorNeverProbes(t *testing.T) {
	chain := &fakeSettlement{connectionErr: errors.New("down"), blockAge: 999}
	cfg := config.EthereumWatcherConfig{
		ConnectionAlert: config.IndicatorConfig{AlertLevel: alerting.LevelNone},
		BlockProductionAlert: config.BlockProductionConfig{
			AlertLevel: alerting.LevelNone, MaxBlockTime: 20,
		},
	}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if chain.connectionCalls != 0 {
		t.Fatalf("disabled connection indicator probed %d times", chain.connectionCalls)
	}
	if chain.blockAgeCalls != 0 {
		t.Fatalf("disabled block production indicator probed %d times", chain.blockAgeCalls)
	}
	if got := alerts.byCategory(alerting.TypeEthereumConnection); len(got) != 0 {
		t.Fatalf("disabled indicator must not alert, got %d alerts", len(got))
	}
}

func TestConnectionFailureAlertsAndDispatches(t *testing.T) {
	chain := &fakeSettlement{connectionErr: errors.New("rpc unreachable")}
	cfg := config.EthereumWatcherConfig{
		ConnectionAlert: config.IndicatorConfig{
			AlertLevel:  alerting.LevelError,
			AlertAction: actions.ActionPauseAll,
		},
	}
	w, alerts, dispatched := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.TypeEthereumConnection)
	if len(got) != 1 {
		t.Fatalf("expected one connection alert, got %d", len(got))
	}
	if got[0].level != alerting.LevelError {
		t.Fatalf("expected error level, got %s", got[0].level)
	}
	if !strings.Contains(got[0].text, "rpc unreachable") {
		t.Fatalf("alert text must carry the cause, got %q", got[0].text)
	}
	if len(dispatched.kinds) != 1 || dispatched.kinds[0] != actions.ActionPauseAll {
		t.Fatalf("expected pause_all dispatch, got %v", dispatched.kinds)
	}
}

func TestBlockProductionBreachCarriesBothNumbers(t *testing.T) {
	chain := &fakeSettlement{blockAge: 25}
	cfg := config.EthereumWatcherConfig{
		BlockProductionAlert: config.BlockProductionConfig{
			AlertLevel:   alerting.LevelWarn,
			AlertAction:  actions.ActionPauseState,
			MaxBlockTime: 20,
		},
	}
	w, alerts, dispatched := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.TypeEthereumBlockProduction)
	if len(got) != 1 {
		t.Fatalf("expected one block production alert, got %d", len(got))
	}
	if got[0].level != alerting.LevelWarn {
		t.Fatalf("expected warn level, got %s", got[0].level)
	}
	if !strings.Contains(got[0].text, "25") || !strings.Contains(got[0].text, "20") {
		t.Fatalf("alert text must carry observed and threshold seconds, got %q", got[0].text)
	}
	if len(dispatched.kinds) != 1 || dispatched.kinds[0] != actions.ActionPauseState {
		t.Fatalf("expected pause_state dispatch, got %v", dispatched.kinds)
	}
}

func TestBlockProductionWithinThresholdStaysQuiet(t *testing.T) {
	chain := &fakeSettlement{blockAge: 20}
	cfg := config.EthereumWatcherConfig{
		BlockProductionAlert: config.BlockProductionConfig{
			AlertLevel:   alerting.LevelWarn,
			MaxBlockTime: 20,
		},
	}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if got := alerts.byCategory(alerting.TypeEthereumBlockProduction); len(got) != 0 {
		t.Fatalf("expected no alert at the threshold, got %d", len(got))
	}
}

func TestAccountFundsSkippedWithoutAccount(t *testing.T) {
	chain := &fakeSettlement{balance: big.NewInt(0)}
	cfg := config.EthereumWatcherConfig{
		AccountFundsAlert: config.AccountFundsConfig{
			AlertLevel: alerting.LevelError,
			MinBalance: 1,
		},
	}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if chain.balanceCalls != 0 {
		t.Fatalf("read-only watcher must not query balances, got %d calls", chain.balanceCalls)
	}
	if got := alerts.byCategory(alerting.TypeEthereumAccountFunds); len(got) != 0 {
		t.Fatalf("expected no funds alert, got %d", len(got))
	}
}

func TestAccountFundsBelowMinimumAlerts(t *testing.T) {
	// 0.5 ETH against a 1 ETH floor.
	balance, _ := new(big.Int).SetString("500000000000000000", 10)
	chain := &fakeSettlement{balance: balance}
	cfg := config.EthereumWatcherConfig{
		AccountFundsAlert: config.AccountFundsConfig{
			AlertLevel: alerting.LevelWarn,
			MinBalance: 1,
		},
	}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.TypeEthereumAccountFunds)
	if len(got) != 1 {
		t.Fatalf("expected one funds alert, got %d", len(got))
	}
	if !strings.Contains(got[0].text, "0.5") {
		t.Fatalf("alert text must carry the remaining balance, got %q", got[0].text)
	}
}

func TestInvalidStateCommitBreaches(t *testing.T) {
	commits := &fakeCommits{hashes: []string{"0xgood", "0xbad"}}
	verifier := &fakeVerifier{valid: map[string]bool{"0xgood": true}}
	cfg := config.EthereumWatcherConfig{
		InvalidStateCommitAlert: config.IndicatorConfig{
			AlertLevel:  alerting.LevelError,
			AlertAction: actions.ActionPauseAll,
		},
	}
	w, alerts, dispatched := newEthWatcher(&fakeSettlement{latest: 100}, commits, verifier, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.TypeInvalidStateCommit)
	if len(got) != 1 {
		t.Fatalf("expected one invalid commit alert, got %d", len(got))
	}
	if !strings.Contains(got[0].text, "0xbad") {
		t.Fatalf("alert text must name the invalid commit, got %q", got[0].text)
	}
	if len(dispatched.kinds) != 1 || dispatched.kinds[0] != actions.ActionPauseAll {
		t.Fatalf("expected pause_all dispatch, got %v", dispatched.kinds)
	}
}

func TestInvalidCommitOutranksVerifyErrors(t *testing.T) {
	commits := &fakeCommits{hashes: []string{"0xflaky", "0xbad"}}
	verifier := &fakeVerifier{
		valid: map[string]bool{},
		errs:  map[string]error{"0xflaky": errors.New("rollup query failed")},
	}
	cfg := config.EthereumWatcherConfig{
		InvalidStateCommitAlert: config.IndicatorConfig{AlertLevel: alerting.LevelError},
	}
	w, alerts, _ := newEthWatcher(&fakeSettlement{latest: 100}, commits, verifier, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if got := alerts.byCategory(alerting.TypeInvalidStateCommit); len(got) != 1 {
		t.Fatalf("expected the invalid commit breach, got %d alerts", len(got))
	}
	if got := alerts.byCategory(alerting.TypeStateCommitProbe); len(got) != 0 {
		t.Fatalf("breach must take precedence over probe errors, got %d probe alerts", len(got))
	}
}

func TestCommitProbeFailureAlerts(t *testing.T) {
	commits := &fakeCommits{err: errors.New("log filter failed")}
	cfg := config.EthereumWatcherConfig{
		InvalidStateCommitAlert: config.IndicatorConfig{AlertLevel: alerting.LevelWarn},
	}
	w, alerts, _ := newEthWatcher(&fakeSettlement{latest: 100}, commits, &fakeVerifier{}, cfg, "")

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.TypeStateCommitProbe)
	if len(got) != 1 {
		t.Fatalf("expected one probe failure alert, got %d", len(got))
	}
	if !strings.Contains(got[0].text, "log filter failed") {
		t.Fatalf("alert text must carry the cause, got %q", got[0].text)
	}
}

func TestWatermarkAdvancesMonotonically(t *testing.T) {
	chain := &fakeSettlement{latest: 100}
	commits := &fakeCommits{}
	cfg := config.EthereumWatcherConfig{
		InvalidStateCommitAlert: config.IndicatorConfig{AlertLevel: alerting.LevelWarn},
	}
	w, _, _ := newEthWatcher(chain, commits, &fakeVerifier{}, cfg, "")
	w.watermark = 50

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if commits.fromBlock != 50 {
		t.Fatalf("commit scan must start at the watermark, got %d", commits.fromBlock)
	}
	if w.watermark != 100 {
		t.Fatalf("watermark must advance to the head, got %d", w.watermark)
	}

	// The head regressing (reorg or flaky endpoint) never moves the
	// watermark backwards.
	chain.latest = 80
	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if w.watermark != 100 {
		t.Fatalf("watermark must not regress, got %d", w.watermark)
	}
}

func TestWatermarkHoldsWhenHeadUnavailable(t *testing.T) {
	chain := &fakeSettlement{latest: 100}
	cfg := config.EthereumWatcherConfig{
		InvalidStateCommitAlert: config.IndicatorConfig{AlertLevel: alerting.LevelWarn},
	}
	w, _, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")
	w.watermark = 60

	chain.latestErr = errors.New("rpc down")
	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if w.watermark != 60 {
		t.Fatalf("watermark must hold on head failure, got %d", w.watermark)
	}
}

func TestPortalDepositVolumeBreach(t *testing.T) {
	// 12 ETH deposited against a 10 ETH threshold.
	deposited, _ := new(big.Int).SetString("12000000000000000000", 10)
	alerts := &alertRecorder{}
	dispatched := &actionRecorder{}
	cfg := config.EthereumWatcherConfig{
		PortalDepositAlerts: []config.VolumeAlertConfig{{
			AlertLevel:    alerting.LevelWarn,
			AlertAction:   actions.ActionPausePortal,
			TokenName:     "ETH",
			TokenDecimals: 18,
			TimeFrame:     300,
			Amount:        10,
		}},
	}
	w := NewEthereumWatcher(
		&fakeSettlement{latest: 100},
		&fakeCommits{}, &fakeVerifier{},
		&fakePortal{deposited: deposited, withdrawn: big.NewInt(0)},
		&fakeGateway{deposited: big.NewInt(0), withdrawn: big.NewInt(0)},
		cfg, "", alerts, dispatched, zerolog.Nop(),
	)

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got := alerts.byCategory(alerting.DepositCategory("ETH"))
	if len(got) != 1 {
		t.Fatalf("expected one deposit volume alert, got %d", len(got))
	}
	if !strings.Contains(got[0].text, "12") || !strings.Contains(got[0].text, "10") {
		t.Fatalf("alert text must carry observed and threshold amounts, got %q", got[0].text)
	}
	if len(dispatched.kinds) != 1 || dispatched.kinds[0] != actions.ActionPausePortal {
		t.Fatalf("expected pause_portal dispatch, got %v", dispatched.kinds)
	}
}

func TestVolumeScanSkipsWhenHeadUnavailable(t *testing.T) {
	cfg := config.EthereumWatcherConfig{
		GatewayWithdrawalAlerts: []config.VolumeAlertConfig{{
			AlertLevel:    alerting.LevelWarn,
			TokenName:     "USDC",
			TokenDecimals: 6,
			TokenAddress:  "0x0000000000000000000000000000000000000001",
			TimeFrame:     300,
			Amount:        1000,
		}},
	}
	chain := &fakeSettlement{latestErr: errors.New("rpc down")}
	w, alerts, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, cfg, "")
	w.watermark = 10

	if err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	// The scan degrades to a probe failure, not a silent skip.
	got := alerts.byCategory(alerting.WithdrawalProbeCategory("ethereum", "USDC"))
	if len(got) != 1 {
		t.Fatalf("expected one probe failure alert, got %d", len(got))
	}
}

func TestRunFailsWithoutInitialHead(t *testing.T) {
	chain := &fakeSettlement{latestErr: errors.New("rpc down")}
	w, _, _ := newEthWatcher(chain, &fakeCommits{}, &fakeVerifier{}, config.EthereumWatcherConfig{PollInterval: time.Second}, "")

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run must fail when the initial head cannot be read")
	}
}

func TestThresholdBaseUnits(t *testing.T) {
	cases := []struct {
		amount   float64
		decimals uint8
		want     string
	}{
		{amount: 1, decimals: 18, want: "1000000000000000000"},
		{amount: 0.5, decimals: 18, want: "500000000000000000"},
		{amount: 1000, decimals: 6, want: "1000000000"},
		{amount: 0, decimals: 18, want: "0"},
	}
	for _, tc := range cases {
		got := thresholdBaseUnits(tc.amount, tc.decimals)
		if got.String() != tc.want {
			t.Fatalf("thresholdBaseUnits(%v, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestFormatBaseUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := formatBaseUnits(v, 18); got != "1.5" {
		t.Fatalf("formatBaseUnits = %q, want 1.5", got)
	}
}
