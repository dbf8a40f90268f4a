package ratectl

import (
	"testing"

	"github.com/signalsfoundry/linkrate/phy"
)

type countingRecorder struct {
	decisions, changes, probes, switches int
	discarded, recoveries, finals        int
}

func (r *countingRecorder) RecordDecision(string)           { r.decisions++ }
func (r *countingRecorder) RecordRateChange(string, uint64) { r.changes++ }
func (r *countingRecorder) RecordDiscardedSample(string)    { r.discarded++ }
func (r *countingRecorder) RecordRecoveryEntered(string)    { r.recoveries++ }
func (r *countingRecorder) RecordFinalFailure(string)       { r.finals++ }
func (r *countingRecorder) RecordProbe(_ string, switched bool) {
	r.probes++
	if switched {
		r.switches++
	}
}

var ackMode = phy.NewOFDMMode("ack", 6_000_000)

func newThreshold(t *testing.T, cfg Config, opts ...Option) *ThresholdController {
	t.Helper()
	c, err := NewThresholdController(ladderCatalog(t), cfg, opts...)
	if err != nil {
		t.Fatalf("NewThresholdController error: %v", err)
	}
	return c
}

func selectName(c Controller, st *Station) string {
	return c.DataTxConfig(st).Mode.Name
}

func TestThresholdSelectsFromRTSQuality(t *testing.T) {
	c := newThreshold(t, DefaultConfig())
	st := c.NewStation()

	if got := selectName(c, st); got != "C1" {
		t.Fatalf("fresh station selected %s, want most robust C1", got)
	}
	c.ReportRtsOk(st, 0, ackMode, 12)
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("after RTS SNR 12 selected %s, want C2", got)
	}
	if got := c.RtsTxConfig(st).Mode.Name; got != "C1" {
		t.Fatalf("RtsTxConfig = %s, want C1", got)
	}
}

func TestThresholdZeroSampleKeepsPreviousDecision(t *testing.T) {
	rec := &countingRecorder{}
	c := newThreshold(t, DefaultConfig(), WithMetricsRecorder(rec))
	st := c.NewStation()

	c.ReportRtsOk(st, 0, ackMode, 12)
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("selected %s, want C2", got)
	}
	c.ReportDataOk(st, 0, ackMode, 0)
	if st.DiscardedSamples() != 1 || rec.discarded != 1 {
		t.Fatalf("discarded = %d (metric %d), want 1", st.DiscardedSamples(), rec.discarded)
	}
	if st.LastObservedSNR() != 12 {
		t.Fatalf("LastObservedSNR() = %g, want 12", st.LastObservedSNR())
	}
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("after zero sample selected %s, want C2", got)
	}
}

func TestThresholdZeroSamplesNeverOverwrite(t *testing.T) {
	c := newThreshold(t, DefaultConfig())
	st := c.NewStation()
	c.ReportAmpduStatus(st, 4, 0, 0, 0)
	c.ReportRtsOk(st, 0, ackMode, 0)
	if st.LastObservedSNR() != 0 {
		t.Fatalf("LastObservedSNR() = %g after zero samples only, want 0", st.LastObservedSNR())
	}
	if got := selectName(c, st); got != "C1" {
		t.Fatalf("no valid sample selected %s, want C1", got)
	}

	c.ReportAmpduStatus(st, 4, 0, 0, 21)
	c.ReportAmpduStatus(st, 4, 0, 0, 0)
	if st.LastObservedSNR() != 21 {
		t.Fatalf("LastObservedSNR() = %g, want 21", st.LastObservedSNR())
	}
	if st.DiscardedSamples() != 3 {
		t.Fatalf("DiscardedSamples() = %d, want 3", st.DiscardedSamples())
	}
	if st.Successes() != 12 {
		t.Fatalf("Successes() = %d, want 12", st.Successes())
	}
}

func TestThresholdSelectionIsIdempotent(t *testing.T) {
	c := newThreshold(t, DefaultConfig())
	var changes []RateChange
	c.OnRateChange(func(rc RateChange) { changes = append(changes, rc) })

	st := c.NewStation()
	st.SetAddress("02:00:00:00:00:01")
	c.ReportRtsOk(st, 0, ackMode, 25)
	first := c.DataTxConfig(st)
	second := c.DataTxConfig(st)
	if first != second {
		t.Fatalf("consecutive selections differ: %s then %s", first, second)
	}
	if len(changes) != 1 {
		t.Fatalf("rate changes = %d, want 1", len(changes))
	}
	rc := changes[0]
	if rc.From.Mode.Name != "C1" || rc.To.Mode.Name != "C3" || rc.RateBps() != 24_000_000 {
		t.Fatalf("unexpected change %s -> %s at %d", rc.From, rc.To, rc.RateBps())
	}
	if rc.Station.Address() != "02:00:00:00:00:01" || rc.Algorithm != AlgorithmThreshold {
		t.Fatalf("change carries station %q algorithm %s", rc.Station.Address(), rc.Algorithm)
	}
}

func TestThresholdFinalFailureSelectsMoreRobust(t *testing.T) {
	rec := &countingRecorder{}
	c := newThreshold(t, DefaultConfig(), WithMetricsRecorder(rec))
	st := c.NewStation()

	c.ReportRtsOk(st, 0, ackMode, 12)
	before := c.DataTxConfig(st)
	c.ReportDataFailed(st)
	c.ReportFinalDataFailed(st)
	after := c.DataTxConfig(st)

	if after.DataRate() >= before.DataRate() {
		t.Fatalf("after final failure selected %s (%d), want below %s (%d)", after, after.DataRate(), before, before.DataRate())
	}
	if st.PacketsObserved() != 1 || st.Failures() != 1 {
		t.Fatalf("packets = %d failures = %d, want 1 and 1", st.PacketsObserved(), st.Failures())
	}
	if rec.finals != 1 || rec.recoveries != 1 {
		t.Fatalf("final failures metric = %d, recoveries metric = %d, want 1 and 1", rec.finals, rec.recoveries)
	}
}

func TestThresholdRecoveryRoundTrip(t *testing.T) {
	c := newThreshold(t, DefaultConfig())
	st := c.NewStation()

	c.ReportRtsOk(st, 0, ackMode, 25)
	if got := selectName(c, st); got != "C3" {
		t.Fatalf("selected %s, want C3", got)
	}

	c.ReportDataFailed(st)
	if !st.InRecovery() {
		t.Fatalf("data failure did not enter recovery")
	}
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("in recovery selected %s, want C2", got)
	}

	// Nine successes, a failure, then nine more: the run is broken.
	for range 9 {
		c.ReportDataOk(st, 0, ackMode, 25)
	}
	c.ReportDataFailed(st)
	for range 9 {
		c.ReportDataOk(st, 0, ackMode, 25)
	}
	if !st.InRecovery() {
		t.Fatalf("left recovery without %d consecutive successes", DefaultSuccessThreshold)
	}
	if st.SuccessCount() != 9 || st.RetryCount() != 1 {
		t.Fatalf("successCount = %d retryCount = %d, want 9 and 1", st.SuccessCount(), st.RetryCount())
	}

	c.ReportDataOk(st, 0, ackMode, 25)
	if st.InRecovery() {
		t.Fatalf("still in recovery after %d consecutive successes", DefaultSuccessThreshold)
	}
	if st.SuccessCount() != 0 || st.FailureCount() != 0 {
		t.Fatalf("window counters not reset: %d/%d", st.SuccessCount(), st.FailureCount())
	}
	if got := selectName(c, st); got != "C3" {
		t.Fatalf("after recovery selected %s, want C3", got)
	}
	if st.RecoveryEntries() != 1 {
		t.Fatalf("RecoveryEntries() = %d, want 1", st.RecoveryEntries())
	}
}

func TestThresholdRecoveryRetryLimitStepsDown(t *testing.T) {
	c := newThreshold(t, DefaultConfig())
	st := c.NewStation()

	c.ReportRtsOk(st, 0, ackMode, 25)
	selectName(c, st)

	c.ReportDataFailed(st) // enters recovery, clamp below C3
	for i := uint32(0); i < DefaultRecoveryRetryLimit; i++ {
		c.ReportDataFailed(st)
	}
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("within the retry limit selected %s, want C2", got)
	}

	c.ReportDataFailed(st)
	if got := selectName(c, st); got != "C1" {
		t.Fatalf("past the retry limit selected %s, want C1", got)
	}
	if !st.InRecovery() || st.RetryCount() != 0 {
		t.Fatalf("recovery = %v retryCount = %d, want true and 0", st.InRecovery(), st.RetryCount())
	}
}

func TestThresholdTimerForcesReevaluation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheToleranceDB = 20
	c := newThreshold(t, cfg)
	st := c.NewStation()

	c.ReportRtsOk(st, 0, ackMode, 12)
	if got := selectName(c, st); got != "C2" {
		t.Fatalf("selected %s, want C2", got)
	}

	// 25 dB is within tolerance of the cached 12 dB, so the decision holds
	// until the timer expires.
	for range DefaultTimerTimeout - 1 {
		c.ReportDataOk(st, 0, ackMode, 25)
		if got := selectName(c, st); got != "C2" {
			t.Fatalf("timer %d: selected %s, want cached C2", st.Timer(), got)
		}
	}
	c.ReportDataOk(st, 0, ackMode, 25)
	if st.Timer() != 0 {
		t.Fatalf("Timer() = %d after timeout, want 0", st.Timer())
	}
	if got := selectName(c, st); got != "C3" {
		t.Fatalf("after timer expiry selected %s, want C3", got)
	}
	if st.CachedSNR() != 25 {
		t.Fatalf("CachedSNR() = %g, want 25", st.CachedSNR())
	}
}

func TestControllerRejectsForeignStation(t *testing.T) {
	a := newThreshold(t, DefaultConfig())
	b := newThreshold(t, DefaultConfig())
	st := b.NewStation()

	defer func() {
		if _, ok := recover().(InvariantViolation); !ok {
			t.Fatalf("expected InvariantViolation panic")
		}
	}()
	a.DataTxConfig(st)
}
