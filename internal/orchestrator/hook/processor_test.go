package hook

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/hookwatch/internal/config"
	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
	"github.com/GriffinCanCode/hookwatch/internal/resilience"
	"github.com/GriffinCanCode/hookwatch/internal/snapshot"
	"github.com/GriffinCanCode/hookwatch/internal/templates"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
	"github.com/GriffinCanCode/hookwatch/internal/vision"
)

// Mock implementations

type mockCapturer struct {
	frame image.Image
	err   error
	calls atomic.Int32
}

func (m *mockCapturer) Capture(context.Context) (image.Image, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.frame, nil
}

func (m *mockCapturer) Close() {}

// scriptedMatcher returns per-region scores in order, repeating the last one.
type scriptedMatcher struct {
	mu      sync.Mutex
	scores  map[string][]float64
	missing map[string]bool
	calls   map[string]int
}

func newScripted(scores map[string][]float64, missing ...string) *scriptedMatcher {
	m := &scriptedMatcher{scores: scores, missing: map[string]bool{}, calls: map[string]int{}}
	for _, id := range missing {
		m.missing[id] = true
	}
	return m
}

func (m *scriptedMatcher) Monitored(id string) error {
	if m.missing[id] {
		return apperrors.Newf(apperrors.TemplateMissing, "no template for %q", id)
	}
	return nil
}

func (m *scriptedMatcher) Match(id string, _ image.Image) (vision.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.scores[id]
	if len(seq) == 0 {
		return vision.Score{SSIM: 0, HashDistance: 30}, nil
	}
	i := min(m.calls[id], len(seq)-1)
	m.calls[id]++
	return vision.Score{SSIM: seq[i], HashDistance: 4}, nil
}

func testRegions() []Region {
	return []Region{
		{ID: "a", Label: "Alpha", Bounds: image.Rect(0, 0, 20, 20)},
		{ID: "b", Label: "Bravo", Bounds: image.Rect(30, 0, 50, 20)},
	}
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 100, 100))
}

func newTestProcessor(c *mockCapturer, m Matcher, opts Options) *Processor {
	if opts.Threshold == 0 {
		opts.Threshold = 0.8
	}
	return NewProcessor(c, m, testRegions(), opts)
}

func runCtx() context.Context {
	return trace.WithRun(context.Background(), "run-test")
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func waitEvent(t *testing.T, ch <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Tests

func TestEdgeTriggeredCount(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.5, 0.9, 0.9, 0.4, 0.85}}), Options{})

	wantStates := []State{Idle, Matched, Matched, Idle, Matched}
	wantCounts := []int{0, 1, 1, 1, 2}

	for i := range wantStates {
		report := p.RunCycle(runCtx())
		got := report.Regions[0]
		if got.State != wantStates[i] || got.Count != wantCounts[i] {
			t.Errorf("cycle %d: state=%v count=%d, want %v %d", i, got.State, got.Count, wantStates[i], wantCounts[i])
		}
	}

	var counts []int
	for _, e := range drain(p.Events()) {
		if e.Kind == EventCount && e.RegionID == "a" {
			counts = append(counts, e.Count)
			if e.RunID != "run-test" || e.Label != "Alpha" {
				t.Errorf("event = %+v", e)
			}
		}
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
		t.Errorf("count events = %v, want [1 2]", counts)
	}
}

func TestCountNeverExceedsOnePerCycle(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9, 0.1, 0.95, 0.2, 0.99, 0.3}, "b": {0.9}}), Options{})

	prev := map[string]int{}
	for i := 0; i < 6; i++ {
		for _, r := range p.RunCycle(runCtx()).Regions {
			if d := r.Count - prev[r.ID]; d < 0 || d > 1 {
				t.Errorf("cycle %d region %s count jumped by %d", i, r.ID, d)
			}
			prev[r.ID] = r.Count
		}
	}
	if prev["a"] != 3 || prev["b"] != 1 {
		t.Errorf("final counts = %v, want a=3 b=1", prev)
	}
}

func TestMissingTemplateNeverCounts(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9}, "b": {0.9}}, "b"), Options{})

	for i := 0; i < 3; i++ {
		p.RunCycle(runCtx())
	}

	report := p.LastReport()
	b := report.Regions[1]
	if b.State != Unmonitored || b.Count != 0 || b.Err == "" {
		t.Errorf("region b = %+v, want unmonitored with error", b)
	}
	if got := p.Session().Count("a"); got != 1 {
		t.Errorf("region a count = %d, want 1", got)
	}
	for _, e := range drain(p.Events()) {
		if e.RegionID == "b" {
			t.Errorf("unexpected event for unmonitored region: %+v", e)
		}
	}
}

func TestCaptureFailureSkipsCycle(t *testing.T) {
	c := &mockCapturer{err: errors.New("display gone")}
	breaker := resilience.New(resilience.CaptureConfig(2, time.Hour))
	p := newTestProcessor(c, newScripted(map[string][]float64{"a": {0.9}}), Options{Breaker: breaker})

	for i := 0; i < 3; i++ {
		report := p.RunCycle(runCtx())
		if report.Err == "" {
			t.Errorf("cycle %d should report an error", i)
		}
		if len(report.Regions) != 2 || report.Regions[0].Count != 0 {
			t.Errorf("cycle %d regions = %+v", i, report.Regions)
		}
	}

	if breaker.State() != resilience.Open {
		t.Errorf("breaker = %v, want open", breaker.State())
	}
	if got := c.calls.Load(); got != 2 {
		t.Errorf("capture calls = %d, want 2 (third refused by breaker)", got)
	}
	if len(drain(p.Events())) != 0 {
		t.Error("failed cycles should emit nothing")
	}
}

func TestRegionOutsideFrameIsSkipped(t *testing.T) {
	regions := []Region{
		{ID: "in", Label: "In", Bounds: image.Rect(0, 0, 10, 10)},
		{ID: "out", Label: "Out", Bounds: image.Rect(90, 90, 120, 120)},
	}
	m := newScripted(map[string][]float64{"in": {0.9}, "out": {0.9}})
	p := NewProcessor(&mockCapturer{frame: testFrame()}, m, regions, Options{Threshold: 0.8})

	report := p.RunCycle(runCtx())

	if report.Regions[0].Count != 1 {
		t.Errorf("in-bounds region count = %d, want 1", report.Regions[0].Count)
	}
	out := report.Regions[1]
	if out.Count != 0 || out.State != Idle || out.Err == "" {
		t.Errorf("out-of-bounds region = %+v", out)
	}
}

func TestExactTemplateCropMatches(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			frame.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8((x * y) % 256), B: uint8(y * 2), A: 255})
		}
	}
	regions := testRegions()
	tplA, _ := vision.Crop(frame, regions[0].Bounds)
	tplB, _ := vision.Crop(frame, regions[0].Bounds) // wrong slot for b

	store, err := templates.FromImages(map[string]image.Image{"a": tplA, "b": tplB})
	if err != nil {
		t.Fatal(err)
	}
	p := NewProcessor(&mockCapturer{frame: frame}, NewTemplateMatcher(store), regions, Options{Threshold: 0.8})

	report := p.RunCycle(runCtx())

	a := report.Regions[0]
	if a.Score != 1.0 || a.State != Matched || a.Count != 1 {
		t.Errorf("region a = %+v, want exact match counted", a)
	}
	if a.HashDistance != 0 {
		t.Errorf("hash distance = %d, want 0", a.HashDistance)
	}
	if report.Regions[1].Score >= 1.0 {
		t.Errorf("region b scored %v against another slot's template", report.Regions[1].Score)
	}
}

func TestTemplateMatcherMissing(t *testing.T) {
	m := NewTemplateMatcher(templates.Load(t.TempDir(), []string{"a"}))
	if err := m.Monitored("a"); !apperrors.IsCode(err, apperrors.TemplateMissing) {
		t.Errorf("Monitored(a) = %v, want TemplateMissing", err)
	}
	if err := m.Monitored("zzz"); !apperrors.IsCode(err, apperrors.TemplateMissing) {
		t.Errorf("Monitored(zzz) = %v, want TemplateMissing", err)
	}
	if _, err := m.Match("a", testFrame()); err == nil {
		t.Error("Match without template should fail")
	}
}

func TestStartStop(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9}}), Options{Interval: 10 * time.Millisecond})

	if !p.Start(context.Background()) {
		t.Fatal("Start should succeed")
	}
	if !p.Running() || p.RunID() == "" {
		t.Fatal("processor should be running with a run id")
	}
	runID := p.RunID()

	started := waitEvent(t, p.Events(), func(e Event) bool { return e.Kind == EventState })
	if !started.Running || started.RunID != runID {
		t.Errorf("state event = %+v", started)
	}
	hooked := waitEvent(t, p.Events(), func(e Event) bool { return e.Kind == EventCount })
	if hooked.Count != 1 || hooked.RunID != runID {
		t.Errorf("count event = %+v", hooked)
	}

	if !p.Stop() {
		t.Fatal("Stop should succeed")
	}
	if p.Stop() {
		t.Error("second Stop should be a no-op")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if p.Running() || p.RunID() != "" {
		t.Error("processor should be stopped")
	}

	drain(p.Events())
	time.Sleep(50 * time.Millisecond)
	for _, e := range drain(p.Events()) {
		t.Errorf("event after stop: %+v", e)
	}
}

func TestStatusConsistentUnderToggle(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()}, newScripted(nil),
		Options{Interval: time.Hour, EventBuffer: 1024})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			p.Start(context.Background())
			p.Stop()
		}
	}()

	for {
		select {
		case <-done:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.Wait(ctx); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			return
		default:
		}
		st := p.Status()
		if st.Running != (st.RunID != "") {
			t.Fatalf("status running=%v with run id %q", st.Running, st.RunID)
		}
	}
}

func TestStopWhenIdle(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()}, newScripted(nil), Options{})
	if p.Stop() {
		t.Error("Stop without a run should return false")
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait without a run = %v", err)
	}
}

func TestStopAbandonsSleep(t *testing.T) {
	c := &mockCapturer{frame: testFrame()}
	p := newTestProcessor(c, newScripted(nil), Options{Interval: time.Hour})

	p.Start(context.Background())
	waitFor(t, func() bool { return c.calls.Load() == 1 })
	p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("loop should exit without finishing its sleep: %v", err)
	}
}

func TestDoubleStartKeepsOneLoop(t *testing.T) {
	c := &mockCapturer{frame: testFrame()}
	p := newTestProcessor(c, newScripted(nil), Options{Interval: time.Hour})
	defer p.Stop()

	if !p.Start(context.Background()) {
		t.Fatal("first Start should succeed")
	}
	runID := p.RunID()
	if p.Start(context.Background()) {
		t.Error("second Start should be a no-op")
	}
	if p.RunID() != runID {
		t.Error("run id should not change on a no-op Start")
	}

	waitFor(t, func() bool { return c.calls.Load() >= 1 })
	time.Sleep(30 * time.Millisecond)
	if got := c.calls.Load(); got != 1 {
		t.Errorf("capture calls = %d, want 1 (single loop)", got)
	}
}

func TestRestartKeepsCountsAndRecountsMatch(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9}}), Options{Interval: time.Hour})

	p.RunCycle(runCtx())
	if got := p.Session().Count("a"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	drain(p.Events())

	p.Start(context.Background())
	evt := waitEvent(t, p.Events(), func(e Event) bool { return e.Kind == EventCount })
	if evt.Count != 2 {
		t.Errorf("count after restart = %d, want 2", evt.Count)
	}
	p.Stop()
	_ = p.Wait(context.Background())

	if !p.Start(context.Background()) {
		t.Error("Start after Stop should succeed")
	}
	p.Stop()
}

func TestShutdownEndsRun(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()}, newScripted(nil), Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	waitEvent(t, p.Events(), func(e Event) bool { return e.Kind == EventState && e.Running })
	cancel()

	stopped := waitEvent(t, p.Events(), func(e Event) bool { return e.Kind == EventState })
	if stopped.Running {
		t.Errorf("state event = %+v, want not running", stopped)
	}
	waitFor(t, func() bool { return !p.Running() })
}

func TestResetCounts(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9}, "b": {0.9}}), Options{})
	p.RunCycle(runCtx())
	drain(p.Events())

	p.ResetCounts()

	for id, n := range p.Session().Counts() {
		if n != 0 {
			t.Errorf("count %s = %d after reset", id, n)
		}
	}
	events := drain(p.Events())
	if len(events) != 2 {
		t.Fatalf("reset events = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.Kind != EventCount || e.Count != 0 {
			t.Errorf("reset event = %+v", e)
		}
	}
}

func TestStatus(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9}}, "b"), Options{})

	st := p.Status()
	if st.Running || !st.LastCycle.IsZero() || len(st.Regions) != 2 {
		t.Fatalf("initial status = %+v", st)
	}
	if st.Regions[0].State != Idle || st.Regions[1].State != Unmonitored {
		t.Errorf("initial states = %v, %v", st.Regions[0].State, st.Regions[1].State)
	}

	p.RunCycle(runCtx())
	st = p.Status()
	a := st.Regions[0]
	if a.Score != 0.9 || a.HashDistance != 4 || a.Count != 1 || a.State != Matched {
		t.Errorf("region a status = %+v", a)
	}
	if st.LastCycle.IsZero() {
		t.Error("LastCycle should be set")
	}
}

func TestDebugSnapshots(t *testing.T) {
	dir := t.TempDir()
	w, err := snapshot.New(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.1}}, "b"), Options{Snapshots: w})

	p.RunCycle(runCtx())
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("first cycle wrote %d files, want 0", len(entries))
	}
	p.RunCycle(runCtx())
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("second cycle wrote %d files, want frame + 1 crop", len(entries))
	}
}

func TestEventBufferFullDoesNotBlock(t *testing.T) {
	p := newTestProcessor(&mockCapturer{frame: testFrame()},
		newScripted(map[string][]float64{"a": {0.9, 0.1}}), Options{EventBuffer: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 6; i++ {
			p.RunCycle(runCtx())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunCycle blocked on a full event buffer")
	}
	if got := p.Session().Count("a"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestRegionsFromConfig(t *testing.T) {
	regions := RegionsFromConfig([]config.Region{
		{ID: "s1", Label: "Survivor 1", X: 10, Y: 20, Width: 30, Height: 40},
		{ID: "s2", X: 0, Y: 0, Width: 8, Height: 8},
	})
	if regions[0].Bounds != image.Rect(10, 20, 40, 60) {
		t.Errorf("bounds = %v", regions[0].Bounds)
	}
	if regions[1].Label != "s2" {
		t.Errorf("empty label should fall back to id, got %q", regions[1].Label)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Unmonitored, "unmonitored"},
		{Idle, "idle"},
		{Matched, "matched"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %q, want %q", tt.s, got, tt.want)
		}
		if b, _ := tt.s.MarshalText(); string(b) != tt.want {
			t.Errorf("MarshalText = %q", b)
		}
	}
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, s := range []State{Unmonitored, Idle, Matched} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q) error: %v", b, err)
		}
		if got != s {
			t.Errorf("round trip %v = %v", s, got)
		}
	}

	var s State
	err := s.UnmarshalText([]byte("hooked"))
	if !apperrors.IsCode(err, apperrors.InvalidArgument) {
		t.Errorf("unknown name error = %v, want InvalidArgument", err)
	}
}
