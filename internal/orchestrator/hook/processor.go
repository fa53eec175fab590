package hook

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/hookwatch/internal/resilience"
	"github.com/GriffinCanCode/hookwatch/internal/screen"
	"github.com/GriffinCanCode/hookwatch/internal/snapshot"
	"github.com/GriffinCanCode/hookwatch/internal/syncx"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
	"github.com/GriffinCanCode/hookwatch/internal/vision"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventCount carries a region's new hook count.
	EventCount EventKind = "count"
	// EventState carries a change of the running flag.
	EventState EventKind = "state"
)

// Event is sent to presentation sinks.
type Event struct {
	Kind     EventKind
	RunID    string
	RegionID string
	Label    string
	Count    int
	Running  bool
	Time     time.Time
}

// RegionResult is one region's outcome in a cycle.
type RegionResult struct {
	ID           string
	Label        string
	State        State
	Count        int
	Score        float64
	HashDistance int
	Err          string
}

// Report describes the most recent cycle.
type Report struct {
	RunID   string
	Time    time.Time
	Err     string
	Regions []RegionResult
}

// Options tune a Processor. Zero Interval, EventBuffer and Breaker fall back
// to defaults; Threshold is used as given.
type Options struct {
	Interval    time.Duration
	Threshold   float64
	EventBuffer int
	Breaker     *resilience.Breaker
	Snapshots   *snapshot.Writer
}

type run struct {
	id   string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (r *run) halt() bool {
	halted := false
	r.once.Do(func() {
		close(r.stop)
		halted = true
	})
	return halted
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Processor captures the screen on an interval and counts matched edges.
type Processor struct {
	capturer  screen.Capturer
	matcher   Matcher
	session   *Session
	breaker   *resilience.Breaker
	snapshots *snapshot.Writer
	interval  time.Duration
	threshold float64
	events    chan Event
	last      *syncx.RWGuard[Report]

	mu      sync.Mutex
	current *run
}

// NewProcessor creates a stopped processor.
func NewProcessor(capturer screen.Capturer, matcher Matcher, regions []Region, opts Options) *Processor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.New(resilience.CaptureConfig(resilience.DefaultThreshold, resilience.DefaultResetTimeout))
	}
	return &Processor{
		capturer:  capturer,
		matcher:   matcher,
		session:   NewSession(regions),
		breaker:   opts.Breaker,
		snapshots: opts.Snapshots,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		events:    make(chan Event, opts.EventBuffer),
		last:      syncx.NewGuard(Report{}),
	}
}

// Start launches a new run. It returns false if a run is already active.
// Counts carry over; match state starts idle so a region already showing
// the hooked icon counts once.
func (p *Processor) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && !p.current.stopped() {
		return false
	}
	var prev <-chan struct{}
	if p.current != nil {
		prev = p.current.done
	}

	r := &run{
		id:   uuid.NewString(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	p.current = r

	p.emit(Event{Kind: EventState, RunID: r.id, Running: true, Time: time.Now()})
	go p.loop(ctx, r, prev)
	return true
}

// Stop ends the active run. A cycle already in progress completes; the wait
// before the next one is abandoned. It returns false if nothing was running.
func (p *Processor) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || !p.current.halt() {
		return false
	}
	p.emit(Event{Kind: EventState, RunID: p.current.id, Running: false, Time: time.Now()})
	return true
}

// Wait blocks until the current run's loop has exited or ctx is done.
func (p *Processor) Wait(ctx context.Context) error {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is active.
func (p *Processor) Running() bool {
	running, _ := p.active()
	return running
}

// RunID returns the id of the active run, or "" when stopped.
func (p *Processor) RunID() string {
	_, id := p.active()
	return id
}

// active reads the running flag and run id together.
func (p *Processor) active() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.stopped() {
		return false, ""
	}
	return true, p.current.id
}

// Events returns the channel sinks read count and state events from.
func (p *Processor) Events() <-chan Event {
	return p.events
}

// ResetCounts zeroes every count and announces the zeros.
func (p *Processor) ResetCounts() {
	p.session.ResetCounts()
	runID := p.RunID()
	now := time.Now()
	for _, r := range p.session.Regions() {
		p.emit(Event{Kind: EventCount, RunID: runID, RegionID: r.ID, Label: r.Label, Time: now})
	}
}

// Status is a point-in-time view for sinks.
type Status struct {
	Running   bool
	RunID     string
	LastCycle time.Time
	Regions   []RegionResult
}

// Status combines live counts and states with the last cycle's scores.
func (p *Processor) Status() Status {
	running, runID := p.active()
	st := Status{Running: running, RunID: runID, Regions: p.carryOver()}
	p.last.View(func(last Report) {
		st.LastCycle = last.Time
		byID := make(map[string]RegionResult, len(last.Regions))
		for _, r := range last.Regions {
			byID[r.ID] = r
		}
		for i := range st.Regions {
			prev, ok := byID[st.Regions[i].ID]
			if !ok || st.Regions[i].State == Unmonitored {
				continue
			}
			st.Regions[i].Score = prev.Score
			st.Regions[i].HashDistance = prev.HashDistance
			st.Regions[i].Err = prev.Err
		}
	})
	return st
}

// Session exposes the counters.
func (p *Processor) Session() *Session { return p.session }

// LastReport returns the most recent cycle report.
func (p *Processor) LastReport() Report { return p.last.Get() }

// emit sends without blocking; a full buffer drops the event.
func (p *Processor) emit(evt Event) {
	select {
	case p.events <- evt:
	default:
		trace.Logger(context.Background()).Warn("event dropped, sink too slow", "kind", evt.Kind, "region", evt.RegionID)
	}
}

func (p *Processor) loop(ctx context.Context, r *run, prev <-chan struct{}) {
	defer close(r.done)

	ctx = trace.WithRun(ctx, r.id)
	log := trace.Logger(ctx)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			p.shutdown(r)
			return
		}
	}

	p.session.ResetMatches()
	log.Info("detection started", "interval", p.interval, "threshold", p.threshold)

	for {
		if r.stopped() {
			log.Info("detection stopped")
			return
		}
		if ctx.Err() != nil {
			p.shutdown(r)
			return
		}

		p.RunCycle(ctx)

		wait := time.NewTimer(p.interval)
		select {
		case <-wait.C:
		case <-r.stop:
		case <-ctx.Done():
		}
		wait.Stop()
	}
}

// shutdown marks r stopped when the process context ends the loop.
func (p *Processor) shutdown(r *run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.halt() {
		trace.Logger(trace.WithRun(context.Background(), r.id)).Info("detection ended by shutdown")
		p.emit(Event{Kind: EventState, RunID: r.id, Running: false, Time: time.Now()})
	}
}

// RunCycle captures one frame and updates every monitored region.
func (p *Processor) RunCycle(ctx context.Context) Report {
	ctx, span := trace.StartSpan(ctx, "hook_cycle")
	defer span.End()
	log := trace.Logger(ctx)

	runID, _ := trace.RunFromContext(ctx)
	report := Report{RunID: runID, Time: time.Now()}

	frame, err := resilience.ExecuteWithResult(p.breaker, func() (image.Image, error) {
		return p.capturer.Capture(ctx)
	})
	if err != nil {
		span.SetError(err)
		report.Err = err.Error()
		if errors.Is(err, resilience.ErrOpen) {
			log.Debug("capture skipped", "reason", err)
		} else {
			log.Warn("capture failed", "error", err)
		}
		report.Regions = p.carryOver()
		p.last.Set(report)
		return report
	}

	dump := p.snapshots.Due()
	var crops map[string]image.Image
	if dump {
		crops = make(map[string]image.Image, len(p.session.Regions()))
	}

	for _, region := range p.session.Regions() {
		result := p.matchRegion(ctx, region, frame, crops)
		report.Regions = append(report.Regions, result)
	}

	if dump {
		if paths, err := p.snapshots.Save(report.Time, frame, crops); err != nil {
			log.Warn("debug dump failed", "error", err)
		} else {
			log.Debug("debug images written", "files", len(paths))
		}
	}

	p.last.Set(report)
	span.SetAttr("regions", len(report.Regions))
	log.Debug("cycle complete", "span", span)
	return report
}

func (p *Processor) matchRegion(ctx context.Context, region Region, frame image.Image, crops map[string]image.Image) RegionResult {
	log := trace.Logger(ctx).With("region", region.ID)
	res := RegionResult{ID: region.ID, Label: region.Label, HashDistance: -1}

	if err := p.matcher.Monitored(region.ID); err != nil {
		res.State = Unmonitored
		res.Count = p.session.Count(region.ID)
		res.Err = err.Error()
		return res
	}

	res.State = p.stateOf(region.ID)
	res.Count = p.session.Count(region.ID)

	crop, err := vision.Crop(frame, region.Bounds)
	if err != nil {
		log.Warn("region skipped", "error", err)
		res.Err = err.Error()
		return res
	}
	if crops != nil {
		crops[region.ID] = crop
	}

	score, err := p.matcher.Match(region.ID, crop)
	if err != nil {
		log.Warn("region skipped", "error", err)
		res.Err = err.Error()
		return res
	}

	matched := score.SSIM >= p.threshold
	count, incremented := p.session.Observe(region.ID, matched)
	res.Score = score.SSIM
	res.HashDistance = score.HashDistance
	res.Count = count
	res.State = Idle
	if matched {
		res.State = Matched
	}

	log.Debug("region scored", "ssim", score.SSIM, "hash_distance", score.HashDistance, "matched", matched)
	if incremented {
		runID, _ := trace.RunFromContext(ctx)
		log.Info("hook detected", "label", region.Label, "count", count, "ssim", score.SSIM)
		p.emit(Event{
			Kind:     EventCount,
			RunID:    runID,
			RegionID: region.ID,
			Label:    region.Label,
			Count:    count,
			Time:     time.Now(),
		})
	}
	return res
}

func (p *Processor) stateOf(id string) State {
	if p.session.Matched(id) {
		return Matched
	}
	return Idle
}

// carryOver reports region state unchanged for a cycle without a frame.
func (p *Processor) carryOver() []RegionResult {
	regions := p.session.Regions()
	out := make([]RegionResult, 0, len(regions))
	for _, r := range regions {
		res := RegionResult{ID: r.ID, Label: r.Label, Count: p.session.Count(r.ID), HashDistance: -1}
		if err := p.matcher.Monitored(r.ID); err != nil {
			res.State = Unmonitored
			res.Err = err.Error()
		} else {
			res.State = p.stateOf(r.ID)
		}
		out = append(out, res)
	}
	return out
}
