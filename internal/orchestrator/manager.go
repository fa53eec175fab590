package orchestrator

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/hookwatch/internal/config"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator/hook"
	"github.com/GriffinCanCode/hookwatch/internal/resilience"
	"github.com/GriffinCanCode/hookwatch/internal/screen"
	"github.com/GriffinCanCode/hookwatch/internal/snapshot"
	"github.com/GriffinCanCode/hookwatch/internal/templates"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
)

// Event re-exported for sinks
type Event = hook.Event

// Status re-exported for sinks
type Status = hook.Status

// Manager owns the detector and its collaborators.
type Manager struct {
	proc     *hook.Processor
	capturer screen.Capturer

	mu     sync.RWMutex
	ctx    context.Context
	subs   map[int]chan Event
	nextID int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds the detector from configuration: capture source, templates,
// debug writer and capture breaker.
func New(cfg *config.Config) (*Manager, error) {
	var capturer screen.Capturer
	if cfg.CaptureReplayDir != "" {
		replay, err := screen.NewReplay(cfg.CaptureReplayDir)
		if err != nil {
			return nil, err
		}
		capturer = replay
	} else {
		capturer = screen.New(cfg.CaptureDisplay)
	}

	regions := hook.RegionsFromConfig(cfg.Regions)
	ids := make([]string, 0, len(regions))
	for _, r := range regions {
		ids = append(ids, r.ID)
	}
	store := templates.Load(cfg.TemplateDir, ids)

	snaps, err := snapshot.New(cfg.DebugDir, cfg.DebugEvery)
	if err != nil {
		capturer.Close()
		return nil, err
	}

	proc := hook.NewProcessor(capturer, hook.NewTemplateMatcher(store), regions, hook.Options{
		Interval:    cfg.CaptureInterval,
		Threshold:   cfg.SimilarityThreshold,
		EventBuffer: cfg.EventBuffer,
		Breaker:     resilience.New(resilience.CaptureConfig(cfg.BreakerThreshold, cfg.BreakerReset)),
		Snapshots:   snaps,
	})

	trace.Logger(context.Background()).Info("detector ready",
		"regions", len(regions), "templates", store.Len(), "template_dir", cfg.TemplateDir)
	return NewWithProcessor(proc, capturer), nil
}

// NewWithProcessor wraps an already built processor.
func NewWithProcessor(proc *hook.Processor, capturer screen.Capturer) *Manager {
	return &Manager{
		proc:     proc,
		capturer: capturer,
		ctx:      context.Background(),
		subs:     make(map[int]chan Event),
		stopCh:   make(chan struct{}),
	}
}

// Start begins event dispatch. Detection runs started later live until ctx
// is cancelled or they are stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	go m.dispatch(ctx)
	return nil
}

// Stop ends detection, releases the capturer and closes all subscriptions.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.proc.Stop()
		close(m.stopCh)
		if m.capturer != nil {
			m.capturer.Close()
		}

		m.mu.Lock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	})
}

func (m *Manager) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case evt := <-m.proc.Events():
			m.mu.RLock()
			for _, ch := range m.subs {
				select {
				case ch <- evt:
				default:
				}
			}
			m.mu.RUnlock()
		}
	}
}

// Subscribe returns a channel of detector events and a cancel func.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, SubscriberBuffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

// StartDetection starts a run; false if one is already active.
func (m *Manager) StartDetection() bool {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	started := m.proc.Start(ctx)
	trace.Logger(ctx).Info("start requested", "started", started)
	return started
}

// StopDetection stops the active run; false if none is active.
func (m *Manager) StopDetection() bool {
	stopped := m.proc.Stop()
	trace.Logger(context.Background()).Info("stop requested", "stopped", stopped)
	return stopped
}

// ResetCounts zeroes all hook counts.
func (m *Manager) ResetCounts() {
	m.proc.ResetCounts()
	trace.Logger(context.Background()).Info("counts reset")
}

// Status returns the detector status.
func (m *Manager) Status() Status {
	return m.proc.Status()
}

// Running reports whether detection is active.
func (m *Manager) Running() bool {
	return m.proc.Running()
}
