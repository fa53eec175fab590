package tui

import (
	"context"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator/hook"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
)

// Controller is the detector surface the dashboard drives.
type Controller interface {
	StartDetection() bool
	StopDetection() bool
	ResetCounts()
	Status() orchestrator.Status
	Subscribe() (<-chan orchestrator.Event, func())
}

// Action is a user command decoded from a key.
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionStop
	ActionReset
	ActionQuit
)

func keyAction(key tcell.Key, r rune) Action {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit
	case tcell.KeyRune:
		switch unicode.ToLower(r) {
		case 's':
			return ActionStart
		case 'x':
			return ActionStop
		case 'r':
			return ActionReset
		case 'q':
			return ActionQuit
		}
	}
	return ActionNone
}

// Dashboard is a tcell presentation sink. All fields are owned by the Run
// goroutine.
type Dashboard struct {
	screen tcell.Screen
	ctrl   Controller
	chime  *Chime
	now    func() time.Time

	flash  map[string]time.Time
	notice string
}

// New creates a dashboard on an initialised screen. chime may be nil.
func New(screen tcell.Screen, ctrl Controller, chime *Chime) *Dashboard {
	return &Dashboard{
		screen: screen,
		ctrl:   ctrl,
		chime:  chime,
		now:    time.Now,
		flash:  make(map[string]time.Time),
	}
}

// Run draws and handles input until the user quits or ctx ends.
func (d *Dashboard) Run(ctx context.Context) error {
	events, unsubscribe := d.ctrl.Subscribe()
	defer unsubscribe()

	input := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := d.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case input <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	d.redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-input:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !d.apply(keyAction(ev.Key(), ev.Rune())) {
					return nil
				}
			case *tcell.EventResize:
				d.screen.Sync()
			}
			d.redraw()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			d.observe(evt)
			d.redraw()
		case <-ticker.C:
			d.redraw()
		}
	}
}

// apply runs a user action; false means quit.
func (d *Dashboard) apply(a Action) bool {
	log := trace.Logger(context.Background())
	switch a {
	case ActionQuit:
		return false
	case ActionStart:
		if d.ctrl.StartDetection() {
			d.notice = "detection started"
		} else {
			d.notice = "already running"
		}
	case ActionStop:
		if d.ctrl.StopDetection() {
			d.notice = "detection stopped"
		} else {
			d.notice = "not running"
		}
	case ActionReset:
		d.ctrl.ResetCounts()
		clear(d.flash)
		d.notice = "counts reset"
	}
	if a != ActionNone {
		log.Debug("dashboard action", "action", a, "notice", d.notice)
	}
	return true
}

// observe reacts to detector events between redraws.
func (d *Dashboard) observe(evt orchestrator.Event) {
	switch evt.Kind {
	case hook.EventCount:
		if evt.Count == 0 {
			return
		}
		d.flash[evt.RegionID] = d.now()
		d.notice = evt.Label + " hooked"
		d.chime.Play()
	case hook.EventState:
		if !evt.Running {
			d.notice = "detection stopped"
		}
	}
}

func (d *Dashboard) rows() []row {
	return render(d.ctrl.Status(), d.flash, d.now(), d.notice)
}

func (d *Dashboard) redraw() {
	draw(d.screen, d.rows())
}
