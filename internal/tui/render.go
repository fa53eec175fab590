package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator/hook"
)

type kind int

const (
	plain kind = iota
	title
	active
	inactive
	flashed
	muted
	control
	disabled
)

var styles = map[kind]tcell.Style{
	plain:    tcell.StyleDefault,
	title:    tcell.StyleDefault.Bold(true),
	active:   tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true),
	inactive: tcell.StyleDefault.Foreground(tcell.ColorRed),
	flashed:  tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
	muted:    tcell.StyleDefault.Foreground(tcell.ColorGray),
	control:  tcell.StyleDefault.Foreground(tcell.ColorWhite).Reverse(true),
	disabled: tcell.StyleDefault.Foreground(tcell.ColorGray).Dim(true),
}

type segment struct {
	text string
	kind kind
}

type row []segment

func (r row) String() string {
	var b strings.Builder
	for _, seg := range r {
		b.WriteString(seg.text)
	}
	return b.String()
}

// render lays out the dashboard for one status snapshot.
func render(st orchestrator.Status, flash map[string]time.Time, now time.Time, notice string) []row {
	header := row{{" hookwatch  ", title}}
	if st.Running {
		header = append(header, segment{"RUNNING", active})
		if len(st.RunID) >= 8 {
			header = append(header, segment{"  run " + st.RunID[:8], muted})
		}
	} else {
		header = append(header, segment{"STOPPED", inactive})
	}

	rows := []row{header, {}}
	for _, r := range st.Regions {
		rows = append(rows, regionRow(r, flash, now))
	}
	rows = append(rows, row{}, controls(st.Running))
	if notice != "" {
		rows = append(rows, row{{" " + notice, muted}})
	}
	return rows
}

func regionRow(r hook.RegionResult, flash map[string]time.Time, now time.Time) row {
	countKind := plain
	if at, ok := flash[r.ID]; ok && now.Sub(at) < FlashDuration {
		countKind = flashed
	}
	out := row{
		{fmt.Sprintf(" %-14s", r.Label), plain},
		{fmt.Sprintf("hooks %3d", r.Count), countKind},
		{fmt.Sprintf("   %-12s", r.State), stateKind(r.State)},
	}
	switch {
	case r.State == hook.Unmonitored:
		out = append(out, segment{r.Err, muted})
	case r.Err != "":
		out = append(out, segment{"skipped: " + r.Err, muted})
	default:
		out = append(out, segment{fmt.Sprintf("ssim %.3f", r.Score), muted})
	}
	return out
}

func stateKind(s hook.State) kind {
	switch s {
	case hook.Matched:
		return active
	case hook.Unmonitored:
		return muted
	default:
		return plain
	}
}

// controls dims whichever of start/stop does not apply.
func controls(running bool) row {
	start, stop := control, disabled
	if running {
		start, stop = disabled, control
	}
	return row{
		{" ", plain},
		{" s ", start}, {" start  ", plain},
		{" x ", stop}, {" stop  ", plain},
		{" r ", control}, {" reset  ", plain},
		{" q ", control}, {" quit", plain},
	}
}

func draw(screen tcell.Screen, rows []row) {
	screen.Clear()
	width, height := screen.Size()
	for y, r := range rows {
		if y >= height {
			break
		}
		x := 0
		for _, seg := range r {
			style := styles[seg.kind]
			for _, ch := range seg.text {
				if x >= width {
					break
				}
				screen.SetContent(x, y, ch, nil, style)
				x++
			}
		}
	}
	screen.Show()
}
