// hookwatch-tui - terminal dashboard for local hook detection
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/GriffinCanCode/hookwatch/internal/config"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/tui"
)

func main() {
	logPath := flag.String("log", "", "append logs to this file (the terminal is owned by the dashboard)")
	mute := flag.Bool("mute", false, "disable the hook chime")
	autostart := flag.Bool("start", false, "begin detection immediately")
	flag.Parse()

	if err := run(*logPath, *mute, *autostart); err != nil {
		fmt.Fprintln(os.Stderr, "hookwatch-tui:", err)
		os.Exit(1)
	}
}

func run(logPath string, mute, autostart bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mgr, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Stop()

	var chime *tui.Chime
	if !mute {
		if chime, err = tui.NewChime(); err != nil {
			slog.Warn("audio unavailable, chime disabled", "error", err)
			chime = nil
		}
		defer chime.Close()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.HideCursor()

	if autostart {
		mgr.StartDetection()
	}
	return tui.New(screen, mgr, chime).Run(ctx)
}
