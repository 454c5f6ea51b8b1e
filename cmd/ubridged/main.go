// Package main provides the ubridged daemon entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sidbridge/ubridge/config"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/monitor"
	"github.com/sidbridge/ubridge/resource"
	"github.com/sidbridge/ubridge/supervisor"
)

var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ubridged",
		Usage:          "device-identification daemon",
		Version:        commit,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config file"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New()
	root, err := resource.Create(nil, supervisor.ListenerType, 0, "ubridged", supervisor.ListenerKickstart{
		SocketName:  cfg.SocketPath,
		WorkerPath:  cfg.WorkerPath,
		IdleTimeout: cfg.IdleTimeout.Duration,
		Log:         logger,
	})
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}
	defer resource.Destroy(root)

	listenerState, _ := resource.GetData[*supervisor.ListenerState](root)
	go func() {
		err := monitor.Serve(cfg.MonitorSocket, func() monitor.Snapshot {
			entries := listenerState.Snapshot()
			snap := monitor.Snapshot{Workers: make([]monitor.WorkerSnapshot, len(entries))}
			for i, e := range entries {
				snap.Workers[i] = monitor.WorkerSnapshot{ID: e.ID, PID: e.PID, State: e.State}
			}
			return snap
		})
		if err != nil {
			logger.Error("monitor server stopped", map[string]any{"error": err.Error()})
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if _, err := resource.RunEventLoop(root, ctx); err != nil {
		return fmt.Errorf("run event loop: %w", err)
	}
	return nil
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
