// Package main provides the ubridge-worker child-process entrypoint,
// spawned by ubridged via os/exec with its comms socket inherited as
// fd 3 (the Go substitute for a forked child inheriting one half of a
// socketpair()).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidbridge/ubridge/config"
	"github.com/sidbridge/ubridge/log"
	"github.com/sidbridge/ubridge/resource"
	"github.com/sidbridge/ubridge/worker"
)

// commsFD is the well-known inherited fd index: index 0 of the
// parent's ExtraFiles always lands at fd 3 (stdin=0, stdout=1,
// stderr=2).
const commsFD = 3

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ubridge-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.New()
	cfg := config.Default()

	root, err := resource.Create(nil, worker.Type, 0, "worker", worker.Kickstart{
		CommsFD:        commsFD,
		KVCapacityHint: cfg.KVCapacityHint,
		Log:            logger,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	defer resource.Destroy(root)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	_, err = resource.RunEventLoop(root, ctx)
	return err
}
