// Package main provides the ubridge-monitor TUI: a read-only,
// opt-in-only client for the non-normative worker-pool debug snapshot
// (SPEC_FULL.md §12), grounded on the teacher's cli/tui inspect model.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/sidbridge/ubridge/config"
	"github.com/sidbridge/ubridge/monitor"
)

func main() {
	app := &cli.App{
		Name:  "ubridge-monitor",
		Usage: "live view of the ubridge worker pool (read-only)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: config.DefaultMonitorSocket},
			&cli.DurationFlag{Name: "refresh", Value: time.Second},
		},
		Action: func(c *cli.Context) error {
			m := monitor.NewModel(c.String("socket"), c.Duration("refresh"))
			_, err := tea.NewProgram(m).Run()
			return err
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
