// Package cli parses the slime command line, sets up logging and hands the
// loaded config to one of the run modes.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
)

// Mode runs the simulation until it finishes or fails.
type Mode func(cfg *config.Config, opts game.Options) error

// Modes are the run modes. Window is the default.
type Modes struct {
	Window   Mode
	Term     Mode
	Headless Mode
	Serve    Mode
}

// Run parses args and runs the selected mode. It returns the process exit
// code: 0 on success, 1 on failure, 2 on bad flags.
func Run(args []string, stdout io.Writer, modes Modes) int {
	fs := flag.NewFlagSet("slime", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := fs.Bool("headless", false, "Run without graphics")
	term := fs.Bool("term", false, "Draw the field in the terminal")
	serve := fs.Bool("serve", false, "Stream the field over websockets")
	addr := fs.String("addr", "", "Listen address for -serve (empty = use config)")
	logStats := fs.Bool("log-stats", false, "Output stats via slog")
	statsWindow := fs.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := fs.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := fs.String("snapshot-dir", "", "Directory for snapshot files saved on bookmarks")
	seed := fs.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := fs.Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	// The terminal viewer owns stdout, so its logs go to a file
	logOut := stdout
	if *term {
		f, err := OpenTermLog(*outputDir)
		if err != nil {
			slog.Error("failed to open log file", "error", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, nil)))

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()
	if *addr != "" {
		cfg.Stream.Addr = *addr
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	opts := game.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		SnapshotDir:    *snapshotDir,
		MaxTicks:       *maxTicks,
	}

	slog.Info("starting simulation",
		"seed", rngSeed,
		"field_w", cfg.Derived.FieldW,
		"field_h", cfg.Derived.FieldH,
		"agents", cfg.Simulation.AgentCount,
		"max_ticks", *maxTicks,
	)

	var mode Mode
	switch {
	case *serve:
		mode = modes.Serve
	case *headless:
		mode = modes.Headless
	case *term:
		mode = modes.Term
	default:
		mode = modes.Window
	}
	if mode == nil {
		slog.Error("run mode not available")
		return 1
	}
	if err := mode(cfg, opts); err != nil {
		slog.Error("simulation failed", "error", err)
		return 1
	}
	return 0
}

// OpenTermLog opens slime.log in outputDir (or the working directory) for
// appending.
func OpenTermLog(outputDir string) (*os.File, error) {
	dir := outputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, "slime.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
