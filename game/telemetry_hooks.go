package game

import (
	"log/slog"

	"github.com/pthm-cable/slime/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	mr, fr := g.collector.Flush(g.tick, g.sim.Field(), g.metrics, g.sched.Dropped())
	perfStats := g.perf.Stats()

	// Log stats if enabled (console output)
	if g.logStats {
		slog.Info("stats", "field", fr, "metrics", g.metrics)
		perfStats.LogStats()
	}

	// Write to CSV if output manager is enabled
	if g.output != nil {
		if err := g.output.WriteMetrics(mr); err != nil {
			slog.Error("failed to write metrics", "error", err)
		}
		if err := g.output.WriteField(fr); err != nil {
			slog.Error("failed to write field stats", "error", err)
		}
		if err := g.output.WritePerf(perfStats, g.tick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	// Check for bookmarks
	for _, bm := range g.bookmarks.Check(fr) {
		if g.logStats {
			bm.LogBookmark()
		}

		if err := g.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}

		// Save snapshot on bookmark
		if g.snapshotDir != "" {
			g.saveSnapshot(&bm)
		}
	}
}

// saveSnapshot creates and saves a snapshot to disk.
func (g *Game) saveSnapshot(bookmark *telemetry.Bookmark) {
	path, err := telemetry.SaveSnapshot(g.createSnapshot(bookmark), g.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "tick", g.tick)
}

// createSnapshot builds a snapshot from the committed state.
func (g *Game) createSnapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	view := g.sim.Field()
	snapshot := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		RNGSeed:  g.rngSeed,
		Width:    view.Width(),
		Height:   view.Height(),
		Tick:     g.tick,
		Field:    view.Snapshot(),
		Bookmark: bookmark,
	}

	agents := g.sim.Agents()
	snapshot.Agents = make([]telemetry.AgentState, len(agents))
	for i, a := range agents {
		snapshot.Agents[i] = telemetry.AgentState{X: a.X, Y: a.Y, Heading: a.Heading}
	}

	return snapshot
}
