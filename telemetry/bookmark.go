package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkNetworkFormed BookmarkType = "network_formed"
	BookmarkPeakSurge     BookmarkType = "peak_surge"
	BookmarkMassCollapse  BookmarkType = "mass_collapse"
	BookmarkStablePattern BookmarkType = "stable_pattern"
)

// Thresholds for bookmark detection.
const (
	networkContrast   = 0.5  // (p90-p10)/peak a formed network reaches
	networkCoverage   = 0.1  // minimum covered fraction for a network
	surgeFactor       = 2.0  // peak over rolling average peak
	collapseDrop      = 0.30 // fractional drop in total mass from recent peak
	stableCV2         = 0.0025
	stableWindows     = 5
	stableHistorySpan = 4
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `json:"type" csv:"type"`
	Tick        uint64       `json:"tick" csv:"tick"`
	Description string       `json:"description" csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the field's evolution.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []FieldRecord
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	networkSeen        bool
	recentMassPeak     float64 // peak total mass since the last collapse
	stableWindowsCount int     // consecutive windows with steady total mass
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < stableHistorySpan+1 {
		historySize = stableHistorySpan + 1
	}
	return &BookmarkDetector{
		history:     make([]FieldRecord, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest window and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(rec FieldRecord) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkNetworkFormed(rec); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkPeakSurge(rec); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkMassCollapse(rec); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(rec)

	// Stability looks at the history including this window
	if b := bd.checkStablePattern(rec); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if rec.Total > bd.recentMassPeak {
		bd.recentMassPeak = rec.Total
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(rec FieldRecord) {
	bd.history[bd.historyIdx] = rec
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns resident windows, oldest first.
func (bd *BookmarkDetector) getHistory() []FieldRecord {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	ordered := make([]FieldRecord, 0, bd.historySize)
	ordered = append(ordered, bd.history[bd.historyIdx:]...)
	return append(ordered, bd.history[:bd.historyIdx]...)
}

func (bd *BookmarkDetector) checkNetworkFormed(rec FieldRecord) *Bookmark {
	if bd.networkSeen || rec.Peak <= 0 {
		return nil
	}
	contrast := (rec.P90 - rec.P10) / rec.Peak
	if contrast < networkContrast || rec.Coverage < networkCoverage {
		return nil
	}
	bd.networkSeen = true
	return &Bookmark{
		Type:        BookmarkNetworkFormed,
		Tick:        rec.WindowEnd,
		Description: fmt.Sprintf("Network formed: contrast %.2f over %.0f%% of the field", contrast, rec.Coverage*100),
	}
}

func (bd *BookmarkDetector) checkPeakSurge(rec FieldRecord) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.Peak
	}
	avgPeak := total / float64(len(history))
	if avgPeak <= 0 {
		return nil
	}

	if rec.Peak > avgPeak*surgeFactor {
		return &Bookmark{
			Type:        BookmarkPeakSurge,
			Tick:        rec.WindowEnd,
			Description: fmt.Sprintf("Peak %.2f is %.1fx average (%.2f)", rec.Peak, rec.Peak/avgPeak, avgPeak),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkMassCollapse(rec FieldRecord) *Bookmark {
	if bd.recentMassPeak <= 0 {
		return nil
	}

	drop := 1 - rec.Total/bd.recentMassPeak
	if drop <= collapseDrop {
		return nil
	}

	// Reset peak after collapse
	oldPeak := bd.recentMassPeak
	bd.recentMassPeak = rec.Total

	return &Bookmark{
		Type:        BookmarkMassCollapse,
		Tick:        rec.WindowEnd,
		Description: fmt.Sprintf("Trail mass fell %.0f%% from %.1f to %.1f", drop*100, oldPeak, rec.Total),
	}
}

func (bd *BookmarkDetector) checkStablePattern(rec FieldRecord) *Bookmark {
	history := bd.getHistory()
	if len(history) < stableHistorySpan || rec.Total <= 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	recent := history[len(history)-stableHistorySpan:]
	var sum float64
	for _, h := range recent {
		sum += h.Total
	}
	mean := sum / stableHistorySpan

	var variance float64
	for _, h := range recent {
		d := h.Total - mean
		variance += d * d
	}
	variance /= stableHistorySpan

	// CV^2 < 0.0025 means CV < 5%
	if mean > 0 && variance/(mean*mean) < stableCV2 {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == stableWindows { // trigger exactly once per stable run
		return &Bookmark{
			Type:        BookmarkStablePattern,
			Tick:        rec.WindowEnd,
			Description: fmt.Sprintf("Trail mass steady at %.1f over %d+ windows", rec.Total, stableWindows),
		}
	}
	return nil
}
