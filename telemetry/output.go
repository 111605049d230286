package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/slime/config"
)

// csvFile is an output file that writes its header with the first record.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

// OutputManager handles structured run output with CSV logging.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	dir       string
	metrics   csvFile
	perf      csvFile
	field     csvFile
	bookmarks csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	files := []struct {
		name string
		dst  *csvFile
	}{
		{"metrics.csv", &om.metrics},
		{"perf.csv", &om.perf},
		{"field.csv", &om.field},
		{"bookmarks.csv", &om.bookmarks},
	}
	for _, file := range files {
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", file.name, err)
		}
		file.dst.f = f
	}

	return om, nil
}

// writeRecords appends records to out, emitting the header on first use.
func writeRecords[T any](out *csvFile, records []T) error {
	if !out.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, out.f); err != nil {
			return err
		}
		out.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	return gocsv.MarshalWithoutHeaders(records, out.f)
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteMetrics writes a window record to metrics.csv.
func (om *OutputManager) WriteMetrics(r MetricsRecord) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(&om.metrics, []MetricsRecord{r}); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd uint64) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(&om.perf, []PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteField writes a field distribution record to field.csv.
func (om *OutputManager) WriteField(r FieldRecord) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(&om.field, []FieldRecord{r}); err != nil {
		return fmt.Errorf("writing field: %w", err)
	}
	return nil
}

// WriteBookmark writes a bookmark to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(&om.bookmarks, []Bookmark{b}); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, out := range []*csvFile{&om.metrics, &om.perf, &om.field, &om.bookmarks} {
		if out.f == nil {
			continue
		}
		if err := out.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		out.f = nil
	}
	return firstErr
}
