// Package runlog persists the append-only record of a trigger run: a
// timestamped narrative text file and a structured CSV file, both named after
// the run's start time.
package runlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrSealed is returned by writes after Close.
var ErrSealed = errors.New("run log is sealed")

// StructuredHeader is the first row of every structured sink.
var StructuredHeader = []string{"gameid", "ruleid", "system", "status"}

const (
	filePrefix    = "trigger-log-"
	lineTimestamp = "2006-01-02T15:04:05.000Z07:00"
)

// Row is one structured record.
type Row struct {
	GameID string
	RuleID string
	System string
	Status string
}

// Paths locates the two sinks of a run.
type Paths struct {
	Dir        string
	Narrative  string
	Structured string
}

// Stamp renders start as an ISO-8601 UTC timestamp safe for file names,
// e.g. 2026-10-19T08-30-00-123Z.
func Stamp(start time.Time) string {
	iso := start.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// RunLog holds the open sinks of one run. Every write goes straight to the
// file; nothing is buffered between events.
type RunLog struct {
	mu         sync.Mutex
	paths      Paths
	narrative  *os.File
	structured *os.File
	rows       *csv.Writer
	now        func() time.Time
	sealed     bool
}

// Open creates fresh sinks for a run started at start and writes the
// structured header. It fails rather than append to existing files.
func Open(dir string, start time.Time) (*RunLog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	base := filePrefix + Stamp(start)
	paths := Paths{
		Dir:        dir,
		Narrative:  filepath.Join(dir, base+".txt"),
		Structured: filepath.Join(dir, base+".csv"),
	}

	narrative, err := createSink(paths.Narrative)
	if err != nil {
		return nil, err
	}
	structured, err := createSink(paths.Structured)
	if err != nil {
		_ = narrative.Close()
		return nil, err
	}

	l := &RunLog{
		paths:      paths,
		narrative:  narrative,
		structured: structured,
		rows:       csv.NewWriter(structured),
		now:        time.Now,
	}
	if err := l.writeRecord(StructuredHeader); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return l, nil
}

func createSink(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create sink: %w", err)
	}
	return f, nil
}

// Paths returns where the sinks live.
func (l *RunLog) Paths() Paths {
	return l.paths
}

// lineEscaper keeps every narrative event on a single physical line.
var lineEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`)

// WriteLine appends one timestamped narrative line. Embedded line breaks
// are written as \n and \r escapes.
func (l *RunLog) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return ErrSealed
	}
	_, err := fmt.Fprintf(l.narrative, "%s %s\n", l.now().Format(lineTimestamp), lineEscaper.Replace(line))
	return err
}

// WriteRow appends one structured row.
func (l *RunLog) WriteRow(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return ErrSealed
	}
	return l.writeRecord([]string{row.GameID, row.RuleID, row.System, row.Status})
}

func (l *RunLog) writeRecord(record []string) error {
	if err := l.rows.Write(record); err != nil {
		return err
	}
	l.rows.Flush()
	return l.rows.Error()
}

// Close seals the run log. Later writes return ErrSealed.
func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return nil
	}
	l.sealed = true
	return errors.Join(l.narrative.Close(), l.structured.Close())
}
