// Package feeder turns tabular input into the ordered list of work items a
// trigger run dispatches.
package feeder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkItem is one (system, ruleId, gameId) tuple to be triggered.
type WorkItem struct {
	System string `json:"system"`
	RuleID string `json:"ruleId"`
	GameID string `json:"gameId"`
}

// Required column names. Header matching is case-insensitive.
const (
	ColumnSystem = "system"
	ColumnRuleID = "ruleid"
	ColumnGameID = "gameid"
)

var requiredColumns = []string{ColumnSystem, ColumnRuleID, ColumnGameID}

// Format selects the input decoder.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatAuto, "auto":
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("input format must be 'csv' or 'json', got %q", value)
	}
}

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	KindUnreadable ErrorKind = iota + 1
	KindMissingColumn
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreadable:
		return "unreadable"
	case KindMissingColumn:
		return "missing column"
	default:
		return "unknown"
	}
}

// ParseError reports why an input could not be turned into work items.
type ParseError struct {
	Kind   ErrorKind
	Column string // set for KindMissingColumn
	Err    error  // set for KindUnreadable
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindMissingColumn:
		return fmt.Sprintf("parse input: missing required column %q", e.Column)
	default:
		if e.Err != nil {
			return fmt.Sprintf("parse input: unreadable: %v", e.Err)
		}
		return "parse input: unreadable"
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func unreadable(err error) *ParseError {
	return &ParseError{Kind: KindUnreadable, Err: err}
}

// FileSource loads work items from a file on disk. The file is read once,
// fully, before decoding.
type FileSource struct {
	Path   string
	Format Format
	// OnSkipped, when set, is called after a CSV parse that dropped rows.
	OnSkipped func(Stats)
}

// Load reads and parses the file.
func (s FileSource) Load() ([]WorkItem, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, unreadable(err)
	}
	if s.resolveFormat() == FormatJSON {
		return ParseJSON(bytes.NewReader(data))
	}
	items, stats, err := ParseCSVWithStats(bytes.NewReader(data))
	if err == nil && stats.Skipped > 0 && s.OnSkipped != nil {
		s.OnSkipped(stats)
	}
	return items, err
}

func (s FileSource) resolveFormat() Format {
	if s.Format != FormatAuto {
		return s.Format
	}
	if strings.EqualFold(filepath.Ext(s.Path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// missingColumn returns the first required column not present in names.
func missingColumn(names map[string]int) (string, bool) {
	for _, col := range requiredColumns {
		if _, ok := names[col]; !ok {
			return col, true
		}
	}
	return "", false
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
