package feeder

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Stats describes what ParseCSVWithStats did with the data rows.
type Stats struct {
	Rows    int // rows turned into work items
	Blank   int // rows skipped because every field was empty
	Skipped int // rows the CSV reader rejected
}

// ParseCSV parses CSV text whose first row is a header naming at least the
// system, ruleid and gameid columns.
func ParseCSV(r io.Reader) ([]WorkItem, error) {
	items, _, err := ParseCSVWithStats(r)
	return items, err
}

// ParseCSVWithStats is ParseCSV that also reports skipped rows. Every
// physical line is one record, so a malformed row (for example an unterminated
// quote) is counted in Stats.Skipped and parsing resumes on the next line.
// Only an unreadable source or a header without the required columns fails.
func ParseCSVWithStats(r io.Reader) ([]WorkItem, Stats, error) {
	var stats Stats

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, unreadable(fmt.Errorf("read CSV: %w", err))
	}
	if !utf8.Valid(data) {
		return nil, stats, unreadable(errors.New("input is not valid UTF-8"))
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	lines := strings.Split(string(data), "\n")
	next := 0
	var header []string
	for ; next < len(lines) && header == nil; next++ {
		line := strings.TrimSuffix(lines[next], "\r")
		if line == "" {
			continue
		}
		header, err = parseLine(line)
		if err != nil {
			return nil, stats, unreadable(fmt.Errorf("read CSV header: %w", err))
		}
	}
	if header == nil {
		return nil, stats, unreadable(errors.New("CSV input is empty"))
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeColumn(name)
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	if col, missing := missingColumn(columns); missing {
		return nil, stats, &ParseError{Kind: KindMissingColumn, Column: col}
	}

	items := make([]WorkItem, 0)
	for _, raw := range lines[next:] {
		line := strings.TrimSuffix(raw, "\r")
		if line == "" {
			continue
		}
		row, err := parseLine(line)
		if err != nil {
			stats.Skipped++
			continue
		}
		if blankRow(row) {
			stats.Blank++
			continue
		}
		items = append(items, WorkItem{
			System: field(row, columns[ColumnSystem]),
			RuleID: field(row, columns[ColumnRuleID]),
			GameID: field(row, columns[ColumnGameID]),
		})
		stats.Rows++
	}

	return items, stats, nil
}

// parseLine decodes a single physical line. Quotes must be balanced within
// the line; a quoted field cannot continue onto the next one.
func parseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	row, err := reader.Read()
	if err != nil {
		return nil, err
	}
	return row, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
