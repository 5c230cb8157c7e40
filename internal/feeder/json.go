package feeder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ParseJSON parses a JSON array of objects. Keys are matched against the
// required columns case-insensitively, so "ruleId" and "ruleid" are the same
// field. Non-string values are stringified.
func ParseJSON(r io.Reader) ([]WorkItem, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var rawRecords []map[string]interface{}
	if err := decoder.Decode(&rawRecords); err != nil {
		if err == io.EOF {
			return nil, unreadable(fmt.Errorf("JSON input is empty"))
		}
		return nil, unreadable(fmt.Errorf("decode JSON: %w", err))
	}

	if len(rawRecords) == 0 {
		return []WorkItem{}, nil
	}

	seen := map[string]int{}
	normalized := make([]map[string]string, 0, len(rawRecords))
	for _, raw := range rawRecords {
		record := make(map[string]string, len(raw))
		for key, value := range raw {
			name := normalizeColumn(key)
			seen[name] = 0
			if _, dup := record[name]; dup {
				continue
			}
			record[name] = strings.TrimSpace(stringify(value))
		}
		normalized = append(normalized, record)
	}
	if col, missing := missingColumn(seen); missing {
		return nil, &ParseError{Kind: KindMissingColumn, Column: col}
	}

	items := make([]WorkItem, 0, len(normalized))
	for _, record := range normalized {
		item := WorkItem{
			System: record[ColumnSystem],
			RuleID: record[ColumnRuleID],
			GameID: record[ColumnGameID],
		}
		if item == (WorkItem{}) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
