package grid

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RepairRule is one textual fix applied to a payload that failed the strict
// parse.
type RepairRule struct {
	Name  string
	Apply func(string) string
}

var nanToken = regexp.MustCompile(`(?i)\bnan\b`)

// RepairRules is the bounded set of repairs tried, in order, before the
// second parse.
var RepairRules = []RepairRule{
	{
		Name: "nan-to-null",
		Apply: func(s string) string {
			return nanToken.ReplaceAllString(s, "null")
		},
	},
	{
		Name: "single-to-double-quotes",
		Apply: func(s string) string {
			return strings.ReplaceAll(s, "'", `"`)
		},
	},
}

// Decoded is the result of DecodeRecords.
type Decoded struct {
	Records []RawRecord
	// Repaired is true when the strict parse failed and the repaired text
	// was used.
	Repaired bool
	// Skipped counts entries dropped for lacking a parsable time of day.
	Skipped int
}

// DecodeRecords parses a day payload. It tries the verbatim text first and
// only then the text with every RepairRule applied.
func DecodeRecords(text string) (Decoded, error) {
	rows, err := parseRows(text)
	repaired := false
	if err != nil {
		fixed := text
		for _, rule := range RepairRules {
			fixed = rule.Apply(fixed)
		}
		rows, err = parseRows(fixed)
		if err != nil {
			return Decoded{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		repaired = true
	}

	out := Decoded{Repaired: repaired, Records: make([]RawRecord, 0, len(rows))}
	for _, row := range rows {
		rec, ok := toRecord(row)
		if !ok {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if len(out.Records) == 0 {
		return out, ErrEmptyPayload
	}
	return out, nil
}

func parseRows(text string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func toRecord(row map[string]any) (RawRecord, bool) {
	if row == nil {
		return RawRecord{}, false
	}
	t, ok := row["time"].(string)
	if !ok {
		return RawRecord{}, false
	}
	if _, err := ParseMinutes(t); err != nil {
		return RawRecord{}, false
	}

	rec := RawRecord{Time: t, Values: make(Values, len(AllFields))}
	for _, f := range AllFields {
		if v, ok := toNumber(row[string(f)]); ok {
			rec.Values[f] = v
		}
	}
	return rec, true
}

// toNumber accepts JSON numbers and numeric strings. null, NaN and Inf are
// missing values.
func toNumber(v any) (float64, bool) {
	var x float64
	switch n := v.(type) {
	case float64:
		x = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		x = parsed
	default:
		return 0, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}
