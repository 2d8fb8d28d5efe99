package reconcile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Fatal ingestion errors. Row-level conditions never surface here; they
// live inside the run summary.
var (
	ErrMalformedInput      = errors.New("reconcile: malformed input")
	ErrInvalidPayloadShape = errors.New("reconcile: invalid payload shape")
)

type Kind string

const (
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
)

// ImportRow is one normalized input line. Immutable after ingestion.
type ImportRow struct {
	Line      int
	OwnerName string
	Tier      string
	LastName  string
	FirstName string
	Email     string
}

const (
	fieldOwnerName = "owner_name"
	fieldTier      = "tier"
	fieldLastName  = "last_name"
	fieldFirstName = "first_name"
	fieldEmail     = "email"
)

// headerAliases maps localized column spellings onto logical fields.
// Canonical names are matched first, case-sensitively; aliases only
// apply when no canonical name matched. First match wins.
var headerAliases = map[string][]string{
	fieldOwnerName: {"担当者", "担当", "担当者名"},
	fieldTier:      {"ランク", "ティア", "区分"},
	fieldLastName:  {"姓", "名字"},
	fieldFirstName: {"名"},
	fieldEmail:     {"メール", "メールアドレス", "Eメール"},
}

var canonicalFields = []string{fieldOwnerName, fieldTier, fieldLastName, fieldFirstName, fieldEmail}

// ParseRows turns a raw payload into ordered ImportRows. Any parse
// failure aborts the whole ingestion; no partial results.
func ParseRows(payload []byte, kind Kind) ([]ImportRow, error) {
	switch kind {
	case KindCSV:
		return parseCSVRows(payload)
	case KindJSON:
		return parseJSONRows(payload)
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %q", ErrInvalidPayloadShape, kind)
	}
}

func resolveHeaderField(cell string) (string, bool) {
	cell = strings.TrimSpace(cell)
	for _, f := range canonicalFields {
		if cell == f {
			return f, true
		}
	}
	for _, f := range canonicalFields {
		for _, alias := range headerAliases[f] {
			if cell == alias {
				return f, true
			}
		}
	}
	return "", false
}

func parseCSVRows(payload []byte) ([]ImportRow, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedInput)
	}

	header := records[0]
	fieldByCol := make(map[int]string, len(header))
	for i, cell := range header {
		if f, ok := resolveHeaderField(cell); ok {
			if _, taken := columnTaken(fieldByCol, f); !taken {
				fieldByCol[i] = f
			}
		}
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, record := range records[1:] {
		row := ImportRow{Line: i + 2}
		for col, f := range fieldByCol {
			if col >= len(record) {
				continue
			}
			setRowField(&row, f, strings.TrimSpace(record[col]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func columnTaken(fieldByCol map[int]string, field string) (int, bool) {
	for col, f := range fieldByCol {
		if f == field {
			return col, true
		}
	}
	return 0, false
}

func parseJSONRows(payload []byte) ([]ImportRow, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level JSON array required", ErrInvalidPayloadShape)
	}

	rows := make([]ImportRow, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: array element %d is not an object", ErrInvalidPayloadShape, i)
		}
		row := ImportRow{Line: i + 1}
		for key, raw := range obj {
			f, ok := resolveHeaderField(key)
			if !ok {
				continue
			}
			setRowField(&row, f, jsonScalarString(raw))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonScalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return ""
	}
}

func setRowField(row *ImportRow, field string, value string) {
	switch field {
	case fieldOwnerName:
		row.OwnerName = value
	case fieldTier:
		row.Tier = value
	case fieldLastName:
		row.LastName = value
	case fieldFirstName:
		row.FirstName = value
	case fieldEmail:
		row.Email = value
	}
}
