package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
)

// Row maps declared column names to typed values (int64, float64, string).
type Row map[string]any

// ParseError reports a value that cannot be coerced to its declared type.
// The row it belongs to is skipped; the file carries on.
type ParseError struct {
	Field string
	Value string
	Type  schema.ColumnType
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("field %s: cannot parse %q as %s: %v", e.Field, e.Value, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Coerce converts one raw cell to the column's declared type. Empty cells
// become the type's zero value.
func Coerce(col schema.Column, raw string) (any, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return col.ZeroValue(), nil
	}

	switch col.Type {
	case schema.Integer:
		n, err := parseInteger(v)
		if err != nil {
			return nil, &ParseError{Field: col.Name, Value: Restore(raw), Type: col.Type, Err: err}
		}
		return n, nil
	case schema.Real:
		f, err := strconv.ParseFloat(cleanNumber(v), 64)
		if err != nil {
			return nil, &ParseError{Field: col.Name, Value: Restore(raw), Type: col.Type, Err: err}
		}
		return f, nil
	default:
		return Restore(v), nil
	}
}

// cleanNumber drops thousands separators (plain or protected) and a trailing
// percent sign: "1,439,323,776" -> "1439323776", "0.39 %" -> "0.39".
func cleanNumber(v string) string {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	v = strings.ReplaceAll(v, string(Sentinel), "")
	v = strings.ReplaceAll(v, ",", "")
	return strings.ReplaceAll(v, " ", "")
}

// maxInt64 is 2^63, the first float64 past the int64 range.
const maxInt64 = float64(1 << 63)

func parseInteger(v string) (int64, error) {
	v = cleanNumber(v)
	n, err := strconv.ParseInt(v, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	// Some feeds write counts as "1234.0".
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	f = math.Round(f)
	if f >= maxInt64 || f < -maxInt64 {
		return 0, fmt.Errorf("%s out of int64 range", v)
	}
	return int64(f), nil
}

// ParseRow coerces a record against a table declaration. Fields the table
// does not declare are returned in dropped and left out of the row; the
// first field that fails coercion fails the whole row.
func ParseRow(fields []Field, table *schema.Table) (row Row, dropped []string, err error) {
	row = make(Row, len(fields))
	for _, f := range fields {
		col, ok := table.Column(f.Name)
		if !ok {
			dropped = append(dropped, f.Name)
			continue
		}
		v, err := Coerce(col, f.Value)
		if err != nil {
			return nil, dropped, err
		}
		row[col.Name] = v
	}
	return row, dropped, nil
}

// ParseObject coerces a decoded JSON object against a table declaration, with
// the same whitelist rule as ParseRow. Nested arrays and objects are stored
// as JSON text when the column is declared text.
func ParseObject(obj map[string]any, table *schema.Table) (row Row, dropped []string, err error) {
	row = make(Row, len(obj))
	for key, raw := range obj {
		col, ok := table.Column(key)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		v, err := coerceJSON(col, raw)
		if err != nil {
			return nil, dropped, err
		}
		row[col.Name] = v
	}
	return row, dropped, nil
}

func coerceJSON(col schema.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return col.ZeroValue(), nil
	case string:
		return Coerce(col, v)
	case json.Number:
		return Coerce(col, v.String())
	case float64:
		return Coerce(col, strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		if v {
			return Coerce(col, "1")
		}
		return Coerce(col, "0")
	default:
		if col.Type != schema.Text {
			return nil, &ParseError{Field: col.Name, Value: fmt.Sprint(v), Type: col.Type, Err: fmt.Errorf("nested value")}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, &ParseError{Field: col.Name, Value: fmt.Sprint(v), Type: col.Type, Err: err}
		}
		return string(data), nil
	}
}
