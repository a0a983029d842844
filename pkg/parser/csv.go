// Package parser turns one raw source file into typed rows ready for
// insertion. Column types come from the schema registry, never from the
// data: an empty integer cell becomes 0 because the column is declared
// integer, not because the cell looks numeric.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/normalize"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Sentinel stands in for commas found inside quoted values while a line is
// split on its real separators. The unit separator never occurs in the
// upstream text feeds.
const Sentinel = '\x1f'

// Field is one (name, value) pair of a raw record, in source order.
type Field struct {
	Name  string
	Value string
}

// ProtectQuotedCommas replaces every comma that sits inside a double-quoted
// section with Sentinel, so that the line can be split on plain commas.
func ProtectQuotedCommas(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && inQuotes:
			r = Sentinel
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SplitLine splits one CSV line in two passes: quoted commas are protected,
// quotes are stripped, then the line is split on the true separator. The
// returned values still carry Sentinel where a quoted comma was; Restore
// turns them back.
func SplitLine(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	line = ProtectQuotedCommas(line)
	line = strings.ReplaceAll(line, `"`, "")
	return strings.Split(line, ",")
}

// Restore puts protected commas back into a value.
func Restore(v string) string {
	return strings.ReplaceAll(v, string(Sentinel), ",")
}

// Reader reads a header-first CSV feed whose column set may change from one
// file to the next. The UTF-8 byte-order mark, when present, is dropped.
type Reader struct {
	scanner *bufio.Scanner
	header  []string
	rawHdr  []string
	line    int
}

// NewReader reads and normalizes the header line.
func NewReader(r io.Reader) (*Reader, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	sc := bufio.NewScanner(decoded)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
	}
	raw := SplitLine(sc.Text())
	for i := range raw {
		raw[i] = Restore(raw[i])
	}
	return &Reader{
		scanner: sc,
		rawHdr:  raw,
		header:  normalize.FieldNames(raw),
		line:    1,
	}, nil
}

// Header returns the normalized field names.
func (r *Reader) Header() []string { return r.header }

// RawHeader returns the header exactly as the source wrote it.
func (r *Reader) RawHeader() []string { return r.rawHdr }

// Line returns the 1-based line number of the last record read.
func (r *Reader) Line() int { return r.line }

// Next returns the next non-blank record zipped with the header. Values
// beyond the header are dropped and missing trailing values are absent.
// It returns io.EOF after the last record.
func (r *Reader) Next() ([]Field, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		values := SplitLine(text)
		n := min(len(values), len(r.header))
		fields := make([]Field, n)
		for i := 0; i < n; i++ {
			fields[i] = Field{Name: r.header[i], Value: values[i]}
		}
		return fields, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Lookup returns the value of the first field named name.
func Lookup(fields []Field, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of name, appending the field when absent.
func Set(fields []Field, name, value string) []Field {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, Field{Name: name, Value: value})
}
