package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/normalize"
	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

func init() {
	Register(&hgisLoader{})
}

// hgisLoader reads the wide HGIS file: one line per date, one column per
// place, each cell "confirmed-active-recovered-dead".
type hgisLoader struct{}

func (l *hgisLoader) Name() string        { return "hgis" }
func (l *hgisLoader) Source() string      { return ledger.KindHGIS }
func (l *hgisLoader) Description() string { return "HGIS wide per-place case counts" }
func (l *hgisLoader) Reference() bool     { return false }

func (l *hgisLoader) Discover(opts Options) ([]File, error) {
	files, err := fileOrDir(opts.Path, ".csv")
	if err != nil {
		return nil, err
	}
	return withContentIDs(files)
}

var hgisColumns = []string{"confirmed", "active", "recovered", "dead"}

func (l *hgisLoader) Load(ctx context.Context, tx *store.Tx, f File, _ Options, env *Env) (Stats, error) {
	var st Stats
	tbl, err := env.Registry.Get(schema.HGISReports)
	if err != nil {
		return st, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		return st, sc.Err()
	}
	header := parser.SplitLine(strings.TrimPrefix(sc.Text(), "\ufeff"))
	places := make([]string, len(header))
	for i, h := range header {
		places[i] = normalize.FieldName(parser.Restore(h))
	}

	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		cells := parser.SplitLine(text)
		day, err := parser.ParseDate(cells[0])
		if err != nil {
			return st, fmt.Errorf("line %d: date: %w", line, err)
		}
		date := day.Format(parser.ISODate)

		for i := 1; i < len(cells) && i < len(places); i++ {
			row, err := hgisRow(tbl, date, places[i], cells[i])
			if err != nil {
				st.skip(env.logger(), f, fmt.Sprintf("line %d column %s", line, places[i]), err)
				continue
			}
			if err := st.insert(ctx, tx, tbl.Name, row, store.Ignore); err != nil {
				return st, err
			}
		}
	}
	return st, sc.Err()
}

// hgisRow splits one cell. Cells with fewer than four parts count as zero.
func hgisRow(tbl *schema.Table, date, place, cell string) (parser.Row, error) {
	parts := strings.Split(strings.TrimSpace(cell), "-")
	if len(parts) < len(hgisColumns) {
		parts = []string{"0", "0", "0", "0"}
	}
	row := parser.Row{"date": date, "place": place}
	for i, name := range hgisColumns {
		col, _ := tbl.Column(name)
		v, err := parser.Coerce(col, parts[i])
		if err != nil {
			return nil, err
		}
		row[col.Name] = v
	}
	return row, nil
}
