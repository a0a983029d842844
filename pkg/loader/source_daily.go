package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

func init() {
	Register(&dailyReportLoader{
		name:   "jhu",
		source: ledger.KindDailyReports,
		table:  schema.DailyReports,
		desc:   "JHU CSSE global daily reports",
	})
	Register(&dailyReportLoader{
		name:   "jhu_us",
		source: ledger.KindUSReports,
		table:  schema.USDailyReports,
		desc:   "JHU CSSE US daily reports",
	})
}

// dailyReportLoader reads MM-DD-YYYY.csv case reports whose column set
// changes over time.
type dailyReportLoader struct {
	name, source, table, desc string
}

func (l *dailyReportLoader) Name() string        { return l.name }
func (l *dailyReportLoader) Source() string      { return l.source }
func (l *dailyReportLoader) Description() string { return l.desc }
func (l *dailyReportLoader) Reference() bool     { return false }

func (l *dailyReportLoader) Discover(opts Options) ([]File, error) {
	return listDir(opts.Path, func(name string) bool {
		_, err := parser.DailyReportDate(name)
		return err == nil
	})
}

// Load inserts one row per record. The last_update field keys the row: a
// value that cannot be parsed fails the whole file.
func (l *dailyReportLoader) Load(ctx context.Context, tx *store.Tx, f File, _ Options, env *Env) (Stats, error) {
	var st Stats
	fileDate, err := parser.DailyReportDate(f.Name)
	if err != nil {
		return st, err
	}
	tbl, err := env.Registry.Get(l.table)
	if err != nil {
		return st, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	r, err := parser.NewReader(fh)
	if err != nil {
		return st, err
	}
	date := fileDate.Format(parser.ISODate)

	for {
		fields, err := r.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("line %d: %w", r.Line(), err)
		}
		where := fmt.Sprintf("line %d", r.Line())

		fields = parser.NormalizeGeography(fields)
		raw, _ := parser.Lookup(fields, "last_update")
		updated, err := parser.ParseLastUpdate(parser.Restore(raw), fileDate)
		if err != nil {
			return st, fmt.Errorf("%s: last_update: %w", where, err)
		}
		fields = parser.Set(fields, "timestamp", strconv.FormatInt(parser.TimestampKey(updated), 10))
		fields = parser.Set(fields, "date", date)

		row, dropped, err := parser.ParseRow(fields, tbl)
		st.drop(dropped)
		if err != nil {
			st.skip(env.logger(), f, where, err)
			continue
		}
		if err := st.insert(ctx, tx, tbl.Name, row, store.Append); err != nil {
			return st, err
		}
	}
}
