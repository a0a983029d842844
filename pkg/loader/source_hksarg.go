package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

func init() {
	Register(&pressReleaseLoader{})
}

// pressReleaseLoader reads the tab-separated table transcribed from Hong Kong
// government press releases. The fetcher appends to one file, so rows are
// inserted with INSERT OR IGNORE on their timestamp.
type pressReleaseLoader struct{}

func (l *pressReleaseLoader) Name() string        { return "hksarg" }
func (l *pressReleaseLoader) Source() string      { return ledger.KindPressReleases }
func (l *pressReleaseLoader) Description() string { return "HKSARG press release counts" }
func (l *pressReleaseLoader) Reference() bool     { return false }

func (l *pressReleaseLoader) Discover(opts Options) ([]File, error) {
	files, err := fileOrDir(opts.Path, ".csv")
	if err != nil {
		return nil, err
	}
	return withContentIDs(files)
}

var pressReleaseColumns = []string{
	"new", "total", "cured", "remain", "stable", "serious", "critical", "confirmed", "dead",
}

func (l *pressReleaseLoader) Load(ctx context.Context, tx *store.Tx, f File, _ Options, env *Env) (Stats, error) {
	var st Stats
	tbl, err := env.Registry.Get(schema.PressReleases)
	if err != nil {
		return st, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		values := strings.Split(text, "\t")
		at, err := parser.PressReleaseTime(strings.TrimPrefix(values[0], "\ufeff"))
		if err != nil {
			if line == 1 {
				// Column titles.
				continue
			}
			return st, fmt.Errorf("line %d: %w", line, err)
		}

		fields := []parser.Field{{Name: "timestamp", Value: at.Format("2006-01-02 15:04:05")}}
		for i, name := range pressReleaseColumns {
			v := ""
			if i+1 < len(values) {
				v = values[i+1]
			}
			fields = append(fields, parser.Field{Name: name, Value: v})
		}
		row, _, err := parser.ParseRow(fields, tbl)
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("line %d", line), err)
			continue
		}
		if err := st.insert(ctx, tx, tbl.Name, row, store.Ignore); err != nil {
			return st, err
		}
	}
	return st, sc.Err()
}
