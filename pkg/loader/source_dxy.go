package loader

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

func init() {
	Register(&snapshotLoader{})
}

// DefaultSnapshotTags are the snapshot tags loaded when none is configured.
var DefaultSnapshotTags = []string{"getAreaStat"}

// snapshotLoader reads the province/city JSON snapshots scraped from the
// DXY dashboard. One file is one capture time.
type snapshotLoader struct{}

func (l *snapshotLoader) Name() string        { return "dxy" }
func (l *snapshotLoader) Source() string      { return ledger.KindSnapshots }
func (l *snapshotLoader) Description() string { return "DXY province/city JSON snapshots" }
func (l *snapshotLoader) Reference() bool     { return false }

func (l *snapshotLoader) Discover(opts Options) ([]File, error) {
	tags := opts.Tags
	if len(tags) == 0 {
		tags = DefaultSnapshotTags
	}
	return listDir(opts.Path, func(name string) bool {
		_, tag, err := parser.SnapshotTime(name)
		return err == nil && slices.Contains(tags, tag)
	})
}

func (l *snapshotLoader) Load(ctx context.Context, tx *store.Tx, f File, _ Options, env *Env) (Stats, error) {
	var st Stats
	captured, _, err := parser.SnapshotTime(f.Name)
	if err != nil {
		return st, err
	}
	provTbl, err := env.Registry.Get(schema.ProvinceSnapshots)
	if err != nil {
		return st, err
	}
	cityTbl, err := env.Registry.Get(schema.CitySnapshots)
	if err != nil {
		return st, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	tree, err := parser.WalkTree(fh, "cities", "provinceName")
	if err != nil {
		return st, err
	}

	stamp := parser.TimestampKey(captured)
	isoDate := captured.Format("2006-01-02 15:04:05")
	provinceEN := make(map[string]string)

	for i, obj := range tree.Parents {
		row, dropped, err := parser.ParseObject(obj, provTbl)
		st.drop(dropped)
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("province %d", i), err)
			continue
		}
		name, _ := row["provinceName"].(string)
		en, ok := provinceEN[name]
		if !ok {
			en = env.Places.Province(name)
			provinceEN[name] = en
		}
		row["timestamp"] = stamp
		row["iso_date"] = isoDate
		row["province_en"] = en
		if err := st.insert(ctx, tx, provTbl.Name, row, store.Append); err != nil {
			return st, err
		}
	}

	for i, obj := range tree.Children {
		row, dropped, err := parser.ParseObject(obj, cityTbl)
		st.drop(dropped)
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("city %d", i), err)
			continue
		}
		province, _ := row["provinceName"].(string)
		city, _ := row["cityName"].(string)
		en, ok := provinceEN[province]
		if !ok {
			en = env.Places.Province(province)
			provinceEN[province] = en
		}
		row["timestamp"] = stamp
		row["iso_date"] = isoDate
		row["province_en"] = en
		row["city_en"] = env.Places.City(province, city)
		if err := st.insert(ctx, tx, cityTbl.Name, row, store.Append); err != nil {
			return st, err
		}
	}
	return st, nil
}
