package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/normalize"
	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func init() {
	Register(&referenceLoader{
		name: "places", table: schema.Places, desc: "OCHA China admin2 boundaries (places)",
		load: loadPlaces,
	})
	Register(&referenceLoader{
		name: "populations", table: schema.Populations, desc: "World population by country",
		load: loadPopulations,
	})
	Register(&referenceLoader{
		name: "wiki_populations", table: schema.WikiPopulations, desc: "Wikipedia population by country",
		load: loadWikiPopulations,
	})
	Register(&referenceLoader{
		name: "un_places", table: schema.UNPlaces, desc: "UN country metadata (JSON)",
		load: loadUNPlaces,
	})
	Register(&referenceLoader{
		name: "uid_iso_fips", table: schema.UIDLookup, desc: "JHU UID / ISO / FIPS lookup",
		load: loadUIDLookup,
	})
}

type referenceFunc func(ctx context.Context, tx *store.Tx, f File, opts Options, tbl *schema.Table, env *Env) (Stats, error)

// referenceLoader fills one static lookup table from a single file, once.
type referenceLoader struct {
	name  string
	table string
	desc  string
	load  referenceFunc
}

func (l *referenceLoader) Name() string        { return l.name }
func (l *referenceLoader) Source() string      { return ledger.KindReference }
func (l *referenceLoader) Description() string { return l.desc }
func (l *referenceLoader) Reference() bool     { return true }

func (l *referenceLoader) Discover(opts Options) ([]File, error) {
	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", opts.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: expected a file, got a directory", opts.Path)
	}
	name := filepath.Base(opts.Path)
	return []File{{ID: l.name + ":" + name, Name: name, Path: opts.Path}}, nil
}

func (l *referenceLoader) Load(ctx context.Context, tx *store.Tx, f File, opts Options, env *Env) (Stats, error) {
	tbl, err := env.Registry.Get(l.table)
	if err != nil {
		return Stats{}, err
	}
	return l.load(ctx, tx, f, opts, tbl, env)
}

// openReference opens a reference file, transcoding it to UTF-8 when an
// encoding other than UTF-8 is configured and dropping any byte-order mark.
func openReference(path, encoding string) (io.ReadCloser, io.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	var r io.Reader = f
	if encoding != "" && !isUTF8(encoding) {
		e, err := htmlindex.Get(encoding)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
		}
		r = transform.NewReader(f, e.NewDecoder())
	} else {
		r = transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}
	return f, r, nil
}

func isUTF8(enc string) bool {
	switch strings.ToLower(strings.ReplaceAll(enc, "-", "")) {
	case "utf8", "":
		return true
	}
	return false
}

// decodePositional reads a delimited file whose columns are known by
// position. The first skip lines are descriptions, not data. Each record is
// decoded into T by csvutil with the struct's own tags as header.
func decodePositional[T any](path string, opts Options, skip int, each func(rec *T, err error) error) error {
	closer, r, err := openReference(path, opts.Encoding)
	if err != nil {
		return err
	}
	defer closer.Close()

	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	if cr.Comma == 0 {
		cr.Comma = ';'
	}
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	for i := 0; i < skip; i++ {
		if _, err := cr.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read description line: %w", err)
		}
	}

	var zero T
	header, err := csvutil.Header(zero, "csv")
	if err != nil {
		return fmt.Errorf("reference header: %w", err)
	}
	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return fmt.Errorf("reference decoder: %w", err)
	}
	for {
		var rec T
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		var pe *csv.ParseError
		if err != nil && !errors.As(err, &pe) && !errors.Is(err, csvutil.ErrFieldCount) {
			return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		if err != nil {
			if err := each(nil, err); err != nil {
				return err
			}
			continue
		}
		if err := each(&rec, nil); err != nil {
			return err
		}
	}
}

type placeRecord struct {
	ObjectID  string `csv:"objectid"`
	AdminType string `csv:"admin_type"`
	Adm2Cap   string `csv:"adm2_cap"`
	Adm2EN    string `csv:"adm2_en"`
	Adm2ZH    string `csv:"adm2_zh"`
	Adm2PCode string `csv:"adm2_pcode"`
	Adm1EN    string `csv:"adm1_en"`
	Adm1ZH    string `csv:"adm1_zh"`
	Adm1PCode string `csv:"adm1_pcode"`
	Adm0EN    string `csv:"adm0_en"`
	Adm0ZH    string `csv:"adm0_zh"`
	Adm0PCode string `csv:"adm0_pcode"`
}

func (p *placeRecord) fields() []parser.Field {
	return []parser.Field{
		{Name: "objectid", Value: p.ObjectID},
		{Name: "admin_type", Value: p.AdminType},
		{Name: "adm2_cap", Value: p.Adm2Cap},
		{Name: "adm2_en", Value: p.Adm2EN},
		{Name: "adm2_zh", Value: p.Adm2ZH},
		{Name: "adm2_pcode", Value: p.Adm2PCode},
		{Name: "adm1_en", Value: p.Adm1EN},
		{Name: "adm1_zh", Value: p.Adm1ZH},
		{Name: "adm1_pcode", Value: p.Adm1PCode},
		{Name: "adm0_en", Value: p.Adm0EN},
		{Name: "adm0_zh", Value: p.Adm0ZH},
		{Name: "adm0_pcode", Value: p.Adm0PCode},
	}
}

func loadPlaces(ctx context.Context, tx *store.Tx, f File, opts Options, tbl *schema.Table, env *Env) (Stats, error) {
	var st Stats
	n := 0
	err := decodePositional(f.Path, opts, 0, func(rec *placeRecord, err error) error {
		n++
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("record %d", n), err)
			return nil
		}
		return insertFields(ctx, tx, &st, f, fmt.Sprintf("record %d", n), rec.fields(), tbl, env)
	})
	return st, err
}

type populationRecord struct {
	ID           string `csv:"id"`
	Country      string `csv:"country"`
	Population   string `csv:"population"`
	YearlyChange string `csv:"yearly_change"`
	NetChange    string `csv:"net_change"`
	Density      string `csv:"density"`
	LandArea     string `csv:"land_area"`
	Migrants     string `csv:"migrants"`
	FertRate     string `csv:"fert_rate"`
	MedianAge    string `csv:"median_age"`
	UrbanPct     string `csv:"urban_pct"`
	WorldPct     string `csv:"world_pct"`
}

func (p *populationRecord) fields() []parser.Field {
	country := strings.TrimSpace(p.Country)
	return []parser.Field{
		{Name: "id", Value: p.ID},
		{Name: "country", Value: country},
		{Name: "alt_name", Value: normalize.EntityName(country)},
		{Name: "population", Value: p.Population},
		{Name: "yearly_change", Value: p.YearlyChange},
		{Name: "net_change", Value: p.NetChange},
		{Name: "density", Value: p.Density},
		{Name: "land_area", Value: p.LandArea},
		{Name: "migrants", Value: p.Migrants},
		{Name: "fert_rate", Value: p.FertRate},
		{Name: "median_age", Value: p.MedianAge},
		{Name: "urban_pct", Value: p.UrbanPct},
		{Name: "world_pct", Value: p.WorldPct},
	}
}

func loadPopulations(ctx context.Context, tx *store.Tx, f File, opts Options, tbl *schema.Table, env *Env) (Stats, error) {
	var st Stats
	n := 0
	err := decodePositional(f.Path, opts, 1, func(rec *populationRecord, err error) error {
		n++
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("record %d", n), err)
			return nil
		}
		return insertFields(ctx, tx, &st, f, fmt.Sprintf("record %d", n), rec.fields(), tbl, env)
	})
	return st, err
}

type wikiPopulationRecord struct {
	ID         string `csv:"id"`
	Country    string `csv:"country"`
	Population string `csv:"population"`
	PctGlobal  string `csv:"pct_global"`
	Date       string `csv:"date"`
	Source     string `csv:"source"`
}

func (w *wikiPopulationRecord) fields() []parser.Field {
	country := strings.TrimSpace(w.Country)
	return []parser.Field{
		{Name: "id", Value: w.ID},
		{Name: "country", Value: country},
		{Name: "alt_name", Value: normalize.EntityName(country)},
		{Name: "population", Value: w.Population},
		{Name: "pct_global", Value: w.PctGlobal},
		{Name: "date", Value: w.Date},
		{Name: "source", Value: w.Source},
	}
}

func loadWikiPopulations(ctx context.Context, tx *store.Tx, f File, opts Options, tbl *schema.Table, env *Env) (Stats, error) {
	var st Stats
	n := 0
	err := decodePositional(f.Path, opts, 1, func(rec *wikiPopulationRecord, err error) error {
		n++
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("record %d", n), err)
			return nil
		}
		return insertFields(ctx, tx, &st, f, fmt.Sprintf("record %d", n), rec.fields(), tbl, env)
	})
	return st, err
}

// insertFields coerces and inserts one reference record. Reference tables
// are keyed by their external identifier, so a repeated key is ignored.
func insertFields(ctx context.Context, tx *store.Tx, st *Stats, f File, where string, fields []parser.Field, tbl *schema.Table, env *Env) error {
	row, dropped, err := parser.ParseRow(fields, tbl)
	st.drop(dropped)
	if err != nil {
		st.skip(env.logger(), f, where, err)
		return nil
	}
	return st.insert(ctx, tx, tbl.Name, row, store.Ignore)
}

// unLabels maps the label object keys of the UN country list to columns.
var unLabels = map[string]string{
	"arabic-short":  "arabic_short",
	"chinese-short": "chinese_short",
	"french-short":  "french_short",
	"default":       "default_form",
	"fts":           "fts",
	"russian-short": "russian_short",
	"spanish-short": "spanish_short",
}

// flattenUNPlace lifts the geolocation and label objects of one UN country
// entry into top-level keys matching the un_places columns.
func flattenUNPlace(entity map[string]any) map[string]any {
	flat := make(map[string]any, len(entity)+len(unLabels))
	for k, v := range entity {
		switch k {
		case "geolocation":
			if geo, ok := v.(map[string]any); ok {
				flat["lat"] = geo["lat"]
				flat["long"] = geo["lon"]
			}
		case "label":
			if labels, ok := v.(map[string]any); ok {
				for key, col := range unLabels {
					if lv, ok := labels[key]; ok {
						flat[col] = lv
					}
				}
			}
		default:
			flat[strings.ReplaceAll(k, "-", "_")] = v
		}
	}
	return flat
}

func loadUNPlaces(ctx context.Context, tx *store.Tx, f File, _ Options, tbl *schema.Table, env *Env) (Stats, error) {
	var st Stats
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", f.Name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	dec.UseNumber()
	var doc struct {
		Data []map[string]any `json:"data"`
	}
	if err := dec.Decode(&doc); err != nil {
		return st, fmt.Errorf("decode %s: %w", f.Name, err)
	}

	for i, entity := range doc.Data {
		row, dropped, err := parser.ParseObject(flattenUNPlace(entity), tbl)
		st.drop(dropped)
		if err != nil {
			st.skip(env.logger(), f, fmt.Sprintf("data[%d]", i), err)
			continue
		}
		if err := st.insert(ctx, tx, tbl.Name, row, store.Ignore); err != nil {
			return st, err
		}
	}
	return st, nil
}

// loadUIDLookup reads the comma-separated UID lookup through the same
// header-normalizing reader as the daily reports.
func loadUIDLookup(ctx context.Context, tx *store.Tx, f File, _ Options, tbl *schema.Table, env *Env) (Stats, error) {
	var st Stats
	fh, err := os.Open(f.Path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	r, err := parser.NewReader(fh)
	if err != nil {
		return st, err
	}
	for {
		fields, err := r.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("line %d: %w", r.Line(), err)
		}
		where := fmt.Sprintf("line %d", r.Line())
		if err := insertFields(ctx, tx, &st, f, where, fields, tbl, env); err != nil {
			return st, err
		}
	}
}
