package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/normalize"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity accepted when no
// exact or prefix match exists.
const fuzzyThreshold = 0.85

type place struct {
	zh, en string
	key    string
}

// Places resolves Chinese administrative names to their English form using
// the places reference table. A nil *Places resolves nothing.
type Places struct {
	provinces []place
	cities    map[string][]place // by folded province name
	allCities []place
}

// LoadPlaces reads the admin1 and admin2 names of the places table.
func LoadPlaces(ctx context.Context, q ledger.Querier) (*Places, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT COALESCE(adm1_zh, ''), COALESCE(adm1_en, ''), COALESCE(adm2_zh, ''), COALESCE(adm2_en, '') FROM places`)
	if err != nil {
		return nil, fmt.Errorf("load places: %w", err)
	}
	defer rows.Close()

	p := &Places{cities: make(map[string][]place)}
	seen := make(map[string]bool)
	for rows.Next() {
		var p1zh, p1en, p2zh, p2en string
		if err := rows.Scan(&p1zh, &p1en, &p2zh, &p2en); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		prov := newPlace(p1zh, p1en)
		if prov.key != "" && !seen[prov.key] {
			seen[prov.key] = true
			p.provinces = append(p.provinces, prov)
		}
		if city := newPlace(p2zh, p2en); city.key != "" {
			p.cities[prov.key] = append(p.cities[prov.key], city)
			p.allCities = append(p.allCities, city)
		}
	}
	return p, rows.Err()
}

func newPlace(zh, en string) place {
	return place{zh: zh, en: en, key: normalize.FoldKey(zh)}
}

// Len returns the number of known provinces.
func (p *Places) Len() int {
	if p == nil {
		return 0
	}
	return len(p.provinces)
}

// Province returns the English name of a province, or "" when unknown.
func (p *Places) Province(zh string) string {
	if p == nil {
		return ""
	}
	return resolve(p.provinces, zh)
}

// City returns the English name of a city, searching the cities of its
// province first.
func (p *Places) City(provinceZh, cityZh string) string {
	if p == nil {
		return ""
	}
	for _, prov := range p.provinces {
		if prov.key == normalize.FoldKey(provinceZh) || strings.HasPrefix(prov.key, normalize.FoldKey(provinceZh)) {
			if en := resolve(p.cities[prov.key], cityZh); en != "" {
				return en
			}
		}
	}
	return resolve(p.allCities, cityZh)
}

// resolve tries an exact match, then a prefix match (the source writes
// "武汉" where the table has "武汉市"), then the closest fuzzy match.
func resolve(candidates []place, name string) string {
	key := normalize.FoldKey(name)
	if key == "" {
		return ""
	}
	for _, c := range candidates {
		if c.key == key {
			return c.en
		}
	}
	for _, c := range candidates {
		if strings.HasPrefix(c.key, key) {
			return c.en
		}
	}
	best, bestScore := "", 0.0
	for _, c := range candidates {
		if score := matchr.JaroWinkler(key, c.key, false); score > bestScore {
			best, bestScore = c.en, score
		}
	}
	if bestScore >= fuzzyThreshold {
		return best
	}
	return ""
}
