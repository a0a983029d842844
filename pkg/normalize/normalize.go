// Package normalize maps the naming variants found in upstream case reports
// (country aliases, column headers, region abbreviations) onto one canonical
// vocabulary. Every function here is pure: the same input always yields the
// same output, and unknown input passes through.
//
// The alias tables only ever grow. Changing an existing entry reclassifies
// rows that were ingested under the old value, so history is only
// reproducible for files the ledger already guards.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldKey lowercases and strips accents (e.g. "Côte d'Ivoire" -> "cote d'ivoire").
// It is used to build match keys, never to rewrite stored values.
func FoldKey(s string) string {
	result, _, _ := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(s)))
	return result
}

// entityAliases is the canonical country alias table.
var entityAliases = map[string]string{
	"Republic of Ireland":            "Ireland",
	"North Ireland":                  "United Kingdom",
	" Azerbaijan":                    "Azerbaijan",
	"US":                             "USA",
	"U.S.":                           "USA",
	"UK":                             "United Kingdom",
	"Mainland China":                 "China",
	"Hong Kong SAR":                  "Hong Kong",
	"Macao SAR":                      "Macau",
	"Taipei and environs":            "Taiwan",
	"Taiwan*":                        "Taiwan",
	"occupied Palestinian territory": "Palestine",
	"West Bank and Gaza":             "Palestine",
	"Russian Federation":             "Russia",
	"The Bahamas":                    "Bahamas",
	"Bahamas, The":                   "Bahamas",
	"Czech Republic":                 "Czechia",
	"Iran (Islamic Republic of)":     "Iran",
	"Holy See":                       "Vatican City",
	"Viet Nam":                       "Vietnam",
	"Korea, South":                   "South Korea",
	"Republic of Korea":              "South Korea",
	"Gambia, The":                    "The Gambia",
	"Cote d'Ivoire":                  "Ivory Coast",
}

// EntityName returns the canonical name for a country or region.
func EntityName(raw string) string {
	if canonical, ok := entityAliases[raw]; ok {
		return canonical
	}
	return raw
}

// combinationRewrites re-tags provinces that report as their own top-level
// entity although the source files them under their parent country.
var combinationRewrites = map[[2]string]string{
	{"China", "Hong Kong"}: "Hong Kong",
	{"China", "Macau"}:     "Macau",
}

// Entity canonicalizes a (country, province) pair. The generic alias table
// is applied to the country first, then the combination rewrite.
func Entity(country, province string) (string, string) {
	country = EntityName(country)
	if rewritten, ok := combinationRewrites[[2]string{country, province}]; ok {
		return rewritten, province
	}
	return country, province
}

var fieldAliases = map[string]string{
	"country_region":      "country",
	"province_state":      "province",
	"lat":                 "latitude",
	"long_":               "longitude",
	"case-fatality_ratio": "case_fatality_ratio",
	"incidence_rate":      "incident_rate",
}

var (
	slashSuffix = regexp.MustCompile(`([A-Za-z]+)/([A-Za-z]+)`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// FieldName maps a source column header to its canonical lower-case key:
// "Country/Region" -> "country", "Last Update" -> "last_update",
// "Long_" -> "longitude". Unknown headers come back lower-cased.
func FieldName(raw string) string {
	s := strings.TrimPrefix(raw, "\ufeff")
	s = strings.TrimSpace(s)
	s = slashSuffix.ReplaceAllString(s, "$1")
	s = whitespace.ReplaceAllString(s, "_")
	s = strings.ToLower(s)
	if canonical, ok := fieldAliases[s]; ok {
		return canonical
	}
	return s
}

// FieldNames applies FieldName to a whole header line.
func FieldNames(raw []string) []string {
	out := make([]string, len(raw))
	for i, f := range raw {
		out[i] = FieldName(f)
	}
	return out
}
