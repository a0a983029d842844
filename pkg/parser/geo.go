package parser

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/normalize"
)

var (
	cityState = regexp.MustCompile(`^(.*?)` + string(Sentinel) + `\s*(.*)$`)
	// "NE (From Diamond Princess)": a state code followed by a cruise note.
	cruiseSuffix = regexp.MustCompile(`^([A-Z][A-Z])\s+(\(.*\))$`)
	stateCode    = regexp.MustCompile(`^[A-Z][A-Z]$`)
)

// SplitCityState splits a protected "City, ST" province value into admin2
// and admin1. ok is false when the value holds no protected comma.
func SplitCityState(province string) (admin2, admin1 string, ok bool) {
	m := cityState.FindStringSubmatch(strings.TrimSpace(province))
	if m == nil {
		return "", "", false
	}
	admin2 = strings.TrimSpace(Restore(m[1]))
	admin1 = strings.TrimSpace(Restore(m[2]))

	if c := cruiseSuffix.FindStringSubmatch(admin1); c != nil {
		admin1 = c[1]
		admin2 = strings.TrimSpace(admin2 + " " + c[2])
	}
	if stateCode.MatchString(admin1) {
		if name, known := normalize.Admin1FromAbbr(admin1); known {
			admin1 = name
		}
	}
	return admin2, admin1, true
}

// NormalizeGeography rewrites the geographic fields of a daily-report
// record in place: province_raw keeps the source text, a "City, ST" province
// is split into admin2 and province, and the country goes through alias
// normalization followed by the combination rewrite.
func NormalizeGeography(fields []Field) []Field {
	province, _ := Lookup(fields, "province")
	fields = Set(fields, "province_raw", Restore(province))

	if admin2, admin1, ok := SplitCityState(province); ok {
		fields = Set(fields, "admin2", admin2)
		province = admin1
	} else {
		province = strings.TrimSpace(Restore(province))
	}

	country, _ := Lookup(fields, "country")
	country, province = normalize.Entity(strings.TrimSpace(Restore(country)), province)

	fields = Set(fields, "country", country)
	return Set(fields, "province", province)
}
