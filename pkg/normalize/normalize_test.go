package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"US", "USA"},
		{"Mainland China", "China"},
		{"Hong Kong SAR", "Hong Kong"},
		{"Korea, South", "South Korea"},
		{" Azerbaijan", "Azerbaijan"},
		{"Iran (Islamic Republic of)", "Iran"},
		{"France", "France"},
		{"", ""},
		{"Atlantis", "Atlantis"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntityName(tt.input), "EntityName(%q)", tt.input)
	}
}

func TestEntityName_Deterministic(t *testing.T) {
	for raw := range entityAliases {
		first := EntityName(raw)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, EntityName(raw))
		}
	}
}

func TestEntity_CombinationRewrite(t *testing.T) {
	tests := []struct {
		country, province         string
		wantCountry, wantProvince string
	}{
		{"Mainland China", "Hong Kong", "Hong Kong", "Hong Kong"},
		{"China", "Macau", "Macau", "Macau"},
		{"Mainland China", "Hubei", "China", "Hubei"},
		{"US", "Hong Kong", "USA", "Hong Kong"},
		{"Hong Kong SAR", "", "Hong Kong", ""},
	}
	for _, tt := range tests {
		c, p := Entity(tt.country, tt.province)
		assert.Equal(t, tt.wantCountry, c, "country for %q/%q", tt.country, tt.province)
		assert.Equal(t, tt.wantProvince, p, "province for %q/%q", tt.country, tt.province)
	}
}

func TestFieldName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Country/Region", "country"},
		{"Province/State", "province"},
		{"Country_Region", "country"},
		{"Province_State", "province"},
		{"Last Update", "last_update"},
		{"Last_Update", "last_update"},
		{"Lat", "latitude"},
		{"Long_", "longitude"},
		{"Case-Fatality_Ratio", "case_fatality_ratio"},
		{"Incidence_Rate", "incident_rate"},
		{"\ufeffFIPS", "fips"},
		{"  Confirmed ", "confirmed"},
		{"Brand_New_Column", "brand_new_column"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FieldName(tt.input), "FieldName(%q)", tt.input)
	}
}

func TestFieldNames(t *testing.T) {
	got := FieldNames([]string{"Province/State", "Country/Region", "Last Update", "Confirmed"})
	assert.Equal(t, []string{"province", "country", "last_update", "confirmed"}, got)
}

func TestAdmin1FromAbbr(t *testing.T) {
	name, ok := Admin1FromAbbr("AZ")
	assert.True(t, ok)
	assert.Equal(t, "Arizona", name)

	name, ok = Admin1FromAbbr("BC")
	assert.True(t, ok)
	assert.Equal(t, "British Columbia", name)

	_, ok = Admin1FromAbbr("ZZ")
	assert.False(t, ok)
}

func TestFoldKey(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Côte d'Ivoire", "cote d'ivoire"},
		{"  CURAÇAO ", "curacao"},
		{"Réunion", "reunion"},
		{"湖北省", "湖北省"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldKey(tt.input), "FoldKey(%q)", tt.input)
	}
}
