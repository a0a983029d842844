package normalize

// admin1Names covers ISO 3166-2 subdivisions for the US and Canada, the two
// countries whose early reports used "City, ST" province values.
var admin1Names = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin",
	"WY": "Wyoming", "DC": "District of Columbia", "AS": "American Samoa", "GU": "Guam",
	"MP": "Northern Mariana Islands", "PR": "Puerto Rico",
	"UM": "United States Minor Outlying Islands", "VI": "Virgin Islands, U.S.",

	"NL": "Newfoundland and Labrador", "PE": "Prince Edward Island", "NS": "Nova Scotia",
	"NB": "New Brunswick", "QC": "Quebec", "ON": "Ontario", "MB": "Manitoba",
	"SK": "Saskatchewan", "AB": "Alberta", "BC": "British Columbia", "YT": "Yukon",
	"NT": "Northwest Territories", "NU": "Nunavut",
}

// Admin1FromAbbr expands a two-letter subdivision code. ok is false for
// codes outside the table; callers keep the abbreviation in that case.
func Admin1FromAbbr(abbr string) (name string, ok bool) {
	name, ok = admin1Names[abbr]
	return name, ok
}
