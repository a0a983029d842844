package schema

// Table names.
const (
	ProvinceSnapshots = "cn_prov"
	CitySnapshots     = "cn_city"
	DailyReports      = "jhu_data"
	USDailyReports    = "jhu_us_data"
	PressReleases     = "hksarg"
	HGISReports       = "hgis_data"
	Places            = "places"
	UNPlaces          = "un_places"
	Populations       = "populations"
	WikiPopulations   = "wiki_populations"
	UIDLookup         = "uid_iso_fips"
	Files             = "files"
	DailySummary      = "daily_summary"
)

func col(name string, typ ColumnType) Column { return Column{Name: name, Type: typ} }

func snapshotCounts() []Column {
	return []Column{
		col("currentConfirmedCount", Integer),
		col("confirmedCount", Integer),
		col("suspectedCount", Integer),
		col("curedCount", Integer),
		col("deadCount", Integer),
		col("locationId", Integer),
		col("highDangerCount", Integer),
		col("midDangerCount", Integer),
		col("detectOrgCount", Integer),
		col("vaccinationOrgCount", Integer),
		col("dangerAreas", Text),
	}
}

func declarations() []*Table {
	prov := append([]Column{
		col("timestamp", Integer),
		col("iso_date", Text),
		col("provinceName", Text),
		col("province_en", Text),
		col("provinceShortName", Text),
		col("comment", Text),
		col("statisticsData", Text),
	}, snapshotCounts()...)

	city := append([]Column{
		col("timestamp", Integer),
		col("iso_date", Text),
		col("provinceName", Text),
		col("province_en", Text),
		col("cityName", Text),
		col("city_en", Text),
	}, snapshotCounts()...)

	return []*Table{
		newTable(ProvinceSnapshots, Fact, prov...).
			withIndex("cn_prov_name_ts", "provinceName", "timestamp"),
		newTable(CitySnapshots, Fact, city...).
			withIndex("cn_city_name_ts", "provinceName", "cityName", "timestamp"),

		newTable(DailyReports, Fact,
			col("timestamp", Integer),
			col("date", Text),
			col("fips", Integer),
			col("admin2", Text),
			col("country", Text),
			col("province", Text),
			col("province_raw", Text),
			col("last_update", Text),
			col("latitude", Real),
			col("longitude", Real),
			col("confirmed", Integer),
			col("deaths", Integer),
			col("recovered", Integer),
			col("active", Integer),
			col("combined_key", Text),
			col("incident_rate", Real),
			col("case_fatality_ratio", Real),
			col("people_tested", Integer),
			col("people_hospitalized", Integer),
		).withIndex("jhu_data_country_date", "country", "date"),

		newTable(USDailyReports, Fact,
			col("timestamp", Integer),
			col("date", Text),
			col("province", Text),
			col("province_raw", Text),
			col("country", Text),
			col("last_update", Text),
			col("latitude", Real),
			col("longitude", Real),
			col("confirmed", Integer),
			col("deaths", Integer),
			col("recovered", Integer),
			col("active", Integer),
			col("fips", Integer),
			col("incident_rate", Real),
			col("total_test_results", Integer),
			col("people_tested", Integer),
			col("people_hospitalized", Integer),
			col("case_fatality_ratio", Real),
			col("mortality_rate", Real),
			col("uid", Integer),
			col("iso3", Text),
			col("testing_rate", Real),
			col("hospitalization_rate", Real),
		).withIndex("jhu_us_data_province_date", "province", "date"),

		newTable(PressReleases, Fact,
			Column{Name: "timestamp", Type: Text, Constraint: "PRIMARY KEY"},
			col("new", Integer),
			col("total", Integer),
			col("cured", Integer),
			col("remain", Integer),
			col("stable", Integer),
			col("serious", Integer),
			col("critical", Integer),
			col("confirmed", Integer),
			col("dead", Integer),
		),

		newTable(HGISReports, Fact,
			col("date", Text),
			col("place", Text),
			col("confirmed", Integer),
			col("active", Integer),
			col("recovered", Integer),
			col("dead", Integer),
		).withUnique("date", "place"),

		newTable(Places, Reference,
			Column{Name: "objectid", Type: Integer, Constraint: "PRIMARY KEY"},
			col("admin_type", Text),
			col("adm2_cap", Text),
			col("adm2_en", Text),
			col("adm2_zh", Text),
			col("adm2_pcode", Text),
			col("adm1_en", Text),
			col("adm1_zh", Text),
			col("adm1_pcode", Text),
			col("adm0_en", Text),
			col("adm0_zh", Text),
			col("adm0_pcode", Text),
		),

		newTable(UNPlaces, Reference,
			Column{Name: "id", Type: Integer, Constraint: "PRIMARY KEY"},
			col("hrinfo_id", Integer),
			col("fts_api_id", Integer),
			col("reliefweb_id", Integer),
			col("m49", Integer),
			col("admin_level", Integer),
			col("dgacm_list", Text),
			col("lat", Real),
			col("long", Real),
			col("iso2", Text),
			col("iso3", Text),
			col("arabic_short", Text),
			col("chinese_short", Text),
			col("french_short", Text),
			col("default_form", Text),
			col("fts", Text),
			col("russian_short", Text),
			col("spanish_short", Text),
		),

		newTable(Populations, Reference,
			Column{Name: "id", Type: Integer, Constraint: "PRIMARY KEY"},
			col("country", Text),
			col("alt_name", Text),
			col("population", Integer),
			col("yearly_change", Real),
			col("net_change", Integer),
			col("density", Real),
			col("land_area", Integer),
			col("migrants", Integer),
			col("fert_rate", Real),
			col("median_age", Integer),
			col("urban_pct", Real),
			col("world_pct", Real),
		),

		newTable(WikiPopulations, Reference,
			col("id", Text),
			col("country", Text),
			col("population", Integer),
			col("pct_global", Real),
			col("date", Text),
			col("source", Text),
			col("alt_name", Text),
		).withUnique("id", "country"),

		newTable(UIDLookup, Reference,
			Column{Name: "uid", Type: Integer, Constraint: "PRIMARY KEY"},
			col("iso2", Text),
			col("iso3", Text),
			col("code3", Integer),
			col("fips", Text),
			col("admin2", Text),
			col("province", Text),
			col("country", Text),
			col("latitude", Real),
			col("longitude", Real),
			col("combined_key", Text),
			col("population", Integer),
		),

		newTable(Files, Ledger,
			Column{Name: "filename", Type: Text, Constraint: "NOT NULL"},
			Column{Name: "source", Type: Text, Constraint: "NOT NULL"},
			Column{Name: "date_processed", Type: Text, Constraint: "NOT NULL"},
			col("run_id", Text),
			col("rows", Integer),
		).withUnique("filename", "source"),

		newTable(DailySummary, Derived,
			Column{Name: "entity", Type: Text, Constraint: "NOT NULL"},
			Column{Name: "date", Type: Text, Constraint: "NOT NULL"},
			col("confirmed", Integer),
			col("deaths", Integer),
			col("recovered", Integer),
			col("active", Integer),
			col("cfr", Real),
			col("crr", Real),
			col("day_index_since_threshold", Integer),
			col("growth_rate_1day", Real),
			col("growth_rate_7day", Real),
			col("deaths_growth_1day", Real),
			col("deaths_growth_7day", Real),
			col("recovered_growth_1day", Real),
			col("recovered_growth_7day", Real),
			col("tested", Integer),
			col("hospitalized", Integer),
		).withPrimaryKey("entity", "date").
			withIndex("daily_summary_entity", "entity"),
	}
}
