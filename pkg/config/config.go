// Package config loads the pipeline configuration from YAML. Defaults are
// applied first and a missing file is not an error, so a bare checkout runs
// against the conventional data layout.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source points a fact loader at its input.
type Source struct {
	Path    string   `yaml:"path" validate:"required_if=Enabled true"`
	Enabled bool     `yaml:"enabled"`
	Tags    []string `yaml:"tags,omitempty"`
}

// Sources holds one entry per fact loader, keyed by loader name.
type Sources struct {
	DXY    Source `yaml:"dxy"`
	JHU    Source `yaml:"jhu"`
	JHUUS  Source `yaml:"jhu_us"`
	HGIS   Source `yaml:"hgis"`
	HKSARG Source `yaml:"hksarg"`
}

// ByName returns the sources keyed by loader name.
func (s Sources) ByName() map[string]Source {
	return map[string]Source{
		"dxy":    s.DXY,
		"jhu":    s.JHU,
		"jhu_us": s.JHUUS,
		"hgis":   s.HGIS,
		"hksarg": s.HKSARG,
	}
}

// RefFile describes one static reference file.
type RefFile struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter" validate:"omitempty,len=1"`
	Encoding  string `yaml:"encoding"`
}

// Comma returns the delimiter rune, or 0 for the loader default.
func (r RefFile) Comma() rune {
	if r.Delimiter == "" {
		return 0
	}
	return []rune(r.Delimiter)[0]
}

// Reference holds one entry per reference loader.
type Reference struct {
	Places          RefFile `yaml:"places"`
	UNPlaces        RefFile `yaml:"un_places"`
	Populations     RefFile `yaml:"populations"`
	WikiPopulations RefFile `yaml:"wiki_populations"`
	UIDISOFIPS      RefFile `yaml:"uid_iso_fips"`
}

// ByName returns the reference files keyed by loader name.
func (r Reference) ByName() map[string]RefFile {
	return map[string]RefFile{
		"places":           r.Places,
		"un_places":        r.UNPlaces,
		"populations":      r.Populations,
		"wiki_populations": r.WikiPopulations,
		"uid_iso_fips":     r.UIDISOFIPS,
	}
}

// Summary controls the aggregator.
type Summary struct {
	ThresholdMetric string `yaml:"threshold_metric" validate:"oneof=confirmed deaths recovered active"`
	Threshold       int64  `yaml:"threshold" validate:"gte=0"`
	Rounding        int    `yaml:"rounding" validate:"gte=0,lte=10"`
}

// Serve configures the read-only HTTP surface.
type Serve struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Config is the whole pipeline configuration.
type Config struct {
	Database        string    `yaml:"database" validate:"required"`
	DataDir         string    `yaml:"data_dir" validate:"required"`
	Sources         Sources   `yaml:"sources"`
	Reference       Reference `yaml:"reference"`
	Summary         Summary   `yaml:"summary"`
	MetricsTextfile string    `yaml:"metrics_textfile"`
	Serve           Serve     `yaml:"serve"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	const jhu = "JHU_data/2019-nCoV/csse_covid_19_data"
	return Config{
		Database: "ncov.db",
		DataDir:  ".",
		Sources: Sources{
			DXY:    Source{Path: "01_download_data", Enabled: true, Tags: []string{"getAreaStat"}},
			JHU:    Source{Path: jhu + "/csse_covid_19_daily_reports", Enabled: true},
			JHUUS:  Source{Path: jhu + "/csse_covid_19_daily_reports_us", Enabled: true},
			HGIS:   Source{Path: "HGIS_UW_data", Enabled: true},
			HKSARG: Source{Path: "01_download_data/hksarg_pr.csv", Enabled: true},
		},
		Reference: Reference{
			Places:          RefFile{Path: "gis/chn_admbnda_adm2_ocha/chn_admbnda_adm2_ocha.csv", Delimiter: ";"},
			UNPlaces:        RefFile{Path: "countries.json"},
			Populations:     RefFile{Path: "01_download_data/world_population.csv", Delimiter: ";"},
			WikiPopulations: RefFile{Path: "01_download_data/wiki_populations.csv", Delimiter: ";"},
			UIDISOFIPS:      RefFile{Path: jhu + "/UID_ISO_FIPS_LookUp_Table.csv"},
		},
		Summary: Summary{ThresholdMetric: "confirmed", Threshold: 100, Rounding: 4},
		Serve:   Serve{Addr: ":8420"},
	}
}

// Load reads path over the defaults and validates the result. A missing
// file yields the defaults.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Namespace() + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Resolve makes a configured path absolute against DataDir. Absolute paths
// and the empty string are returned unchanged.
func (c Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}
