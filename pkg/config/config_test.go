package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ncov.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, []string{"getAreaStat"}, cfg.Sources.DXY.Tags)
	assert.Equal(t, ';', cfg.Reference.Places.Comma())
	assert.Equal(t, rune(0), cfg.Reference.UIDISOFIPS.Comma())
}

func TestLoad_OverridesKeepOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/ncov/ncov.db
data_dir: /srv/ncov
sources:
  jhu:
    path: jhu/daily
  hgis:
    enabled: false
summary:
  threshold: 50
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ncov/ncov.db", cfg.Database)
	assert.Equal(t, "jhu/daily", cfg.Sources.JHU.Path)
	assert.True(t, cfg.Sources.JHU.Enabled)
	assert.False(t, cfg.Sources.HGIS.Enabled)
	assert.Equal(t, int64(50), cfg.Summary.Threshold)
	assert.Equal(t, "confirmed", cfg.Summary.ThresholdMetric)
	assert.Equal(t, 4, cfg.Summary.Rounding)

	assert.Equal(t, "/srv/ncov/jhu/daily", cfg.Resolve(cfg.Sources.JHU.Path))
	assert.Equal(t, "/abs/file.csv", cfg.Resolve("/abs/file.csv"))
	assert.Equal(t, "", cfg.Resolve(""))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"metric", "summary:\n  threshold_metric: tested\n", "ThresholdMetric"},
		{"rounding", "summary:\n  rounding: 12\n", "Rounding"},
		{"delimiter", "reference:\n  places:\n    delimiter: ';;'\n", "Delimiter"},
		{"enabled source without path", "sources:\n  dxy:\n    path: ''\n", "Path"},
		{"database", "database: ''\n", "Database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [unclosed\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestByName(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.Sources.ByName(), 5)
	assert.Contains(t, cfg.Reference.ByName(), "uid_iso_fips")
}
