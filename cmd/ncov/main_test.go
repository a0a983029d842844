package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBatchRun(t *testing.T) {
	dir := t.TempDir()
	jhu := filepath.Join(dir, "JHU_data/2019-nCoV/csse_covid_19_data/csse_covid_19_daily_reports")
	require.NoError(t, os.MkdirAll(jhu, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jhu, "01-22-2020.csv"), []byte(
		"Province/State,Country/Region,Last Update,Confirmed,Deaths,Recovered\n"+
			"Hubei,Mainland China,1/22/2020 17:00,444,17,28\n"), 0o644))

	base := []string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--db", filepath.Join(dir, "ncov.db"),
		"--data-dir", dir,
	}

	out, err := execute(t, append(base, "--first-run", "--update")...)
	require.NoError(t, err)
	assert.Contains(t, out, "first-run")
	assert.Contains(t, out, "update")
	assert.Contains(t, out, "summary: 2 entities")

	out, err = execute(t, append(base, "ledger", "--source", "JHU")...)
	require.NoError(t, err)
	assert.Contains(t, out, "01-22-2020.csv")

	// A file whose key field cannot be parsed makes the run fail.
	require.NoError(t, os.WriteFile(filepath.Join(jhu, "01-23-2020.csv"), []byte(
		"Province/State,Country/Region,Last Update,Confirmed,Deaths,Recovered\n"+
			"Hubei,Mainland China,whenever,444,17,28\n"), 0o644))
	_, err = execute(t, append(base, "--update")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 file(s) failed")
}

func TestNoModePrintsHelp(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "--first-run")
}
