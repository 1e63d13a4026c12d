package main

import (
	"arboria/internal/app"
	"arboria/internal/config"
	"arboria/internal/core"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageMemory
	cfg.Blob.Driver = config.BlobMemory
	a, err := app.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	return a
}

func execute(t *testing.T, a *app.App, args ...string) (string, string, error) {
	t.Helper()
	root := buildRootCmd(func(*cobra.Command, *rootOptions) (*app.App, error) { return a, nil })
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func seed(t *testing.T, a *app.App) core.Farm {
	t.Helper()
	ctx := context.Background()
	farm, err := a.Service.CreateFarm(ctx, core.FarmInput{Name: "Clos des Figues", GridRows: 6, GridCols: 6})
	require.NoError(t, err)
	_, err = a.Service.PlaceTree(ctx, farm.ID, "B2", core.TreeAttributes{Species: "Figuier"})
	require.NoError(t, err)
	return farm
}

func TestFarmsAndStats(t *testing.T) {
	a := memoryApp(t)
	farm := seed(t, a)

	out, _, err := execute(t, a, "farms")
	require.NoError(t, err)
	assert.Contains(t, out, "Clos des Figues")
	assert.Contains(t, out, "6x6")

	out, _, err = execute(t, a, "stats", farm.ID)
	require.NoError(t, err)
	var stats core.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)

	_, _, err = execute(t, a, "stats")
	assert.Error(t, err)
	_, _, err = execute(t, a, "stats", "missing")
	assert.Error(t, err)
}

func TestExportValidateImport(t *testing.T) {
	a := memoryApp(t)
	farm := seed(t, a)
	path := filepath.Join(t.TempDir(), "export.json")

	_, errOut, err := execute(t, a, "export", "--farm", farm.ID, "--out", path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "exported 1 farms, 1 trees")

	out, _, err := execute(t, a, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	out, _, err = execute(t, a, "import", path)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 farms, 1 trees, 0 interventions\n", out)

	broken := filepath.Join(t.TempDir(), "broken.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(broken, []byte(strings.Replace(string(data), `"B2"`, `"Q2"`, 1)), 0o600))
	_, _, err = execute(t, a, "validate", broken)
	assert.Error(t, err)
	_, errOut, err = execute(t, a, "import", broken)
	assert.Error(t, err)
	assert.Contains(t, errOut, "Q2")

	out, _, err = execute(t, a, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "1.0"`)
}

func TestArchiveListRestore(t *testing.T) {
	a := memoryApp(t)
	seed(t, a)

	out, _, err := execute(t, a, "archive")
	require.NoError(t, err)
	var rec struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.NotEmpty(t, rec.ID)

	out, _, err = execute(t, a, "archives")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID)
	assert.Contains(t, out, "(all)")

	out, _, err = execute(t, a, "restore", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "restored 1 farms, 1 trees, 0 interventions\n", out)
}

func TestTraceFlagUsesJSONTracer(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"storage":{"driver":"memory"},"blob":{"driver":"memory"}}`), 0o600))

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env"), "--trace", "farms"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "NAME")
	assert.Contains(t, errOut.String(), `"operation":"list_farms"`)
}
