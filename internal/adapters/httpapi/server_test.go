package httpapi

import (
	"arboria/internal/adapters/archive"
	"arboria/internal/blob"
	"arboria/internal/core"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	t       *testing.T
	svc     *core.Service
	handler http.Handler
	reg     *prometheus.Registry
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	svc := core.NewInMemoryService(nil)
	reg := prometheus.NewRegistry()
	obs, logs := observer.New(zap.InfoLevel)
	opts = append([]Option{
		WithLogger(zap.New(obs)),
		WithArchives(archive.NewExporter(svc, blob.NewMemory())),
	}, opts...)
	srv, err := New(svc, reg, reg, opts...)
	require.NoError(t, err)
	return &harness{t: t, svc: svc, handler: srv.Handler(), reg: reg, logs: logs}
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) farm(name string, rows, cols int) core.Farm {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/farms", map[string]any{"name": name, "grid_rows": rows, "grid_cols": cols})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Farm](h.t, rec)
}

func (h *harness) tree(farmID, pos, species string) core.Tree {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/trees", map[string]any{"farm_id": farmID, "position": pos, "species": species})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Tree](h.t, rec)
}

func TestRootHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, APIVersion, decode[map[string]string](t, rec)["version"])

	rec = h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arboria_http_requests_total")
	assert.GreaterOrEqual(t, mustGatherCount(t, h.reg), 2)

	rec = h.do(http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/api/trees/duplicate:")

	rec = h.do(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(core.NewInMemoryService(nil), reg, reg)
	require.NoError(t, err)
	_, err = New(core.NewInMemoryService(nil), reg, reg)
	assert.Error(t, err)
}

func TestMaxBodyBytesCapsRequests(t *testing.T) {
	h := newHarness(t, WithMaxBodyBytes(256))
	h.farm("Small", 5, 5)

	rec := h.do(http.MethodPost, "/api/farms", map[string]any{"name": strings.Repeat("x", 1024)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body too large")

	rec = h.do(http.MethodPost, "/api/import", `{"version":1,"farms":[{"id":"`+strings.Repeat("f", 512)+`"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body too large")
}

func TestFarmLifecycle(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Les Oliviers", 0, 0)
	assert.Equal(t, 20, farm.GridRows)

	rec := h.do(http.MethodGet, "/api/farms/"+farm.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPut, "/api/farms/"+farm.ID, map[string]any{"name": "Renamed", "grid_rows": 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decode[core.Farm](t, rec).Name)

	rec = h.do(http.MethodPut, "/api/farms/"+farm.ID, map[string]any{"grid_cols": 30})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", string(decode[errorBody](t, rec).Kind))

	rec = h.do(http.MethodPost, "/api/farms", map[string]any{"name": "Tiny", "grid_rows": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.tree(farm.ID, "B2", "Olivier")
	rec = h.do(http.MethodGet, "/api/farms/"+farm.ID+"/grid", nil)
	grid := decode[core.GridView](t, rec)
	require.Len(t, grid.Cells, 1)
	assert.Equal(t, "B2", grid.Cells[0].Position)

	rec = h.do(http.MethodGet, "/api/farms", nil)
	assert.Len(t, decode[[]core.Farm](t, rec), 1)

	rec = h.do(http.MethodDelete, "/api/farms/"+farm.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodDelete, "/api/farms/"+farm.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodGet, "/api/trees?farm_id="+farm.ID, nil)
	assert.Empty(t, decode[[]core.Tree](t, rec))
}

func TestTreeErrorsMapToStatuses(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Small", 5, 5)
	h.tree(farm.ID, "c3", "Olivier")

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"occupied", map[string]any{"farm_id": farm.ID, "position": "C3", "species": "Figuier"}, http.StatusConflict, "cell_occupied"},
		{"out of grid", map[string]any{"farm_id": farm.ID, "position": "F1", "species": "Figuier"}, http.StatusUnprocessableEntity, "invalid_position"},
		{"unknown farm", map[string]any{"farm_id": "nope", "position": "A1", "species": "Figuier"}, http.StatusNotFound, "not_found"},
		{"no species", map[string]any{"farm_id": farm.ID, "position": "A1"}, http.StatusBadRequest, "invalid_input"},
		{"bad health", map[string]any{"farm_id": farm.ID, "position": "A1", "species": "x", "health": "sick"}, http.StatusBadRequest, "invalid_input"},
		{"bad json", "{", http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/trees", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, string(decode[errorBody](t, rec).Kind))
		})
	}
}

func TestTreeUpdatePhotosAndDuplicate(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Verger", 5, 5)
	tree := h.tree(farm.ID, "A1", "Pommier")

	rec := h.do(http.MethodPut, "/api/trees/"+tree.ID, map[string]any{"health": "poor", "position": "a1", "notes": "scab"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[core.Tree](t, rec)
	assert.Equal(t, "poor", string(updated.Health))
	assert.Equal(t, "scab", updated.Notes)

	rec = h.do(http.MethodPut, "/api/trees/"+tree.ID, map[string]any{"position": "B1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPut, "/api/trees/"+tree.ID, map[string]any{"position": " A01 ", "notes": "same cell"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A1", decode[core.Tree](t, rec).Position)
	rec = h.do(http.MethodPut, "/api/trees/"+tree.ID, map[string]any{"position": "Z99"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	photo := "data:image/png;base64,iVBORw0KGgo="
	rec = h.do(http.MethodPost, "/api/trees/"+tree.ID+"/photos", map[string]any{"photo": photo})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[photoResponse](t, rec).PhotoCount)
	rec = h.do(http.MethodPost, "/api/trees/"+tree.ID+"/photos", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodDelete, "/api/trees/"+tree.ID+"/photos/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodDelete, "/api/trees/"+tree.ID+"/photos/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodDelete, "/api/trees/"+tree.ID+"/photos/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[photoResponse](t, rec).PhotoCount)

	rec = h.do(http.MethodPost, "/api/trees/duplicate", map[string]any{"source_tree_id": tree.ID, "target_position": "E5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dup := decode[core.Tree](t, rec)
	assert.Equal(t, "Pommier", dup.Species)
	assert.Equal(t, tree.ID, dup.DuplicatedFrom)
	rec = h.do(http.MethodPost, "/api/trees/duplicate", map[string]any{"source_tree_id": tree.ID, "target_position": "E5"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodDelete, "/api/trees/"+tree.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/trees/"+tree.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncAndSearch(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Sync", 5, 5)
	existing := h.tree(farm.ID, "A1", "Cerisier")

	rec := h.do(http.MethodPost, "/api/trees/sync", map[string]any{"trees": []map[string]any{
		{"farm_id": farm.ID, "position": "B1", "species": "Abricotier"},
		{"id": existing.ID, "variety": "Burlat"},
		{"farm_id": farm.ID, "position": "A1", "species": "Prunier"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.SyncReport](t, rec)
	assert.Equal(t, 2, report.SyncedCount)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Index)

	rec = h.do(http.MethodGet, "/api/search?farm_id="+farm.ID+"&query=burl", nil)
	found := decode[[]core.Tree](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, existing.ID, found[0].ID)

	rec = h.do(http.MethodGet, "/api/search?species=ABRI&health=all", nil)
	assert.Len(t, decode[[]core.Tree](t, rec), 1)
	rec = h.do(http.MethodGet, "/api/search?health=sick", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterventionsAndStatistics(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Stats", 5, 5)
	tree := h.tree(farm.ID, "C3", "Olivier")

	rec := h.do(http.MethodPost, "/api/interventions", map[string]any{"tree_id": tree.ID, "type": "watering", "date": "2024-05-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[core.Intervention](t, rec)
	rec = h.do(http.MethodPost, "/api/interventions", map[string]any{"tree_id": tree.ID, "type": "pruning", "date": "2024-05-02T08:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/api/interventions", map[string]any{"tree_id": tree.ID, "type": "mowing"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_type", string(decode[errorBody](t, rec).Kind))
	rec = h.do(http.MethodPost, "/api/interventions", map[string]any{"tree_id": tree.ID, "type": "watering", "date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/interventions", map[string]any{"tree_id": "ghost", "type": "watering"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/interventions?tree_id="+tree.ID, nil)
	list := decode[[]core.Intervention](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "pruning", string(list[0].Type))
	rec = h.do(http.MethodGet, "/api/interventions", nil)
	assert.Len(t, decode[[]core.Intervention](t, rec), 2)

	rec = h.do(http.MethodGet, "/api/statistics/"+farm.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[core.Statistics](t, rec)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 2, stats.TotalInterventions)
	rec = h.do(http.MethodGet, "/api/statistics/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, "/api/interventions/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/interventions/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportImportValidate(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Export", 5, 5)
	h.tree(farm.ID, "A1", "Noyer")

	rec := h.do(http.MethodGet, "/api/export?farm_id="+farm.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := rec.Body.String()

	rec = h.do(http.MethodPost, "/api/import/validate", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.ValidationReport](t, rec).Valid)

	rec = h.do(http.MethodPost, "/api/import", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.ImportResult{Farms: 1, Trees: 1}, decode[importResponse](t, rec).Imported)

	broken := strings.Replace(doc, `"position":"A1"`, `"position":"Z9"`, 1)
	rec = h.do(http.MethodPost, "/api/import", broken)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "invalid_document", string(body.Kind))
	assert.NotEmpty(t, body.Problems)

	rec = h.do(http.MethodPost, "/api/import", "[1,2]")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodGet, "/api/export?farm_id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	farms, err := h.svc.ListFarms(context.Background())
	require.NoError(t, err)
	assert.Len(t, farms, 2)
}

func TestGeoJSONAndArchives(t *testing.T) {
	h := newHarness(t)
	farm := h.farm("Geo", 5, 5)
	rec := h.do(http.MethodPost, "/api/trees", map[string]any{
		"farm_id": farm.ID, "position": "A1", "species": "Olivier",
		"gps_coords": map[string]float64{"latitude": 43.6, "longitude": 3.9},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/farms/"+farm.ID+"/trees.geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"FeatureCollection"`)

	rec = h.do(http.MethodPost, "/api/archives?farm_id="+farm.ID, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[archive.Record](t, rec)
	assert.Len(t, created.Artifacts, 4)

	rec = h.do(http.MethodGet, "/api/archives", nil)
	assert.Len(t, decode[[]archive.Record](t, rec), 1)
	rec = h.do(http.MethodGet, "/api/archives/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/archives/"+created.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[importResponse](t, rec).Imported.Trees)
	rec = h.do(http.MethodPost, "/api/archives/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccessLogCarriesUser(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/api/farms", nil, UserHeader, "marie")
	entries := h.logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "marie", fields["user"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, "/api/farms", fields["path"])
}

func mustGatherCount(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, "arboria_http_requests_total")
	require.NoError(t, err)
	return n
}
