package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "ncov.db"), schema.Default(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(ctx))

	l := ledger.New(clockwork.NewFakeClockAt(time.Date(2020, 3, 3, 0, 0, 0, 0, time.UTC)), "run-1")
	confirmed := []int64{5, 8, 12, 20, 35}
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		for i, c := range confirmed {
			date := time.Date(2020, 3, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
			for _, prov := range []string{"Hubei", "Beijing"} {
				if _, err := tx.Insert(ctx, schema.DailyReports, map[string]any{
					"date": date, "country": "China", "province": prov,
					"confirmed": c, "deaths": int64(0), "recovered": int64(0), "active": c,
				}, store.Append); err != nil {
					return err
				}
			}
		}
		return l.MarkProcessed(ctx, tx, "03-05-2020.csv", ledger.KindDailyReports, 10)
	}))

	agg, err := aggregate.New(db, aggregate.DefaultOptions(), slog.Default(), nil)
	require.NoError(t, err)
	_, err = agg.RebuildAll(ctx)
	require.NoError(t, err)
	return db
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRouter(t *testing.T) {
	db := tempStore(t)
	m := metrics.New()
	m.Summary(4, 20)
	h := NewRouter(db, m, slog.Default())

	var entities entitiesResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/entities", &entities))
	assert.Equal(t, []string{"China", "China/Beijing", "China/Hubei", "World"}, entities.Entities)

	var summary summaryResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/summary/China/Hubei", &summary))
	assert.Equal(t, "China/Hubei", summary.Entity)
	require.Len(t, summary.Rows, 5)
	assert.Equal(t, "2020-03-01", summary.Rows[0].Date)
	assert.Nil(t, summary.Rows[0].GrowthRate1Day)
	assert.Equal(t, -1.0, summary.Rows[4].GrowthRate7Day)

	var th thresholdResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/threshold/China/Hubei?threshold=10", &th))
	assert.Equal(t, "confirmed", th.Metric)
	require.Len(t, th.Points, 3)
	assert.Equal(t, int64(1), th.Points[0].Day)
	assert.Equal(t, int64(12), th.Points[0].Confirmed)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/summary/Atlantis", &errBody))
	assert.Contains(t, errBody["error"], "Atlantis")
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/threshold/China?metric=tested", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/threshold/China?threshold=-4", nil))

	var led ledgerResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/ledger?source=JHU", &led))
	require.Len(t, led.Entries, 1)
	assert.Equal(t, "03-05-2020.csv", led.Entries[0].Filename)
	require.Equal(t, http.StatusOK, get(t, h, "/v1/ledger?source=HGIS", &led))
	assert.Empty(t, led.Entries)

	var health healthResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/health", &health))
	assert.Equal(t, 4, health.Entities)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ncov_summary_rows 20")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type rpcResult struct {
	Result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func rpc(t *testing.T, srv *server.MCPServer, method string, params any) rpcResult {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	resp := srv.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out rpcResult
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestMCPTools(t *testing.T) {
	db := tempStore(t)
	srv := server.NewMCPServer("ncov", "test", server.WithToolCapabilities(false))
	RegisterMCPTools(srv, NewEndpoints(db, nil))

	list := rpc(t, srv, "tools/list", map[string]any{})
	var names []string
	for _, tool := range list.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_entities", "get_summary", "threshold_series"}, names)

	call := func(name string, args map[string]any) rpcResult {
		t.Helper()
		res := rpc(t, srv, "tools/call", map[string]any{"name": name, "arguments": args})
		require.NotEmpty(t, res.Result.Content)
		return res
	}

	res := call("threshold_series", map[string]any{"entity": "China", "threshold": 20})
	require.False(t, res.Result.IsError, res.Result.Content[0].Text)
	var th thresholdResponse
	require.NoError(t, json.Unmarshal([]byte(res.Result.Content[0].Text), &th))
	// China sums both provinces: 10, 16, 24, 40, 70.
	require.Len(t, th.Points, 3)
	assert.Equal(t, int64(24), th.Points[0].Confirmed)

	res = call("get_summary", map[string]any{})
	assert.True(t, res.Result.IsError)
	assert.True(t, strings.Contains(res.Result.Content[0].Text, "entity is required"))

	res = call("get_summary", map[string]any{"entity": "Atlantis"})
	assert.True(t, res.Result.IsError)
}
