package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/leveldb"
	"github.com/mesh-intelligence/casebook/internal/metrics"
	"github.com/mesh-intelligence/casebook/internal/view"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	svc := casebook.New(metrics.Instrument(mem, rec), casebook.WithLogger(log))
	return NewRouter(RouterConfig{
		HealthHandler:   NewHealthHandler(),
		TestCaseHandler: NewTestCaseHandler(log, svc),
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t)
	rec := do(t, r, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateGetReplaceDelete(t *testing.T) {
	r := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/testcases", `{"id":"ignored","title":"Checkout discount","status":"DRAFT","tags":["cart","cart"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[types.TestCase](t, rec)
	assert.NotEqual(t, "ignored", created.ID)
	assert.Equal(t, []string{"cart"}, created.Tags)

	rec = do(t, r, http.MethodGet, "/api/testcases/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[types.TestCase](t, rec))

	rec = do(t, r, http.MethodPut, "/api/testcases/"+created.ID, `{"title":"Checkout discount","status":"PASSING"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replaced := decodeBody[types.TestCase](t, rec)
	assert.Equal(t, types.StatusPassing, replaced.Status)
	assert.Equal(t, created.CreatedAt, replaced.CreatedAt)
	assert.Empty(t, replaced.Tags, "PUT replaces the whole record")

	rec = do(t, r, http.MethodDelete, "/api/testcases/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/testcases/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeBody[ErrorEnvelope](t, rec)
	assert.Equal(t, "not_found", env.Error.Code)

	rec = do(t, r, http.MethodDelete, "/api/testcases/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting twice is fine")
}

func TestErrors(t *testing.T) {
	r := setupRouter(t)
	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"blank title", http.MethodPost, "/api/testcases", `{"title":"  "}`, http.StatusBadRequest, "invalid_record"},
		{"bad json body", http.MethodPost, "/api/testcases", `{"title":`, http.StatusBadRequest, "invalid_body"},
		{"replace unknown", http.MethodPut, "/api/testcases/nope", `{"title":"x"}`, http.StatusNotFound, "not_found"},
		{"malformed import", http.MethodPost, "/api/import", `[1,2]`, http.StatusBadRequest, "malformed_payload"},
		{"invalid import item", http.MethodPost, "/api/import", `[{"title":"a"},{}]`, http.StatusBadRequest, "invalid_record"},
		{"bad failingFirst", http.MethodGet, "/api/testcases?failingFirst=maybe", "", http.StatusBadRequest, "invalid_query"},
		{"bad export format", http.MethodGet, "/api/export?format=xml", "", http.StatusBadRequest, "invalid_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			env := decodeBody[ErrorEnvelope](t, rec)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestImportListExport(t *testing.T) {
	r := setupRouter(t)

	payload := `[
		{"id":"1","title":"Login","status":"PASSING","tags":["a"],"createdAt":1000},
		{"id":"2","title":"Refund","status":"FAILING","tags":["a","b"],"iteration":"Sprint 1","createdAt":2000},
		{"id":"3","title":"Export","tags":["b"],"createdAt":3000}
	]`
	rec := do(t, r, http.MethodPost, "/api/import?globalTag=web", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[casebook.ImportResult](t, rec)
	assert.Equal(t, 3, res.Created)

	rec = do(t, r, http.MethodGet, "/api/testcases?tag=a&tag=b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[view.Result](t, rec)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "2", list.Records[0].ID)
	assert.Equal(t, []string{"a", "b", "web"}, list.Tags)

	rec = do(t, r, http.MethodGet, "/api/testcases?failingFirst=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBody[view.Result](t, rec)
	require.Len(t, list.Records, 3)
	assert.Equal(t, "2", list.Records[0].ID)
	assert.Equal(t, view.Counts{Total: 3, Passing: 1, Failing: 1, Draft: 1}, list.Counts)

	rec = do(t, r, http.MethodGet, "/api/facets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	facets := decodeBody[casebook.Facets](t, rec)
	assert.Equal(t, []string{"Sprint 1", types.UnassignedIteration}, facets.Iterations)

	rec = do(t, r, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "casebook.json")
	exported := decodeBody[[]types.TestCase](t, rec)
	require.Len(t, exported, 3)
	assert.Equal(t, "1", exported[0].ID)

	rec = do(t, r, http.MethodGet, "/api/export?format=jsonl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, bytes.Count(rec.Body.Bytes(), []byte("\n")))

	rec = do(t, r, http.MethodDelete, "/api/testcases", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/testcases", "")
	list = decodeBody[view.Result](t, rec)
	assert.Empty(t, list.Records)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupRouter(t)
	do(t, r, http.MethodGet, "/api/testcases", "")

	rec := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `casebook_store_operations_total{operation="get_all",result="success"} 1`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zap.NewNop().Sugar(), RouterConfig{HealthHandler: NewHealthHandler()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
