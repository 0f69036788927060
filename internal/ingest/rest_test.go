package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

func TestRESTMeasurements(t *testing.T) {
	out := make(chan model.Measurement, 4)
	srv := NewRESTServer(config.NewStaticManager(config.DefaultConfig()), out, nil)
	body := `[
		{"parameter_id":"ph","value":3.41,"batch_id":"L1"},
		{"parameter_id":"ph","value":3.42,"valid":false},
		{"parameter_id":"ph","value":"n/a"}
	]`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Excluded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "record 3")

	require.Len(t, out, 1)
	m := <-out
	assert.Equal(t, "rest", m.Source)
	assert.Equal(t, "L1", m.BatchID)
}

func TestRESTRejects(t *testing.T) {
	out := make(chan model.Measurement, 1)
	srv := NewRESTServer(config.NewStaticManager(config.DefaultConfig()), out, nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/measurements", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader("  ")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader(`[{"value":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader(`{"value":`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 1")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader(`{"value":1}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no parameter and no default")
}

func TestRESTAcceptsCSVExport(t *testing.T) {
	out := make(chan model.Measurement, 4)
	srv := NewRESTServer(config.NewStaticManager(config.DefaultConfig()), out, nil)
	body := "parameter_id,value,batch_id\nph,3.40,L1\nph,3.45,L2\n"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measurements", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, out, 2)
	assert.Equal(t, "L1", (<-out).BatchID)
	assert.Equal(t, 3.45, (<-out).Value)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
