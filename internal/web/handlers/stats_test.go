package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsGet(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)

	// One rebuild: one active centroid, one vector in the index.
	centroids := NewCentroidsHandler(env.engine, testConfig())
	getReq := httptest.NewRequest(http.MethodGet, "/persons/alice/centroids", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()
	centroids.Get(rec, getReq)
	assertStatusCode(t, rec, http.StatusOK)

	handler := NewStatsHandler(env.store, env.index)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec = httptest.NewRecorder()

	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp StatsResponse
	parseJSONResponse(t, rec, &resp)
	if resp.CentroidsByStatus["active"] != 1 {
		t.Errorf("active = %d, want 1", resp.CentroidsByStatus["active"])
	}
	if resp.IndexedVectors != 1 {
		t.Errorf("indexed_vectors = %d, want 1", resp.IndexedVectors)
	}
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	HealthCheck(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp map[string]string
	parseJSONResponse(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}
