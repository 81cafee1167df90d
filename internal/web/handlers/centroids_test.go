package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCentroidsGet(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	handler := NewCentroidsHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/persons/alice/centroids", nil)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp CentroidsResponse
	parseJSONResponse(t, rec, &resp)
	if resp.PersonID != "alice" {
		t.Errorf("person_id = %q, want alice", resp.PersonID)
	}
	if !resp.Rebuilt {
		t.Error("first read should rebuild")
	}
	if len(resp.Centroids) != 1 {
		t.Fatalf("got %d centroids, want 1", len(resp.Centroids))
	}
	if resp.Centroids[0].Type != "global" || resp.Centroids[0].Status != "active" {
		t.Errorf("unexpected centroid: %+v", resp.Centroids[0])
	}
	if resp.Centroids[0].NFaces != 30 {
		t.Errorf("n_faces = %d, want 30", resp.Centroids[0].NFaces)
	}

	// Second read serves the cached set.
	rec = httptest.NewRecorder()
	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusOK)
	parseJSONResponse(t, rec, &resp)
	if resp.Rebuilt {
		t.Error("second read should not rebuild")
	}
}

func TestCentroidsGetNoFaces(t *testing.T) {
	env := newHandlerEnv()
	handler := NewCentroidsHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/persons/nobody/centroids", nil)
	req = requestWithChiParams(req, map[string]string{"id": "nobody"})
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusUnprocessableEntity)
	assertJSONError(t, rec, "person has no confirmed faces")
}

func TestCentroidsRebuildForces(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	handler := NewCentroidsHandler(env.engine, testConfig())

	getReq := httptest.NewRequest(http.MethodGet, "/persons/alice/centroids", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()
	handler.Get(rec, getReq)
	assertStatusCode(t, rec, http.StatusOK)

	rebuildReq := httptest.NewRequest(http.MethodPost, "/persons/alice/centroids/rebuild", nil)
	rebuildReq = requestWithChiParams(rebuildReq, map[string]string{"id": "alice"})
	rec = httptest.NewRecorder()
	handler.Rebuild(rec, rebuildReq)

	assertStatusCode(t, rec, http.StatusOK)
	var resp CentroidsResponse
	parseJSONResponse(t, rec, &resp)
	if !resp.Rebuilt {
		t.Error("rebuild endpoint must rebuild even when records are fresh")
	}
}

func TestCentroidsInvalidate(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	handler := NewCentroidsHandler(env.engine, testConfig())

	getReq := httptest.NewRequest(http.MethodGet, "/persons/alice/centroids", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()
	handler.Get(rec, getReq)
	assertStatusCode(t, rec, http.StatusOK)

	invReq := httptest.NewRequest(http.MethodPost, "/persons/alice/invalidate", nil)
	invReq = requestWithChiParams(invReq, map[string]string{"id": "alice"})
	rec = httptest.NewRecorder()
	handler.Invalidate(rec, invReq)
	assertStatusCode(t, rec, http.StatusOK)

	// The next read rebuilds.
	rec = httptest.NewRecorder()
	handler.Get(rec, getReq)
	var resp CentroidsResponse
	parseJSONResponse(t, rec, &resp)
	if !resp.Rebuilt {
		t.Error("read after invalidate should rebuild")
	}
}

func TestCentroidsMissingID(t *testing.T) {
	env := newHandlerEnv()
	handler := NewCentroidsHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/persons//centroids", nil)
	req = requestWithChiParams(req, map[string]string{})
	rec := httptest.NewRecorder()

	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusBadRequest)
}
