package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-centroids/internal/engine"
)

func TestOutliersFind(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 59, 1)
	env.addFaces("alice", 3, 1, 500)
	handler := NewOutliersHandler(env.engine, testConfig())

	// Build centroids first; the outlier endpoint is read-only.
	centroids := NewCentroidsHandler(env.engine, testConfig())
	getReq := httptest.NewRequest(http.MethodGet, "/persons/alice/centroids", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()
	centroids.Get(rec, getReq)
	assertStatusCode(t, rec, http.StatusOK)

	body := strings.NewReader(`{"limit": 3}`)
	req := httptest.NewRequest(http.MethodPost, "/persons/alice/outliers", body)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec = httptest.NewRecorder()

	handler.Find(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var report engine.OutlierReport
	parseJSONResponse(t, rec, &report)
	if report.TotalFaces != 60 {
		t.Errorf("total_faces = %d, want 60", report.TotalFaces)
	}
	if len(report.Outliers) != 3 {
		t.Fatalf("got %d outliers, want limit of 3", len(report.Outliers))
	}
	if report.Outliers[0].FaceID != 500 {
		t.Errorf("top outlier = %d, want 500", report.Outliers[0].FaceID)
	}
}

func TestOutliersNoCentroid(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	handler := NewOutliersHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/persons/alice/outliers", nil)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Find(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "person has no active centroid")
}
