package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

func (env *handlerEnv) indexFace(t *testing.T, id int64, personID string, axis int) {
	t.Helper()
	v := make([]float32, testDim)
	v[axis] = 1
	v[(axis+1)%testDim] = 0.05
	var normSq float64
	for _, x := range v {
		normSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(normSq))
	for i := range v {
		v[i] /= norm
	}
	payload := vectorindex.Payload{Kind: vectorindex.KindFace, FaceID: id, PersonID: personID}
	if err := env.index.Upsert(context.Background(), fmt.Sprintf("face:%d", id), v, payload); err != nil {
		t.Fatalf("index face %d: %v", id, err)
	}
}

func TestSuggestDefaults(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	env.indexFace(t, 1000, "", 0) // unassigned, close
	env.indexFace(t, 1001, "bob", 0)
	env.indexFace(t, 1002, "", 5) // far off-axis
	handler := NewSuggestionsHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/persons/alice/suggestions", nil)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Suggest(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp SuggestionResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(resp.Candidates), resp.Candidates)
	}
	if resp.Candidates[0].FaceID != 1000 {
		t.Errorf("candidate = %d, want 1000", resp.Candidates[0].FaceID)
	}
	if resp.Candidates[0].CentroidLabel != "global" {
		t.Errorf("label = %q, want global", resp.Candidates[0].CentroidLabel)
	}
}

func TestSuggestOverrides(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	env.indexFace(t, 1000, "", 0)
	env.indexFace(t, 1001, "", 0)
	handler := NewSuggestionsHandler(env.engine, testConfig())

	body := strings.NewReader(`{"max_results": 1, "min_similarity": 0.8}`)
	req := httptest.NewRequest(http.MethodPost, "/persons/alice/suggestions", body)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Suggest(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp SuggestionResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp.Candidates) != 1 {
		t.Errorf("got %d candidates, want max_results of 1", len(resp.Candidates))
	}
}

func TestSuggestNoAutoRebuild(t *testing.T) {
	env := newHandlerEnv()
	env.addFaces("alice", 0, 30, 1)
	env.indexFace(t, 1000, "", 0)
	handler := NewSuggestionsHandler(env.engine, testConfig())

	body := strings.NewReader(`{"no_auto_rebuild": true}`)
	req := httptest.NewRequest(http.MethodPost, "/persons/alice/suggestions", body)
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Suggest(rec, req)

	// No active centroids and no rebuild: empty, not an error.
	assertStatusCode(t, rec, http.StatusOK)
	var resp SuggestionResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp.Candidates) != 0 {
		t.Errorf("got %d candidates without active centroids, want 0", len(resp.Candidates))
	}
}

func TestSuggestInvalidBody(t *testing.T) {
	env := newHandlerEnv()
	handler := NewSuggestionsHandler(env.engine, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/persons/alice/suggestions", strings.NewReader("{broken"))
	req = requestWithChiParams(req, map[string]string{"id": "alice"})
	rec := httptest.NewRecorder()

	handler.Suggest(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, errInvalidRequestBody)
}
