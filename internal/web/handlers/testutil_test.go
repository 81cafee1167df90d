package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/database/mock"
	"github.com/kozaktomas/face-centroids/internal/engine"
)

const testDim = 8

// testConfig creates a minimal config for testing.
func testConfig() *config.Config {
	return &config.Config{
		Algorithm: config.AlgorithmDefaults{
			ModelVersion:     "buffalo_l-r100",
			CentroidVersion:  3,
			TrimOutliers:     true,
			EnableClustering: true,
			FacePageSize:     100,
		},
		Suggestions: config.SuggestionDefaults{
			MinSimilarity:     0.55,
			MaxResults:        50,
			PerCentroidLimit:  200,
			UnassignedOnly:    true,
			ExcludePrototypes: true,
		},
	}
}

type handlerEnv struct {
	engine *engine.Engine
	store  *mock.CentroidStore
	source *mock.FaceSource
	index  *mock.Index
}

func newHandlerEnv() *handlerEnv {
	store := mock.NewCentroidStore()
	source := mock.NewFaceSource()
	index := mock.NewIndex()
	return &handlerEnv{
		engine: engine.New(store, source, index, zerolog.Nop()),
		store:  store,
		source: source,
		index:  index,
	}
}

// addFaces adds n faces for a person around the given axis.
func (env *handlerEnv) addFaces(personID string, axis, n int, startID int64) {
	for i := 0; i < n; i++ {
		v := make([]float32, testDim)
		v[axis] = 1
		for j := range v {
			v[j] += float32(((i*31+j*7)%13)-6) * 0.002
		}
		var normSq float64
		for _, x := range v {
			normSq += float64(x) * float64(x)
		}
		norm := float32(math.Sqrt(normSq))
		for j := range v {
			v[j] /= norm
		}
		env.source.AddFace(database.StoredFace{
			ID:        startID + int64(i),
			PersonID:  personID,
			Embedding: v,
			Model:     "buffalo_l-r100",
			Dim:       testDim,
		})
	}
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
