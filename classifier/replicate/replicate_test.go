package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/garden/classifier"
)

func TestScore_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "wait", r.Header.Get("Prefer"))

		var req predictionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "v1", req.Version)
		assert.Equal(t, classifier.LabelText(), req.Input.Text)
		assert.Equal(t, "data:image/png;base64,AAAA", req.Input.Image)

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "p1",
			"status": "succeeded",
			"output": []float64{0.95, 0.02, 0.01, 0, 0, 0, 0, 0, 0, 0.02},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", "v1", time.Second)
	probs, err := client.Score(context.Background(), classifier.NewRequest("data:image/png;base64,AAAA"))

	require.NoError(t, err)
	assert.Len(t, probs, 10)
	assert.Equal(t, 0.95, probs[0])
}

func TestScore_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "v1", time.Second)
	_, err := client.Score(context.Background(), classifier.NewRequest("data:"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestScore_PredictionFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "p2",
			"status": "failed",
			"error":  "cuda out of memory",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "v1", time.Second)
	_, err := client.Score(context.Background(), classifier.NewRequest("data:"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cuda out of memory")
}

func TestScore_MalformedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"p3","status":"succeeded","output":"not an array"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "v1", time.Second)
	_, err := client.Score(context.Background(), classifier.NewRequest("data:"))

	assert.Error(t, err)
}
