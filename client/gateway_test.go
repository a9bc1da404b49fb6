package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/models"
)

func TestHTTPGateway_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/classify", r.URL.Path)

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "data:image/png;base64,AAAA", req.ImageData)

		probs := map[string]float64{}
		for _, l := range classifier.Labels {
			probs[l] = 0
		}
		probs["a doodle of a flower"] = 0.95
		json.NewEncoder(w).Encode(map[string]any{
			"isFlower":      true,
			"probabilities": probs,
		})
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	result, err := g.Classify(context.Background(), "data:image/png;base64,AAAA")

	require.NoError(t, err)
	assert.True(t, result.IsFlower())
	assert.Equal(t, 0.95, result.Probability("a doodle of a flower"))
}

func TestHTTPGateway_ClassifyMissingLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probabilities":{"a doodle of a flower":0.9}}`))
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	_, err := g.Classify(context.Background(), "data:")

	assert.ErrorIs(t, err, classifier.ErrLabelMismatch)
}

func TestHTTPGateway_ClassifyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"Failed to analyze image"}`))
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	_, err := g.Classify(context.Background(), "data:")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to analyze image")
}

func TestHTTPGateway_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/submissions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "eggplants", r.FormValue("plantType"))
		assert.Equal(t, "0.97", r.FormValue("probability"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("png-bytes"), data)

		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn/eggplants-1.png"})
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	url, err := g.Submit(context.Background(), models.CategoryEggplants, []byte("png-bytes"), 0.97)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/eggplants-1.png", url)
}

func TestHTTPGateway_SubmitQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":        "Rate limit exceeded",
			"message":      CaptionQuota,
			"rateLimited":  true,
			"currentCount": 10,
		})
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	_, err := g.Submit(context.Background(), models.CategoryFlowers, []byte("x"), 0.95)

	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 10, quotaErr.CurrentCount)
	assert.Equal(t, CaptionQuota, quotaErr.Message)
}

func TestHTTPGateway_SubmitBadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing required fields"}`))
	}))
	defer server.Close()

	g := NewHTTPGateway(server.URL, time.Second)
	_, err := g.Submit(context.Background(), models.CategoryFlowers, []byte("x"), 0.95)

	require.Error(t, err)
	var quotaErr *QuotaExceededError
	assert.False(t, errors.As(err, &quotaErr))
	assert.Contains(t, err.Error(), "status 400")
}
