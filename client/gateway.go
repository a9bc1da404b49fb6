package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/models"
)

// Gateway is the client's view of the server.
type Gateway interface {
	Classify(ctx context.Context, imageDataURI string) (classifier.Result, error)
	Submit(ctx context.Context, category models.Category, png []byte, probability float64) (string, error)
}

// QuotaExceededError is returned by Submit when the server refuses a flower
// because the identity already reached its quota.
type QuotaExceededError struct {
	CurrentCount int
	Message      string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded (%d): %s", e.CurrentCount, e.Message)
}

// HTTPGateway talks to the garden REST API.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	ImageData string `json:"imageData"`
}

type classifyResponse struct {
	Probabilities map[string]float64 `json:"probabilities"`
}

type submitResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RateLimited  bool   `json:"rateLimited"`
	CurrentCount int    `json:"currentCount"`
}

// Classify sends the artifact for scoring and rebuilds the result in label
// order, so the admission rules run on the same table the server uses.
func (g *HTTPGateway) Classify(ctx context.Context, imageDataURI string) (classifier.Result, error) {
	body, err := json.Marshal(classifyRequest{ImageData: imageDataURI})
	if err != nil {
		return classifier.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/classify", bytes.NewReader(body))
	if err != nil {
		return classifier.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return classifier.Result{}, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifier.Result{}, responseError(resp)
	}

	var cr classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return classifier.Result{}, fmt.Errorf("failed to decode classify response: %w", err)
	}

	probs := make([]float64, len(classifier.Labels))
	for i, label := range classifier.Labels {
		p, ok := cr.Probabilities[label]
		if !ok {
			return classifier.Result{}, fmt.Errorf("%w: missing %q", classifier.ErrLabelMismatch, label)
		}
		probs[i] = p
	}
	return classifier.NewResult(probs)
}

func (g *HTTPGateway) Submit(ctx context.Context, category models.Category, png []byte, probability float64) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", string(category)+".png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(png); err != nil {
		return "", err
	}
	if err := mw.WriteField("plantType", string(category)); err != nil {
		return "", err
	}
	if err := mw.WriteField("probability", strconv.FormatFloat(probability, 'f', -1, 64)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/submissions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", responseError(resp)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if sr.URL == "" {
		return "", errors.New("submit response has no url")
	}
	return sr.URL, nil
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.RateLimited {
		return &QuotaExceededError{CurrentCount: er.CurrentCount, Message: er.Message}
	}
	if er.Error != "" {
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
