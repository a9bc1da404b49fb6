package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zlnvch/garden/classifier"
)

// Client scores images against a hosted CLIP model through the predictions API.
type Client struct {
	baseURL    string
	token      string
	version    string
	httpClient *http.Client
}

func NewClient(baseURL, token, version string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		version: version,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictionRequest struct {
	Version string             `json:"version"`
	Input   classifier.Request `json:"input"`
}

type predictionResponse struct {
	Id     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Score runs one synchronous prediction. There is no retry: a failure here
// ends the submission.
func (c *Client) Score(ctx context.Context, req classifier.Request) ([]float64, error) {
	body, err := json.Marshal(predictionRequest{Version: c.version, Input: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	// Block until the prediction finishes instead of polling
	httpReq.Header.Set("Prefer", "wait")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("prediction API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var prediction predictionResponse
	if err := json.Unmarshal(respBody, &prediction); err != nil {
		return nil, fmt.Errorf("failed to parse prediction response: %w", err)
	}

	if prediction.Status != "succeeded" {
		if prediction.Error != nil {
			return nil, fmt.Errorf("prediction %s %s: %v", prediction.Id, prediction.Status, prediction.Error)
		}
		return nil, fmt.Errorf("prediction %s did not finish: %s", prediction.Id, prediction.Status)
	}

	var probabilities []float64
	if err := json.Unmarshal(prediction.Output, &probabilities); err != nil {
		return nil, fmt.Errorf("failed to parse prediction output: %w", err)
	}
	if len(probabilities) == 0 {
		return nil, errors.New("prediction returned no probabilities")
	}

	return probabilities, nil
}
