package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"fraudulert-backend/internal/models"
)

// ErrScorerUnavailable marks timeouts and transport failures against the
// scoring service, distinct from a rejected or malformed upload.
var ErrScorerUnavailable = errors.New("scoring service unavailable")

// ScorerClient talks to the external inference service. The service is
// opaque: it accepts a transactions file and returns probability/category
// pairs per transaction.
type ScorerClient struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

type scorerResponse struct {
	ModelUsed   string             `json:"model_used"`
	Predictions []models.ScoredTxn `json:"predictions"`
}

func NewScorerClient() *ScorerClient {
	baseURL := os.Getenv("SCORER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	model := os.Getenv("SCORER_MODEL")
	if model == "" {
		model = "xgboost"
	}

	return &ScorerClient{
		baseURL:      baseURL,
		defaultModel: model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ScoreTransactions uploads a transactions file for scoring and returns
// the scored pairs plus the model the service actually used. Categories
// missing from the response are derived from the probability thresholds.
func (c *ScorerClient) ScoreTransactions(ctx context.Context, file io.Reader, filename, model string) ([]models.ScoredTxn, string, error) {
	if model == "" {
		model = c.defaultModel
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/predict?model_type=" + url.QueryEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, "", fmt.Errorf("%w: status %d", ErrScorerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("scorer status %d: %s", resp.StatusCode, string(raw))
	}

	var out scorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("decode scorer response: %w", err)
	}

	modelUsed := out.ModelUsed
	if modelUsed == "" {
		modelUsed = model
	}
	for i := range out.Predictions {
		if out.Predictions[i].FraudCategory == "" {
			out.Predictions[i].FraudCategory = models.CategorizeFraud(out.Predictions[i].FraudProbability)
		}
	}

	return out.Predictions, modelUsed, nil
}
