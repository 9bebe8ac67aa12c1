package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPAnswerer delegates answer generation to an upstream inference
// service over HTTP. Requests are traced via otelhttp.
type HTTPAnswerer struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPAnswerer creates an answerer calling the given endpoint.
func NewHTTPAnswerer(endpoint string) *HTTPAnswerer {
	return &HTTPAnswerer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   DefaultAnswerTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type answerRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Answer implements Answerer.
func (a *HTTPAnswerer) Answer(ctx context.Context, doc Document, question string) (string, error) {
	payload, err := json.Marshal(answerRequest{
		Filename: doc.Filename,
		Content:  base64.StdEncoding.EncodeToString(doc.Content),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode answer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build answer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read answer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("answerer returned status %d", resp.StatusCode)
	}

	var out answerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode answer response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("answerer error: %s", out.Error)
	}
	if out.Answer == "" {
		return "", fmt.Errorf("answerer returned an empty answer")
	}
	return out.Answer, nil
}

var _ Answerer = (*HTTPAnswerer)(nil)

// WithTimeout overrides the client timeout.
func (a *HTTPAnswerer) WithTimeout(d time.Duration) *HTTPAnswerer {
	a.httpClient.Timeout = d
	return a
}
