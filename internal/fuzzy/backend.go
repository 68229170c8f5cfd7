// Package fuzzy — backend.go
//
// Backend is the black-box contract to the fuzzy NER detector. The HTTP
// implementation talks to the local inference service; tests substitute a
// stub. Model internals (tokenization, decoding) stay behind this boundary.
package fuzzy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the detect call payload, matching the inference service wire
// format exactly.
type Request struct {
	Text              string             `json:"text"`
	Threshold         float64            `json:"threshold"`
	PerLabelThreshold map[string]float64 `json:"per_label_threshold,omitempty"`
	MaxLen            int                `json:"max_len"`
	StrideChars       int                `json:"stride_chars"`
}

// RawSpan is one span as returned by the backend, with offsets relative to
// the submitted (possibly chunked) text.
type RawSpan struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Response is the detect call result.
type Response struct {
	Spans    []RawSpan `json:"spans"`
	Provider string    `json:"provider"`
	Labels   []string  `json:"labels"`
}

// Backend is the black-box fuzzy detector.
type Backend interface {
	// Detect runs entity detection over req.Text. Any error means the
	// backend is unavailable for this call; the adapter falls back locally.
	Detect(ctx context.Context, req Request) (Response, error)

	// Healthy probes backend availability.
	Healthy(ctx context.Context) bool
}

const maxBackendResponse = 10 << 20 // 10 MB

// HTTPBackend calls the inference service over HTTP.
type HTTPBackend struct {
	endpoint string
	client   *http.Client
}

// NewHTTPBackend creates a backend client for the service at endpoint
// (e.g. "http://localhost:8000"). timeout bounds each detect call.
func NewHTTPBackend(endpoint string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Detect posts req to /detect and decodes the span list.
func (b *HTTPBackend) Detect(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal detect request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.endpoint+"/detect", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create detect request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("detect: backend returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBackendResponse))
	if err != nil {
		return Response{}, err
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("decode detect response: %w", err)
	}
	return out, nil
}

// Healthy probes GET /health.
func (b *HTTPBackend) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body
	return resp.StatusCode == http.StatusOK
}
