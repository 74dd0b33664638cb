package regressor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/YDUTSEVOLDN/Subway/auth"
)

// HTTPConfig addresses a remote model server.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Width   int               `json:"width"`
	Timeout time.Duration     `json:"timeout"`
	Headers map[string]string `json:"headers"`
	// Auth enables OAuth2 client credentials when TokenURL is set.
	Auth auth.Conf `json:"auth"`
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// HTTP posts the whole batch to a model server and reads one prediction per
// row back.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	cred   *auth.ClientCred
}

// NewHTTP returns an HTTP regressor. A zero Timeout defaults to 10s.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http regressor: url is required")
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("http regressor: width must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	h := &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.Auth.Enabled() {
		h.cred = auth.NewClientCred(cfg.Auth)
	}
	return h, nil
}

// InputWidth returns the configured width.
func (h *HTTP) InputWidth() int { return h.cfg.Width }

// Predict sends {"instances": batch} and expects {"predictions": [...]}. A
// 401 answer triggers one token refresh and retry when auth is configured.
func (h *HTTP) Predict(ctx context.Context, batch [][]float64) ([]float64, error) {
	if len(batch) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, err
	}
	resp, err := h.post(ctx, body)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && h.cred != nil {
		_ = resp.Body.Close()
		if _, err = h.cred.ForceRefresh(ctx); err != nil {
			return nil, err
		}
		resp, err = h.post(ctx, body)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("model server returned %d predictions for %d rows", len(out.Predictions), len(batch))
	}
	return out.Predictions, nil
}

func (h *HTTP) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
	if h.cred != nil {
		if err := h.cred.SetAuthHeader(ctx, req); err != nil {
			return nil, err
		}
	}
	return h.client.Do(req)
}
