package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned when a capability has no endpoint or artifact configured.
var ErrDisabled = errors.New("inference capability disabled")

// Config holds the remote inference endpoint settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type remote struct {
	httpClient *http.Client
	baseURL    string
}

func newRemote(cfg Config) (remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return remote{}, ErrDisabled
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return remote{httpClient: &http.Client{Timeout: timeout}, baseURL: base}, nil
}

func (r remote) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("inference status %d: %v", resp.StatusCode, apiErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RemoteClassifier calls a text classification service.
type RemoteClassifier struct {
	remote
}

// NewRemoteClassifier returns ErrDisabled when no base URL is configured.
func NewRemoteClassifier(cfg Config) (*RemoteClassifier, error) {
	r, err := newRemote(cfg)
	if err != nil {
		return nil, err
	}
	return &RemoteClassifier{remote: r}, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *RemoteClassifier) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type classifyResponse struct {
	Probability *float64 `json:"probability"`
}

// Probability posts the text to {base}/classify and returns the phishing probability.
func (c *RemoteClassifier) Probability(ctx context.Context, text string) (float64, error) {
	if !c.Enabled() {
		return 0, ErrDisabled
	}
	var decoded classifyResponse
	if err := c.post(ctx, "/classify", map[string]string{"text": text}, &decoded); err != nil {
		return 0, err
	}
	if decoded.Probability == nil {
		return 0, errors.New("classifier probability missing")
	}
	p := *decoded.Probability
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("classifier probability out of range: %v", p)
	}
	return p, nil
}
