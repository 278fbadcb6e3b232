package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/specterwire/anomscan/internal/healing"
)

// Remote API defaults for the OpenAI-compatible analysis endpoint.
const (
	DefaultAPIBase = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
	DefaultTimeout = 120 * time.Second

	defaultSystemPrompt = "You are a file analysis assistant. Analyze the provided content " +
		"for anomalies and respond with a JSON object containing anomaly_score (0-1), " +
		"summary, security_concerns (list) and obfuscation_detected (bool)."
)

// ErrNoAPIKey is returned when an online client is constructed without
// credentials.
var ErrNoAPIKey = errors.New("api key required for online analysis")

// RemoteClient abstracts the online analysis backend. Implementations must
// return typed failures (*healing.Failure) for transport, auth, rate-limit
// and server errors so classification does not depend on message text.
type RemoteClient interface {
	// SubmitAnalysis sends a content sample for analysis and returns the
	// model's structured verdict.
	SubmitAnalysis(ctx context.Context, path string, sample []byte) (*Analysis, error)

	// Probe performs a lightweight connectivity and credential check.
	Probe(ctx context.Context) error
}

// ClientConfig configures the HTTP remote client.
type ClientConfig struct {
	APIKey       string
	APIBase      string
	Model        string
	Timeout      time.Duration
	SystemPrompt string
}

// HTTPClient talks to an OpenAI-compatible chat-completions API. The base
// URL is swappable at runtime so server-error recovery can fail over to an
// alternate endpoint.
type HTTPClient struct {
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client

	mu      sync.RWMutex
	baseURL string
}

// NewHTTPClient creates a remote client. The API key is required.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	return &HTTPClient{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		baseURL:      strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// BaseURL returns the endpoint currently in use.
func (c *HTTPClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL switches the client to a different endpoint.
func (c *HTTPClient) SetBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(url, "/")
}

func (c *HTTPClient) SubmitAnalysis(ctx context.Context, path string, sample []byte) (*Analysis, error) {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": fmt.Sprintf("File: %s\n\n%s", path, string(sample))},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL()+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &healing.Failure{Err: fmt.Errorf("api call: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, healing.NewFailure(resp.StatusCode,
			fmt.Errorf("api error: %s", strings.TrimSpace(string(snippet))))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, errors.New("empty completion response")
	}

	return parseVerdict(apiResp.Choices[0].Message.Content), nil
}

// parseVerdict extracts the structured verdict from the model output. An
// unparseable response is kept as a summary with a neutral score rather
// than treated as a failure.
func parseVerdict(content string) *Analysis {
	var verdict struct {
		AnomalyScore float64  `json:"anomaly_score"`
		Summary      string   `json:"summary"`
		Concerns     []string `json:"security_concerns"`
		Obfuscated   bool     `json:"obfuscation_detected"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return &Analysis{
			Method:       MethodOnline,
			AnomalyScore: NeutralScore,
			Summary:      content,
			CreatedAt:    time.Now(),
		}
	}

	score := verdict.AnomalyScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return &Analysis{
		Method:       MethodOnline,
		AnomalyScore: score,
		Summary:      verdict.Summary,
		Concerns:     verdict.Concerns,
		Obfuscated:   verdict.Obfuscated,
		CreatedAt:    time.Now(),
	}
}

func (c *HTTPClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &healing.Failure{Err: fmt.Errorf("probe: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return healing.NewFailure(resp.StatusCode, errors.New("probe rejected"))
	}
	return nil
}
