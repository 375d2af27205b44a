// Package llmclient talks to a local Ollama-compatible text-generation
// backend: an availability probe (GET /api/tags) and a single-shot
// generation call (POST /api/generate), guarded by a host/port allow-list,
// a circuit breaker, and a rate limiter.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/resilience"
)

var (
	defaultAllowedHosts = map[string]bool{"localhost": true, "127.0.0.1": true}
	defaultAllowedPorts = map[string]bool{"80": true, "443": true, "8080": true, "11434": true}
)

// Config configures a Client.
type Config struct {
	URL          string
	Model        string
	Timeout      time.Duration
	Temperature  float64
	TopP         float64
	AllowedHosts map[string]bool // nil uses defaultAllowedHosts
	AllowedPorts map[string]bool // nil uses defaultAllowedPorts
	RateLimit    rate.Limit // requests/sec, 0 disables limiting
}

// Client is the engine's LLM backend collaborator.
type Client struct {
	baseURL     string
	model       string
	timeout     time.Duration
	temperature float64
	topP        float64

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// New validates cfg's endpoint against the host/port allow-list and
// constructs a Client. It fails construction (ErrCodeConfigInvalid) rather
// than allow an unreviewed LLM endpoint.
func New(cfg Config) (*Client, error) {
	if err := validateEndpoint(cfg.URL, cfg.AllowedHosts, cfg.AllowedPorts); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}

	return &Client{
		baseURL:     cfg.URL,
		model:       cfg.Model,
		timeout:     timeout,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     limiter,
		breaker:     resilience.NewCircuitBreaker(resilience.DefaultOllamaCircuitBreakerConfig("llmclient")),
	}, nil
}

func validateEndpoint(rawURL string, allowedHosts, allowedPorts map[string]bool) error {
	if allowedHosts == nil {
		allowedHosts = defaultAllowedHosts
	}
	if allowedPorts == nil {
		allowedPorts = defaultAllowedPorts
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ErrConfigInvalid(fmt.Sprintf("ollama.url is not a valid URL: %v", err))
	}

	host := u.Hostname()
	if !allowedHosts[host] {
		return domain.ErrConfigInvalid(fmt.Sprintf("ollama.url host %q is not allow-listed", host))
	}

	port := u.Port()
	if port == "" {
		port = defaultPortForScheme(u.Scheme)
	}
	if !allowedPorts[port] {
		return domain.ErrConfigInvalid(fmt.Sprintf("ollama.url port %q is not allow-listed", port))
	}

	return nil
}

func defaultPortForScheme(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// Close releases the client's idle HTTP connections. Safe to call even if
// no request was ever made.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Available probes the backend's model listing endpoint with a 5s cap,
// for the Healer's healthCheck to report.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate issues a single, non-streaming completion request for prompt,
// honoring ctx's deadline and the client's own configured timeout,
// whichever is tighter. It never returns the raw LLM text as trusted data
// — callers must still validate anything it returns against the driver.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", domain.ErrLLMTimeout()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
		},
	})
	if err != nil {
		return "", domain.ErrLLMMalformed(err.Error())
	}

	result, err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) (interface{}, error) {
		return c.doGenerate(ctx, body)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.ErrLLMTimeout()
		}
		return "", domain.ErrLLMUnavailable(err)
	}

	return result.(string), nil
}

func (c *Client) doGenerate(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}

	return decoded.Response, nil
}

