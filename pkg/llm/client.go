package llm

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

	"github.com/synaptica-ai/cid-coder/pkg/common/httpclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 64 << 20

var errServerStatus = errors.New("server error status")

type ClientOptions struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	EmbedTimeout time.Duration
	// MaxAttempts above 1 retries timeouts and 5xx answers.
	MaxAttempts int
	// RateLimit is calls per second across the process; 0 disables throttling.
	RateLimit  float64
	RateBurst  int
	OAuth      *clientcredentials.Config
	HTTPClient *http.Client
}

// Client talks to an Ollama-compatible server (/api/generate, /api/embeddings).
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
	timeout      time.Duration
	embedTimeout time.Duration
	attempts     int
}

func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.New(0)
	}
	if opts.OAuth != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = opts.OAuth.Client(ctx)
	}

	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		http:         httpClient,
		timeout:      opts.Timeout,
		embedTimeout: opts.EmbedTimeout,
		attempts:     opts.MaxAttempts,
	}
	if c.timeout <= 0 {
		c.timeout = 120 * time.Second
	}
	if c.embedTimeout <= 0 {
		c.embedTimeout = 30 * time.Second
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	body := generateRequest{Model: req.Model, Prompt: req.Prompt}
	if req.Structured {
		body.Format = "json"
	}
	if req.Deterministic {
		body.Options = map[string]interface{}{"temperature": 0, "seed": 42}
	}

	var out generateResponse
	if err := c.call(ctx, c.timeout, "/api/generate", body, &out); err != nil {
		return Response{}, err
	}
	return Complete(req, out.Response)
}

func (c *Client) Embed(ctx context.Context, model, text string) ([]float64, error) {
	var out embedResponse
	if err := c.call(ctx, c.embedTimeout, "/api/embeddings", embedRequest{Model: model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedOutput)
	}
	return out.Embedding, nil
}

func (c *Client) call(ctx context.Context, timeout time.Duration, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	retriable := func(err error) bool {
		return errors.Is(err, ErrTimeout) || errors.Is(err, errServerStatus)
	}
	return httpclient.Retry(ctx, c.attempts, 500*time.Millisecond, retriable, func() error {
		return c.do(ctx, timeout, path, payload, out)
	})
}

func (c *Client) do(ctx context.Context, timeout time.Duration, path string, payload []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(callCtx, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransportError(callCtx, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w: %s returned %d: %s", ErrUnavailable, errServerStatus, path, resp.StatusCode, snippet(body))
		}
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, snippet(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, path, err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, path string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || httpclient.IsRetriable(err) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, path, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
