// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultReadTimeout bounds the wait for each chunk of a stream,
	// including the wait for response headers.
	DefaultReadTimeout = 60 * time.Second

	// DefaultSiteURL is sent as HTTP-Referer to identify the calling application.
	DefaultSiteURL = "https://localhost:8501"

	// DefaultSiteName is sent as X-Title to identify the calling application.
	DefaultSiteName = "AI Chat Assistant"

	// UserAgent identifies this client.
	UserAgent = "chatstream/0.1.0"

	// MaxResponseSize caps non-streaming response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBody caps how much of a non-2xx body is kept in an APIError.
	maxErrorBody = 64 * 1024
)

var (
	// sharedHTTPClient is used for short requests such as ListModels.
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   30 * time.Second,
	}

	// sharedStreamingClient has no overall timeout; streams are bounded by
	// context cancellation and the per-chunk read timer.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

// newTransport returns a pooled transport that requires TLS 1.2 or newer.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Client is a client for the OpenRouter chat completions API.
// A Client holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL     string
	siteURL     string
	siteName    string
	readTimeout time.Duration
	httpClient  *http.Client
	streamHTTP  *http.Client
	verbose     bool
}

// NewClient creates a client pointed at the public OpenRouter endpoint.
func NewClient() *Client {
	return &Client{
		baseURL:     DefaultBaseURL,
		siteURL:     DefaultSiteURL,
		siteName:    DefaultSiteName,
		readTimeout: DefaultReadTimeout,
		httpClient:  sharedHTTPClient,
		streamHTTP:  sharedStreamingClient,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithSiteURL sets the HTTP-Referer value.
func (c *Client) WithSiteURL(url string) *Client {
	c.siteURL = url
	return c
}

// WithSiteName sets the X-Title value.
func (c *Client) WithSiteName(name string) *Client {
	c.siteName = name
	return c
}

// WithReadTimeout sets the per-chunk read timeout. Zero disables it.
func (c *Client) WithReadTimeout(timeout time.Duration) *Client {
	c.readTimeout = timeout
	return c
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
		c.streamHTTP = hc
	}
	return c
}

// WithVerbose enables debug logging of skipped frames.
func (c *Client) WithVerbose(verbose bool) *Client {
	c.verbose = verbose
	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ReadTimeout returns the per-chunk read timeout.
func (c *Client) ReadTimeout() time.Duration {
	return c.readTimeout
}

// =============================================================================
// API KEY HANDLING
// =============================================================================

// MaskKey returns a display form of an API key that reveals no key material.
// SECURITY: Never show any part of the key, use a fingerprint instead.
func MaskKey(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(apiKey), KeyFingerprint(apiKey))
}

// KeyFingerprint returns the first 8 hex chars of the key's SHA-256 digest.
func KeyFingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}

// LooksLikeAPIKey checks the "sk-or-" format without contacting OpenRouter.
func LooksLikeAPIKey(apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, "sk-or-") || len(apiKey) < 38 {
		return false
	}
	unique := make(map[rune]struct{})
	for _, r := range apiKey[6:] {
		unique[r] = struct{}{}
	}
	return len(unique) >= 10
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// setHeaders sets the required headers for OpenRouter API requests.
func (c *Client) setHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// logRequest logs an API request without headers or body.
func (c *Client) logRequest(req *http.Request, apiKey string) {
	log.Printf("API_REQUEST | method=%s path=%s key=%s", req.Method, req.URL.Path, KeyFingerprint(apiKey))
}

// logResponse logs an API response with duration.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API_RESPONSE | status=%d duration=%s", resp.StatusCode, duration.Round(time.Millisecond))
}

// readResponse reads a response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// MODELS
// =============================================================================

// Pricing represents the per-token pricing of a model.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo represents information about an available model.
type ModelInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContextSize int     `json:"context_length"`
	Pricing     Pricing `json:"pricing"`
}

// modelsResponse is the response envelope of GET /models.
type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// ListModels retrieves the list of available models from OpenRouter.
// The endpoint does not require a key; apiKey may be empty.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, apiKey)
	c.logRequest(req, apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError("request failed", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, newTransportError("read failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, body)
	}

	var models modelsResponse
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return models.Data, nil
}
