// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Configuration constants for the chat backend API.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of an error response body is read
	// back into a StatusError.
	MaxErrorBodySize = 4 * 1024

	// streamChannelBuffer sizes the event channel so a slow consumer
	// does not immediately stall the network read.
	streamChannelBuffer = 64
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared client for non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout,
	// cancellation is context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend REST API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	streaming  *http.Client
}

// NewClient creates a client for the given base URL (e.g.
// "http://localhost:5000/api") with a default model.
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: sharedHTTPClient,
		streaming:  sharedStreamingClient,
	}
}

// IsConfigured reports whether the client has a backend URL.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// Model returns the client's default model.
func (c *Client) Model() string {
	return c.model
}

// SetModel changes the client's default model.
func (c *Client) SetModel(model string) {
	c.model = model
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Stream sends a streaming chat request and returns a channel of tagged
// events. The channel is closed when the stream terminates for any
// reason; after EventDone or EventError no further events are sent.
//
// A non-2xx status is returned as an error immediately; no stream body
// is consumed in that case.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req.Stream = true
	if req.Model == "" {
		req.Model = c.model
	}

	resp, err := c.post(ctx, c.streaming, "/chat/stream", req, true)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, streamChannelBuffer)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		// Cancellation surfaces as a body read error inside pumpEvents;
		// the http transport closes the body when ctx is done.
		pumpEvents(resp.Body, events)
	}()

	return events, nil
}

// =============================================================================
// NON-STREAMING CHAT
// =============================================================================

// Chat sends a non-streaming chat request and returns the full response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req.Stream = false
	if req.Model == "" {
		req.Model = c.model
	}

	resp, err := c.post(ctx, c.httpClient, "/chat", req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	return &out, nil
}

// Models returns the models advertised by the backend.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var models []ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return models, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// post issues a JSON POST and verifies the status code. The caller owns
// the response body on success.
func (c *Client) post(ctx context.Context, client *http.Client, path string, body any, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	return resp, nil
}

// statusError drains a bounded slice of the body into a StatusError.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	return &StatusError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}
