// Package backend talks to the assistant's text backend, used by the batch
// fallback path when live streaming is unavailable.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// FallbackReply is returned whenever the backend cannot be reached or answers
// with garbage. The user always gets something speakable.
const FallbackReply = "Sorry, I couldn't process that request. Please try again."

// Request is one assistant query.
type Request struct {
	UserID    string `json:"userId"`
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	Platform  string `json:"platform"`
	InputType string `json:"inputType"`
}

// Response is the backend's answer.
type Response struct {
	AIResponse string `json:"aiResponse"`
	Meta       struct {
		ShouldSpeak bool `json:"shouldSpeak"`
	} `json:"meta"`
}

// Client posts queries to the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ask sends one query and returns the reply text plus whether it should be
// spoken aloud. Every failure degrades to the fallback reply; the error is
// logged, never surfaced to the conversation.
func (c *Client) Ask(ctx context.Context, req Request) (string, bool) {
	reply, speak, err := c.ask(ctx, req)
	if err != nil {
		log.Printf("backend: query failed, using fallback: %v", err)
		return FallbackReply, true
	}
	return reply, speak
}

func (c *Client) ask(ctx context.Context, req Request) (string, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assistant/query", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("backend returned %d: %s", resp.StatusCode, data)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if out.AIResponse == "" {
		return "", false, fmt.Errorf("backend returned empty reply")
	}
	return out.AIResponse, out.Meta.ShouldSpeak, nil
}
