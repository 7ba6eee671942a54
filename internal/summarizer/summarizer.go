// Package summarizer relays aggregated activity to a local language model
// and returns its natural-language behavioral analysis.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tabwatch/tabwatch/internal/config"
)

// Client calls an Ollama-style generate endpoint. Failures are returned to
// the caller; the core never retries automatically.
type Client struct {
	url    string
	model  string
	client *http.Client
}

func New(cfg config.SummarizerConfig) *Client {
	return &Client{
		url:    cfg.URL,
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize asks the model for a behavioral analysis of the per-domain
// activity and the tracking digest.
func (c *Client) Summarize(ctx context.Context, activity map[string]int64, trackingSummary string) (string, error) {
	activityJSON, err := json.MarshalIndent(activity, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`
You are a productivity and behaviour analysis assistant with expertise in privacy, security, IP geolocation, and user engagement metrics.

USER BROWSING ACTIVITY:
%s

USER INTERACTION TRACKING:
%s

Based on this comprehensive user data, provide analysis on:

1. **Behaviour Summary** - Key patterns in browsing habits
2. **IP & Geographic Analysis** - Analysis of IP addresses
3. **Privacy & Security Assessment** - Microphone/camera access, autofill usage, sensitive fields, and potential risks
4. **Gentle Improvement Suggestions** - Privacy-respecting recommendations, framed positively, to enhance user security and productivity without being intrusive

Format your response with clear sections and bullet points.
`, activityJSON, trackingSummary)

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer: status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Response == "" {
		return "", fmt.Errorf("summarizer: empty response")
	}

	return out.Response, nil
}
