package somssdk

import (
	"context"
	"net/http"
	"strings"
)

// VoiceClient talks to the voice service's HTTP API.
type VoiceClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewVoiceClient creates a client for the voice service at baseURL.
func NewVoiceClient(baseURL, apiKey string, opts ...ClientOption) *VoiceClient {
	return &VoiceClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: newHTTPClient(opts...)}
}

// Synthesize converts text directly to audio.
func (c *VoiceClient) Synthesize(ctx context.Context, text, zone, tone string) (audioURL string, err error) {
	body := map[string]string{"text": text, "zone": zone, "tone": tone}
	var resp struct {
		AudioURL string `json:"audio_url"`
		Text     string `json:"text"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/api/voice/synthesize", body, &resp); err != nil {
		return "", err
	}
	return resp.AudioURL, nil
}

// Announce synthesizes a task announcement.
func (c *VoiceClient) Announce(ctx context.Context, text, zone, taskID string) (audioURL string, err error) {
	body := map[string]string{"text": text, "zone": zone, "task_id": taskID}
	var resp struct {
		AudioURL string `json:"audio_url"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/api/voice/announce", body, &resp); err != nil {
		return "", err
	}
	return resp.AudioURL, nil
}

// RandomRejection returns one rejection line, generating on demand if
// the stock is empty.
func (c *VoiceClient) RandomRejection(ctx context.Context) (text, audioURL string, err error) {
	var resp struct {
		Text     string `json:"text"`
		AudioURL string `json:"audio_url"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/api/voice/rejection/random", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Text, resp.AudioURL, nil
}

// RejectionStatus reports how many rejection lines are in stock.
func (c *VoiceClient) RejectionStatus(ctx context.Context) (count, max int, err error) {
	var resp struct {
		Count int `json:"stock_count"`
		Max   int `json:"max_stock"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/api/voice/rejection/status", nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Count, resp.Max, nil
}

// Feedback records a thumbs up/down against a recent announcement or
// rejection line, keyed by feedbackType ("rejection" or "announcement").
func (c *VoiceClient) Feedback(ctx context.Context, feedbackType, zone, taskID string) error {
	body := map[string]string{"zone": zone, "task_id": taskID}
	return doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/api/voice/feedback/"+feedbackType, body, nil)
}
