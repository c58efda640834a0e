package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SynthConfig points at the speech-synthesis HTTP service. The engine
// itself is a black box; this client only knows its wire contract.
type SynthConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SynthClient is a pooled HTTP client for the synthesis endpoint.
type SynthClient struct {
	cfg    SynthConfig
	client *http.Client
}

// NewSynthClient creates a SynthClient, defaulting Timeout to 60s per
// the voice-synth timeout budget.
func NewSynthClient(cfg SynthConfig) *SynthClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &SynthClient{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
}

type synthRequest struct {
	Text string `json:"text"`
	Tone string `json:"tone,omitempty"`
}

// Synthesize calls the synthesis endpoint and returns raw audio bytes.
func (c *SynthClient) Synthesize(ctx context.Context, text, tone string) ([]byte, error) {
	body, err := json.Marshal(synthRequest{Text: text, Tone: tone})
	if err != nil {
		return nil, fmt.Errorf("voice: marshal synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: create synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: synth request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice: read synth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice: synth endpoint returned status %d: %s", resp.StatusCode, string(audio))
	}
	return audio, nil
}
