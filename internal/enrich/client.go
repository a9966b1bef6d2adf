package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOllamaURL = "http://127.0.0.1:11434"
	defaultModel     = "llama3.2"
	generateTimeout  = 120 * time.Second
)

// Client talks to a local Ollama instance and returns the JSON object
// extracted from the model's response.
type Client struct {
	baseURL string
	model   string
	hc      *http.Client
}

// NewClient connects to the Ollama server at baseURL. Empty arguments fall
// back to the local defaults.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		hc:      &http.Client{Timeout: generateTimeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends the prompt and returns the first balanced JSON object found
// in the model's reply.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generation backend returned %d: %s", resp.StatusCode, string(body))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}

	obj := ExtractJSONObject(gr.Response)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	return []byte(obj), nil
}

// ExtractJSONObject returns the first balanced top-level JSON object in s,
// or "" when none exists. Braces inside string literals are ignored.
func ExtractJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
