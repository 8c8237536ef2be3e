package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteAsker asks questions through a running server's /rag/invoke endpoint.
type RemoteAsker struct {
	url    string
	client *http.Client
}

// NewRemoteAsker creates a RemoteAsker for the server at baseURL.
func NewRemoteAsker(baseURL string, timeout time.Duration) *RemoteAsker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteAsker{
		url:    strings.TrimRight(baseURL, "/") + "/rag/invoke",
		client: &http.Client{Timeout: timeout},
	}
}

type invokeRequest struct {
	Input struct {
		Question string `json:"question"`
	} `json:"input"`
}

type invokeResponse struct {
	Output string `json:"output"`
}

// Route posts question and returns the server's output.
func (a *RemoteAsker) Route(ctx context.Context, question string) (string, error) {
	var body invokeRequest
	body.Input.Question = question
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("invoke: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Output, nil
}
