package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/lumi/internal/cli"
	"github.com/hyperjump/lumi/internal/models"
)

// apiClient talks to a running lumi server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Above the server's 60s request timeout so its error body reaches us.
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

// do sends body as JSON (when non-nil) and decodes a 200 response into out (when non-nil).
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErrorMessage(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiErrorMessage extracts the "error" field of a JSON error body, or returns the body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != nil {
		return *e.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *apiClient) chat(ctx context.Context, sessionID, message string) (*cli.ChatOutput, error) {
	var resp models.ChatResponse
	req := &models.ChatRequest{SessionID: sessionID, Message: message}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("server returned no response")
	}
	return &cli.ChatOutput{SessionID: resp.SessionID, Answer: *resp.Response}, nil
}

func (c *apiClient) turns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	var out struct {
		Turns []*models.Turn `json:"turns"`
	}
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/turns"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}
