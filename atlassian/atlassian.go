// Package atlassian provides direct REST clients for Jira and Confluence
// Cloud. They serve as the dispatcher's fallback path when the remote tool
// server is absent or failing, and as a retrieval source for page content.
package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seguehq/segue"
)

// Config carries the connection settings shared by both clients.
type Config struct {
	// BaseURL is the site root, e.g. "https://example.atlassian.net".
	BaseURL string
	// Email and APIToken form the basic-auth credential pair.
	Email    string
	APIToken string
}

const defaultHTTPTimeout = 30 * time.Second

// doJSON sends a JSON request and decodes a JSON response into out (when
// non-nil). Non-2xx statuses come back as *segue.ErrHTTPStatus so callers
// inherit the status-to-kind mapping; transport failures map to
// connection errors.
func doJSON(ctx context.Context, client *http.Client, cfg Config, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.Email != "" || cfg.APIToken != "" {
		req.SetBasicAuth(cfg.Email, cfg.APIToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return segue.NewToolError(segue.ErrTimeout, "request to %s: %v", url, err)
		}
		return segue.NewToolError(segue.ErrConnection, "request to %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &segue.ErrHTTPStatus{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return segue.NewToolError(segue.ErrProtocol, "decode response from %s: %v", url, err)
	}
	return nil
}
