package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/seguehq/segue"
)

// Confluence creates and reads pages via the Confluence Cloud REST API.
type Confluence struct {
	cfg      Config
	spaceKey string
	client   *http.Client
	logger   *slog.Logger
}

// ConfluenceOption configures a Confluence client.
type ConfluenceOption func(*Confluence)

// WithConfluenceHTTPClient replaces the HTTP client (used by tests).
func WithConfluenceHTTPClient(c *http.Client) ConfluenceOption {
	return func(w *Confluence) { w.client = c }
}

// WithConfluenceLogger sets the structured logger.
func WithConfluenceLogger(l *slog.Logger) ConfluenceOption {
	return func(w *Confluence) { w.logger = l }
}

// NewConfluence creates a Confluence client for one space.
func NewConfluence(cfg Config, spaceKey string, opts ...ConfluenceOption) *Confluence {
	w := &Confluence{
		cfg:      cfg,
		spaceKey: spaceKey,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BaseURL returns the site root used for link synthesis.
func (w *Confluence) BaseURL() string { return w.cfg.BaseURL }

type contentBody struct {
	Storage struct {
		Value          string `json:"value"`
		Representation string `json:"representation"`
	} `json:"storage"`
}

type contentPayload struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Body contentBody `json:"body"`
}

type contentResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  *struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		Base  string `json:"base"`
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// CreatePage creates a page with a storage-format HTML body.
func (w *Confluence) CreatePage(ctx context.Context, title, bodyHTML string) (segue.ToolResult, error) {
	payload := contentPayload{Type: "page", Title: title}
	payload.Space.Key = w.spaceKey
	payload.Body.Storage.Value = bodyHTML
	payload.Body.Storage.Representation = "storage"

	var resp contentResponse
	endpoint := w.cfg.BaseURL + "/wiki/rest/api/content"
	if err := doJSON(ctx, w.client, w.cfg, http.MethodPost, endpoint, payload, &resp); err != nil {
		return segue.ToolResult{}, err
	}
	if resp.ID == "" {
		return segue.ToolResult{}, segue.NewToolError(segue.ErrProtocol, "page created but no id returned")
	}
	return segue.ToolResult{
		Success: true,
		ID:      resp.ID,
		Link:    w.pageLink(resp),
		Title:   resp.Title,
	}, nil
}

// CreatePageMarkdown renders a Markdown body to storage HTML and creates
// the page.
func (w *Confluence) CreatePageMarkdown(ctx context.Context, title, markdown string) (segue.ToolResult, error) {
	html, err := renderMarkdown(markdown)
	if err != nil {
		return segue.ToolResult{}, segue.NewToolError(segue.ErrInternal, "render markdown: %v", err)
	}
	return w.CreatePage(ctx, title, html)
}

// GetPage retrieves a page with its storage body. The body is returned as
// the result's Raw field.
func (w *Confluence) GetPage(ctx context.Context, id string) (segue.ToolResult, error) {
	var resp contentResponse
	endpoint := fmt.Sprintf("%s/wiki/rest/api/content/%s?expand=body.storage", w.cfg.BaseURL, url.PathEscape(id))
	if err := doJSON(ctx, w.client, w.cfg, http.MethodGet, endpoint, nil, &resp); err != nil {
		return segue.ToolResult{}, err
	}
	res := segue.ToolResult{
		Success: true,
		ID:      resp.ID,
		Link:    w.pageLink(resp),
		Title:   resp.Title,
	}
	if resp.Body != nil {
		res.Raw = resp.Body.Storage.Value
	}
	return res, nil
}

// TenantInfo returns the site's cloud id from the edge endpoint.
func (w *Confluence) TenantInfo(ctx context.Context) (string, error) {
	var resp struct {
		CloudID string `json:"cloudId"`
	}
	endpoint := w.cfg.BaseURL + "/_edge/tenant_info"
	if err := doJSON(ctx, w.client, w.cfg, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if resp.CloudID == "" {
		return "", segue.NewToolError(segue.ErrProtocol, "tenant info has no cloud id")
	}
	return resp.CloudID, nil
}

// SpaceID maps a space key to its numeric id.
func (w *Confluence) SpaceID(ctx context.Context, key string) (string, error) {
	var resp struct {
		ID json.Number `json:"id"`
	}
	endpoint := w.cfg.BaseURL + "/wiki/rest/api/space/" + url.PathEscape(key)
	if err := doJSON(ctx, w.client, w.cfg, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if resp.ID.String() == "" {
		return "", segue.NewToolError(segue.ErrProtocol, "space %s has no id", key)
	}
	return resp.ID.String(), nil
}

// pageLink prefers the webui link the API returned, falling back to the
// viewpage URL.
func (w *Confluence) pageLink(resp contentResponse) string {
	if resp.Links.WebUI != "" {
		base := resp.Links.Base
		if base == "" {
			base = w.cfg.BaseURL + "/wiki"
		}
		return base + resp.Links.WebUI
	}
	return w.cfg.BaseURL + "/wiki/pages/viewpage.action?pageId=" + resp.ID
}

// renderMarkdown converts Markdown to HTML acceptable as storage format.
func renderMarkdown(md string) (string, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var _ segue.WikiAPI = (*Confluence)(nil)
