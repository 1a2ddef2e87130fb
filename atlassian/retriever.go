package atlassian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/seguehq/segue"
)

// PageRetriever serves knowledge lookups from Confluence page content via
// CQL search. It implements segue.Retriever.
type PageRetriever struct {
	cfg      Config
	spaceKey string
	client   *http.Client
	logger   *slog.Logger
}

// RetrieverOption configures a PageRetriever.
type RetrieverOption func(*PageRetriever)

// WithRetrieverHTTPClient replaces the HTTP client (used by tests).
func WithRetrieverHTTPClient(c *http.Client) RetrieverOption {
	return func(r *PageRetriever) { r.client = c }
}

// WithRetrieverLogger sets the structured logger.
func WithRetrieverLogger(l *slog.Logger) RetrieverOption {
	return func(r *PageRetriever) { r.logger = l }
}

// NewPageRetriever creates a retriever over one space. An empty spaceKey
// searches the whole site.
func NewPageRetriever(cfg Config, spaceKey string, opts ...RetrieverOption) *PageRetriever {
	r := &PageRetriever{
		cfg:      cfg,
		spaceKey: spaceKey,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type searchResponse struct {
	Results []contentResponse `json:"results"`
}

// Retrieve searches page content matching the query and returns readable
// text extracts, best match first.
func (r *PageRetriever) Retrieve(ctx context.Context, query string, topK int) ([]segue.RetrievalResult, error) {
	if topK <= 0 {
		topK = 3
	}
	cql := fmt.Sprintf(`type=page AND text ~ %q`, query)
	if r.spaceKey != "" {
		cql = fmt.Sprintf(`space=%q AND %s`, r.spaceKey, cql)
	}
	endpoint := fmt.Sprintf("%s/wiki/rest/api/content/search?cql=%s&limit=%d&expand=body.storage",
		r.cfg.BaseURL, url.QueryEscape(cql), topK)

	var resp searchResponse
	if err := doJSON(ctx, r.client, r.cfg, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]segue.RetrievalResult, 0, len(resp.Results))
	for i, page := range resp.Results {
		body := ""
		if page.Body != nil {
			body = page.Body.Storage.Value
		}
		text := extractText(body, r.cfg.BaseURL)
		if text == "" {
			continue
		}
		results = append(results, segue.RetrievalResult{
			Content: text,
			// CQL results arrive relevance-ordered but unscored; rank
			// position stands in for a score.
			Score: 1.0 - float32(i)*0.1,
			Metadata: map[string]string{
				"title": page.Title,
				"id":    page.ID,
				"url":   r.cfg.BaseURL + "/wiki/pages/viewpage.action?pageId=" + page.ID,
			},
		})
	}
	return results, nil
}

// extractText turns storage-format HTML into plain readable text, with a
// Markdown conversion as the fallback when readability finds no article.
func extractText(html, base string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	parsed, _ := url.Parse(base)
	article, err := readability.FromReader(strings.NewReader("<html><body>"+html+"</body></html>"), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}
	return strings.TrimSpace(segue.HTMLToMarkdown(html))
}

var _ segue.Retriever = (*PageRetriever)(nil)
