package segue

import (
	"context"
	"fmt"
	"strings"
)

// RetrievalResult is a scored piece of content from a knowledge lookup.
// Score is in [0, 1]; higher means more relevant.
type RetrievalResult struct {
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Retriever searches a knowledge source and returns ranked results.
// The rag_query handler depends only on this contract; the atlassian
// package provides a wiki-backed implementation.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error)
}

// GetContext runs a retrieval and joins the results into a single context
// string for prompt assembly. Returns "" when nothing relevant was found.
func GetContext(ctx context.Context, r Retriever, query string, topK int) (string, error) {
	results, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if title := res.Metadata["title"]; title != "" {
			fmt.Fprintf(&b, "## %s\n\n", title)
		}
		b.WriteString(res.Content)
	}
	return b.String(), nil
}
