package atlassian

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/rest/api/content/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		cql := r.URL.Query().Get("cql")
		if !strings.Contains(cql, `space="DOC"`) || !strings.Contains(cql, "vpn") {
			t.Errorf("cql = %q", cql)
		}
		w.Write([]byte(`{"results":[
			{"id":"100","title":"VPN Setup","body":{"storage":{"value":"<h1>VPN Setup</h1><p>Install the client and sign in with your corporate account. Connections are limited to the office subnets.</p>"}}},
			{"id":"101","title":"Empty Page","body":{"storage":{"value":"  "}}}
		]}`))
	}))
	defer srv.Close()

	r := NewPageRetriever(Config{BaseURL: srv.URL}, "DOC")
	results, err := r.Retrieve(context.Background(), "how do I set up the vpn", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (empty body skipped)", len(results))
	}
	got := results[0]
	if !strings.Contains(got.Content, "corporate account") {
		t.Errorf("content = %q", got.Content)
	}
	if got.Metadata["title"] != "VPN Setup" || got.Metadata["id"] != "100" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.Score <= 0 || got.Score > 1 {
		t.Errorf("score = %v", got.Score)
	}
}

func TestRetrieveDefaultsTopK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "3" {
			t.Errorf("limit = %q, want 3", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	r := NewPageRetriever(Config{BaseURL: srv.URL}, "")
	results, err := r.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
