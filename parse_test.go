package segue

import (
	"errors"
	"strings"
	"testing"
)

func TestParseToolResponseRovoShape(t *testing.T) {
	raw := `{"id": "98765", "title": "Release Notes", "_links": {"webui": "/spaces/ENG/pages/98765"}}`
	res, err := parseToolResponse(raw, KindCreatePage, "https://example.atlassian.net")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ID != "98765" || res.Title != "Release Notes" {
		t.Errorf("result = %+v", res)
	}
	if res.Link != "https://example.atlassian.net/wiki/spaces/ENG/pages/98765" {
		t.Errorf("link = %q", res.Link)
	}
}

func TestParseToolResponseRovoAbsoluteWebUI(t *testing.T) {
	raw := `{"id": "5", "_links": {"webui": "https://other.example.com/p/5"}}`
	res, err := parseToolResponse(raw, KindCreatePage, "https://example.atlassian.net")
	if err != nil {
		t.Fatal(err)
	}
	if res.Link != "https://other.example.com/p/5" {
		t.Errorf("link = %q", res.Link)
	}
}

func TestParseToolResponseCustomSuccess(t *testing.T) {
	raw := `{"success": true, "ticket_id": "PROJ-42", "link": "https://example.atlassian.net/browse/PROJ-42"}`
	res, err := parseToolResponse(raw, KindCreateTicket, "https://example.atlassian.net")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ID != "PROJ-42" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseToolResponseCustomFailure(t *testing.T) {
	raw := `{"success": false, "error": "field summary is required"}`
	_, err := parseToolResponse(raw, KindCreateTicket, "")
	if err == nil {
		t.Fatal("want error")
	}
	if KindOf(err) != ErrProtocol {
		t.Errorf("kind = %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), "summary is required") {
		t.Errorf("err = %v", err)
	}
}

func TestParseToolResponseCustomFailureConflict(t *testing.T) {
	raw := `{"success": false, "error": "A page with this title already exists in the space"}`
	_, err := parseToolResponse(raw, KindCreatePage, "")
	if KindOf(err) != ErrConflict {
		t.Errorf("kind = %v, want conflict", KindOf(err))
	}
}

func TestParseToolResponseKeyOnly(t *testing.T) {
	raw := `{"key": "PROJ-7"}`
	res, err := parseToolResponse(raw, KindCreateTicket, "https://example.atlassian.net")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "PROJ-7" || res.Link != "https://example.atlassian.net/browse/PROJ-7" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseToolResponseIssueKeySynthesizedLink(t *testing.T) {
	raw := `{"issueKey": "PROJ-9"}`
	res, err := parseToolResponse(raw, KindCreateTicket, "https://example.atlassian.net/")
	if err != nil {
		t.Fatal(err)
	}
	if res.Link != "https://example.atlassian.net/browse/PROJ-9" {
		t.Errorf("link = %q", res.Link)
	}
}

func TestParseToolResponseGenericError(t *testing.T) {
	raw := `{"errorMessage": "space not found"}`
	_, err := parseToolResponse(raw, KindCreatePage, "")
	if err == nil || KindOf(err) != ErrProtocol {
		t.Errorf("err = %v", err)
	}
}

func TestParseToolResponseGenericNoSignal(t *testing.T) {
	raw := `{"status": "unknown"}`
	_, err := parseToolResponse(raw, KindCreatePage, "")
	if err == nil {
		t.Error("object with neither id nor error should be a protocol error")
	}
}

func TestParseToolResponseNumericID(t *testing.T) {
	raw := `{"id": 42}`
	res, err := parseToolResponse(raw, KindCreatePage, "https://example.atlassian.net")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "42" {
		t.Errorf("id = %q", res.ID)
	}
	if res.Link != "https://example.atlassian.net/wiki/pages/viewpage.action?pageId=42" {
		t.Errorf("link = %q", res.Link)
	}
}

func TestParseToolResponseVersionID(t *testing.T) {
	raw := `{"version": {"id": 314}}`
	res, err := parseToolResponse(raw, KindCreatePage, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "314" {
		t.Errorf("id = %q", res.ID)
	}
}

func TestParseToolResponseCodeFence(t *testing.T) {
	raw := "```json\n{\"success\": true, \"id\": \"PROJ-1\"}\n```"
	res, err := parseToolResponse(raw, KindCreateTicket, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "PROJ-1" {
		t.Errorf("id = %q", res.ID)
	}
}

func TestParseToolResponseEmbeddedObject(t *testing.T) {
	raw := `Tool finished. Result: {"id": "77", "title": "Embedded {brace} title"}`
	res, err := parseToolResponse(raw, KindCreatePage, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "77" || res.Title != "Embedded {brace} title" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseToolResponseBareBoolean(t *testing.T) {
	_, err := parseToolResponse("true", KindCreateTicket, "")
	if err == nil || KindOf(err) != ErrProtocol {
		t.Errorf("bare boolean: err = %v", err)
	}
}

func TestParseToolResponseTextURL(t *testing.T) {
	raw := "Created the page at https://example.atlassian.net/wiki/x/abc done."
	res, err := parseToolResponse(raw, KindCreatePage, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Link != "https://example.atlassian.net/wiki/x/abc" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseToolResponseTextError(t *testing.T) {
	_, err := parseToolResponse("Error: rate limited upstream", KindCreateTicket, "")
	if err == nil {
		t.Fatal("want error")
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("err = %T", err)
	}
	if !strings.Contains(toolErr.Error(), "rate limited upstream") {
		t.Errorf("err = %v", toolErr)
	}
}

func TestParseToolResponseTextErrorConflict(t *testing.T) {
	_, err := parseToolResponse("Error: a page with the same title exists", KindCreatePage, "")
	if KindOf(err) != ErrConflict {
		t.Errorf("kind = %v, want conflict", KindOf(err))
	}
}

func TestParseToolResponseEmpty(t *testing.T) {
	if _, err := parseToolResponse("   \n", KindCreateTicket, ""); err == nil {
		t.Error("empty response should be a protocol error")
	}
}

func TestParseToolResponseGibberish(t *testing.T) {
	_, err := parseToolResponse("no json here, no url either", KindCreateTicket, "")
	if err == nil || KindOf(err) != ErrProtocol {
		t.Errorf("err = %v", err)
	}
}

func TestExtractBalancedObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`before {"a": 1} after`, `{"a": 1}`},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{`{"s": "has } in string"}`, `{"s": "has } in string"}`},
		{`{"s": "esc \" quote}"} tail`, `{"s": "esc \" quote}"}`},
		{`{"never": "closes"`, ""},
		{`no braces`, ""},
	}
	for _, tc := range cases {
		if got := extractBalancedObject(tc.in); got != tc.want {
			t.Errorf("extractBalancedObject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := stripCodeFences("```json\n{}\n```"); got != "{}" {
		t.Errorf("got %q", got)
	}
	if got := stripCodeFences("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
	if got := stripCodeFences("```\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}
