package segue

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
)

type stubRemote struct {
	tools     []ToolDescriptor
	listErr   error
	listCalls atomic.Int32
	callFn    func(name string, args map[string]any) (string, error)
	lastName  string
	lastArgs  map[string]any
}

func (r *stubRemote) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	r.listCalls.Add(1)
	return r.tools, r.listErr
}

func (r *stubRemote) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.lastName = name
	r.lastArgs = args
	return r.callFn(name, args)
}

type stubJira struct {
	res   ToolResult
	err   error
	calls int
}

func (j *stubJira) CreateIssue(ctx context.Context, draft TicketDraft) (ToolResult, error) {
	j.calls++
	return j.res, j.err
}

type stubWiki struct {
	createRes ToolResult
	createErr error
	getRes    ToolResult
	getErr    error
	cloudID   string
	spaceID   string
	calls     int
}

func (w *stubWiki) CreatePage(ctx context.Context, title, bodyHTML string) (ToolResult, error) {
	w.calls++
	return w.createRes, w.createErr
}

func (w *stubWiki) GetPage(ctx context.Context, id string) (ToolResult, error) {
	return w.getRes, w.getErr
}

func (w *stubWiki) TenantInfo(ctx context.Context) (string, error) { return w.cloudID, nil }

func (w *stubWiki) SpaceID(ctx context.Context, key string) (string, error) { return w.spaceID, nil }

func (w *stubWiki) BaseURL() string { return "https://example.atlassian.net" }

func ticketTool(name string) ToolDescriptor {
	return ToolDescriptor{
		Name: name,
		Schema: schemaOf([]string{"summary"},
			prop("summary", Property{Type: "string"}),
			prop("description", Property{Type: "string"}),
		),
	}
}

var sampleDraft = TicketDraft{
	Summary:     "Fix login 500",
	Description: "New users hit a 500 on login.",
	Priority:    "High",
}

func TestCreateTicketRemoteSuccess(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("create_jira_issue")},
		callFn: func(name string, args map[string]any) (string, error) {
			return `{"success": true, "ticket_id": "PROJ-1", "link": "https://example.atlassian.net/browse/PROJ-1"}`, nil
		},
	}
	jira := &stubJira{}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if !res.Success || res.ID != "PROJ-1" || res.Method != MethodRemoteProtocol {
		t.Errorf("result = %+v", res)
	}
	if jira.calls != 0 {
		t.Error("direct client called despite remote success")
	}
	if remote.lastArgs["summary"] != "Fix login 500" {
		t.Errorf("bound args = %v", remote.lastArgs)
	}
}

func TestCreateTicketNoRemoteUsesDirect(t *testing.T) {
	jira := &stubJira{res: ToolResult{Success: true, ID: "PROJ-2", Link: "https://example.atlassian.net/browse/PROJ-2"}}
	d := NewDispatcher(WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if !res.Success || res.Method != MethodDirectAPI {
		t.Errorf("result = %+v", res)
	}
}

func TestCreateTicketRemoteTimeoutFallsBack(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("create_ticket")},
		callFn: func(name string, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	jira := &stubJira{res: ToolResult{Success: true, ID: "PROJ-3"}}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if !res.Success || res.Method != MethodDirectAPIFallback {
		t.Errorf("result = %+v", res)
	}
	if jira.calls != 1 {
		t.Errorf("direct calls = %d", jira.calls)
	}
}

func TestCreateTicketRemoteGarbageFallsBack(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("createissue")},
		callFn: func(name string, args map[string]any) (string, error) {
			return "absolutely not json", nil
		},
	}
	jira := &stubJira{res: ToolResult{Success: true, ID: "PROJ-4"}}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if !res.Success || res.Method != MethodDirectAPIFallback {
		t.Errorf("result = %+v", res)
	}
}

func TestCreateTicketConflictIsTerminal(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("create_jira_issue")},
		callFn: func(name string, args map[string]any) (string, error) {
			return `{"success": false, "error": "An issue with this summary already exists"}`, nil
		},
	}
	jira := &stubJira{res: ToolResult{Success: true, ID: "PROJ-5"}}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if res.Success || res.ErrKind != ErrConflict {
		t.Errorf("result = %+v", res)
	}
	if jira.calls != 0 {
		t.Error("conflict must not retry on the direct client")
	}
	if res.OutcomeNote == "" {
		t.Error("conflict result should carry an outcome note")
	}
}

func TestCreateTicketBindFailureFallsBack(t *testing.T) {
	tool := ToolDescriptor{
		Name: "create_jira_issue",
		Schema: schemaOf([]string{"epic_id"},
			prop("epic_id", Property{Type: "string"}),
		),
	}
	remote := &stubRemote{
		tools: []ToolDescriptor{tool},
		callFn: func(name string, args map[string]any) (string, error) {
			t.Error("CallTool reached despite a binding failure")
			return "", nil
		},
	}
	jira := &stubJira{res: ToolResult{Success: true, ID: "PROJ-6"}}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if !res.Success || res.Method != MethodDirectAPIFallback {
		t.Errorf("result = %+v", res)
	}
}

func TestCreateTicketBothPathsFail(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("create_ticket")},
		callFn: func(name string, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	jira := &stubJira{res: ToolResult{Success: false, ErrKind: ErrConnection, ErrMsg: "dial tcp: refused"}}
	d := NewDispatcher(WithDispatcherRemote(remote), WithDispatcherJira(jira))

	res := d.CreateTicket(context.Background(), sampleDraft)
	if res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.ErrKind != ErrTimeout {
		t.Errorf("kind = %v, want the remote failure's kind", res.ErrKind)
	}
	if !strings.Contains(res.ErrMsg, "remote:") || !strings.Contains(res.ErrMsg, "direct:") {
		t.Errorf("merged message = %q", res.ErrMsg)
	}
}

func TestCreateTicketNoCapability(t *testing.T) {
	d := NewDispatcher()
	res := d.CreateTicket(context.Background(), sampleDraft)
	if res.Success || res.ErrKind != ErrToolUnavailable {
		t.Errorf("result = %+v", res)
	}
}

func TestFindToolExclusions(t *testing.T) {
	remote := &stubRemote{tools: []ToolDescriptor{
		{Name: "confluence_create_page_from_ticket"},
		{Name: "jira_create_issue"},
	}}
	d := NewDispatcher(WithDispatcherRemote(remote))

	tool, ok := d.findTool(context.Background(), KindCreateTicket)
	if !ok || tool.Name != "jira_create_issue" {
		t.Errorf("tool = %+v, ok = %v", tool, ok)
	}
	// The page search must skip anything ticket-flavored.
	if _, ok := d.findTool(context.Background(), KindCreatePage); ok {
		t.Error("page search matched a ticket-contaminated name")
	}
}

func TestListToolsCachedOnce(t *testing.T) {
	remote := &stubRemote{
		tools: []ToolDescriptor{ticketTool("create_ticket")},
		callFn: func(name string, args map[string]any) (string, error) {
			return `{"success": true, "id": "PROJ-7"}`, nil
		},
	}
	d := NewDispatcher(WithDispatcherRemote(remote))

	d.CreateTicket(context.Background(), sampleDraft)
	d.CreateTicket(context.Background(), sampleDraft)
	if got := remote.listCalls.Load(); got != 1 {
		t.Errorf("ListTools calls = %d, want 1", got)
	}
}

func TestCreatePageHostedVariant(t *testing.T) {
	tool := ToolDescriptor{
		Name: "createConfluencePage",
		Schema: schemaOf([]string{"cloudId", "spaceId", "title", "body"},
			prop("cloudId", Property{Type: "string"}),
			prop("spaceId", Property{Type: "integer"}),
			prop("title", Property{Type: "string"}),
			prop("body", Property{Type: "string"}),
			prop("contentFormat", Property{Type: "string", Enum: []any{"markdown", "storage"}}),
		),
	}
	remote := &stubRemote{
		tools: []ToolDescriptor{tool},
		callFn: func(name string, args map[string]any) (string, error) {
			return `{"id": "98765", "title": "Release Notes", "_links": {"webui": "/spaces/ENG/pages/98765"}}`, nil
		},
	}
	wiki := &stubWiki{cloudID: "cloud-abc", spaceID: "111222"}
	d := NewDispatcher(
		WithDispatcherRemote(remote),
		WithDispatcherWiki(wiki),
		WithDispatcherSpaceKey("ENG"),
	)

	res := d.CreatePage(context.Background(), PageRequest{
		Title:    "Release Notes",
		BodyHTML: "<h1>Release Notes</h1><p><strong>Done.</strong></p>",
	})
	if !res.Success || res.ID != "98765" || res.Method != MethodRemoteProtocol {
		t.Fatalf("result = %+v", res)
	}
	if res.Link != "https://example.atlassian.net/wiki/spaces/ENG/pages/98765" {
		t.Errorf("link = %q", res.Link)
	}

	if remote.lastArgs["cloudId"] != "cloud-abc" {
		t.Errorf("cloudId = %v", remote.lastArgs["cloudId"])
	}
	if remote.lastArgs["spaceId"] != 111222 {
		t.Errorf("spaceId = %v", remote.lastArgs["spaceId"])
	}
	if remote.lastArgs["contentFormat"] != "markdown" {
		t.Errorf("contentFormat = %v", remote.lastArgs["contentFormat"])
	}
	body, _ := remote.lastArgs["body"].(string)
	if !strings.Contains(body, "# Release Notes") || !strings.Contains(body, "**Done.**") {
		t.Errorf("body not converted to markdown: %q", body)
	}
}

func TestCreatePageSnakeCaseVariantKeepsSpaceKey(t *testing.T) {
	tool := ToolDescriptor{
		Name: "confluence_create_page",
		Schema: schemaOf([]string{"title", "content"},
			prop("title", Property{Type: "string"}),
			prop("content", Property{Type: "string"}),
			prop("space_key", Property{Type: "string"}),
		),
	}
	remote := &stubRemote{
		tools: []ToolDescriptor{tool},
		callFn: func(name string, args map[string]any) (string, error) {
			return `{"success": true, "page_id": "4242"}`, nil
		},
	}
	d := NewDispatcher(
		WithDispatcherRemote(remote),
		WithDispatcherSpaceKey("ENG"),
		WithDispatcherBaseURL("https://example.atlassian.net"),
	)

	res := d.CreatePage(context.Background(), PageRequest{Title: "Doc", BodyHTML: "<p>x</p>"})
	if !res.Success || res.ID != "4242" {
		t.Fatalf("result = %+v", res)
	}
	if remote.lastArgs["space_key"] != "ENG" {
		t.Errorf("space_key = %v", remote.lastArgs["space_key"])
	}
	if _, ok := remote.lastArgs["cloudId"]; ok {
		t.Error("snake-case server must not receive a cloudId")
	}
}

func TestCreatePageDirectConflict(t *testing.T) {
	wiki := &stubWiki{createErr: &ErrHTTPStatus{Status: 400, Body: "A page with this title already exists"}}
	d := NewDispatcher(WithDispatcherWiki(wiki))

	res := d.CreatePage(context.Background(), PageRequest{Title: "Dup", BodyHTML: "<p>x</p>"})
	if res.Success || res.ErrKind != ErrConflict || res.OutcomeNote == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestFetchPageFallsBackToDirect(t *testing.T) {
	wiki := &stubWiki{getRes: ToolResult{Success: true, ID: "777", Title: "Runbook"}}
	d := NewDispatcher(WithDispatcherWiki(wiki))

	res := d.FetchPage(context.Background(), "777")
	if !res.Success || res.ID != "777" || res.Method != MethodDirectAPIFallback {
		t.Errorf("result = %+v", res)
	}
}

func TestCapabilityProbes(t *testing.T) {
	d := NewDispatcher(WithDispatcherJira(&stubJira{}))
	if !d.HasTicketing(context.Background()) {
		t.Error("ticketing should be available via the direct client")
	}
	if d.HasWiki(context.Background()) {
		t.Error("wiki should be unavailable")
	}

	remote := &stubRemote{tools: []ToolDescriptor{{Name: "create_confluence_page"}}}
	d2 := NewDispatcher(WithDispatcherRemote(remote))
	if !d2.HasWiki(context.Background()) {
		t.Error("wiki should be available via the remote tool")
	}
	if d2.HasTicketing(context.Background()) {
		t.Error("ticketing should be unavailable")
	}
}

func TestExtractCloudID(t *testing.T) {
	if got := extractCloudID(`[{"cloudId": "abc", "name": "site"}]`); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := extractCloudID(`{"cloud_id": "xyz"}`); got != "xyz" {
		t.Errorf("got %q", got)
	}
	if got := extractCloudID("not json"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestExtractSpaceID(t *testing.T) {
	payload := `{"results": [{"key": "OPS", "id": "1"}, {"key": "ENG", "id": "42"}]}`
	if got := extractSpaceID(payload, "ENG"); got != "42" {
		t.Errorf("got %q", got)
	}
	if got := extractSpaceID(payload, "NOPE"); got != "" {
		t.Errorf("got %q", got)
	}
	if got := extractSpaceID(`[{"spaceKey": "eng", "spaceId": "7"}]`, "ENG"); got != "7" {
		t.Errorf("case-insensitive key: got %q", got)
	}
}

func TestNeedsNumericSpaceID(t *testing.T) {
	intSchema := schemaOf(nil, prop("spaceId", Property{Type: "integer"}))
	if !needsNumericSpaceID(intSchema) {
		t.Error("integer spaceId should require resolution")
	}
	reqSchema := schemaOf([]string{"spaceId"}, prop("spaceId", Property{Type: "string"}))
	if !needsNumericSpaceID(reqSchema) {
		t.Error("required spaceId should require resolution")
	}
	none := schemaOf(nil, prop("title", Property{Type: "string"}))
	if needsNumericSpaceID(none) {
		t.Error("schema without spaceId flagged")
	}
}
