package atlassian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/seguehq/segue"
)

// Jira creates issues via the Jira Cloud REST API v2.
type Jira struct {
	cfg        Config
	projectKey string
	issueType  string
	client     *http.Client
	logger     *slog.Logger
}

// JiraOption configures a Jira client.
type JiraOption func(*Jira)

// WithJiraIssueType overrides the default "Task" issue type.
func WithJiraIssueType(t string) JiraOption { return func(j *Jira) { j.issueType = t } }

// WithJiraHTTPClient replaces the HTTP client (used by tests).
func WithJiraHTTPClient(c *http.Client) JiraOption { return func(j *Jira) { j.client = c } }

// WithJiraLogger sets the structured logger.
func WithJiraLogger(l *slog.Logger) JiraOption { return func(j *Jira) { j.logger = l } }

// NewJira creates a Jira client for one project.
func NewJira(cfg Config, projectKey string, opts ...JiraOption) *Jira {
	j := &Jira{
		cfg:        cfg,
		projectKey: projectKey,
		issueType:  "Task",
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type namedRef struct {
	Name string `json:"name"`
}

type issueFields struct {
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Summary   string    `json:"summary"`
	Desc      string    `json:"description"`
	IssueType namedRef  `json:"issuetype"`
	Priority  *namedRef `json:"priority,omitempty"`
}

type createIssueRequest struct {
	Fields issueFields `json:"fields"`
}

type createIssueResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// CreateIssue creates a ticket from a draft. The result's ID is the issue
// key (e.g. "PROJ-123") and the link points to the browse URL.
func (j *Jira) CreateIssue(ctx context.Context, draft segue.TicketDraft) (segue.ToolResult, error) {
	var req createIssueRequest
	req.Fields.Project.Key = j.projectKey
	req.Fields.Summary = draft.Summary
	req.Fields.Desc = issueDescription(draft)
	req.Fields.IssueType.Name = j.issueType
	if draft.Priority != "" {
		req.Fields.Priority = &namedRef{Name: draft.Priority}
	}

	var resp createIssueResponse
	url := j.cfg.BaseURL + "/rest/api/2/issue"
	if err := doJSON(ctx, j.client, j.cfg, http.MethodPost, url, req, &resp); err != nil {
		return segue.ToolResult{}, err
	}
	if resp.Key == "" {
		return segue.ToolResult{}, segue.NewToolError(segue.ErrProtocol, "issue created but no key returned")
	}
	return segue.ToolResult{
		Success: true,
		ID:      resp.Key,
		Link:    j.cfg.BaseURL + "/browse/" + resp.Key,
		Title:   draft.Summary,
	}, nil
}

// issueDescription assembles the full description field from the draft's
// narrative parts.
func issueDescription(draft segue.TicketDraft) string {
	var b strings.Builder
	b.WriteString(draft.Description)
	if len(draft.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nh3. Acceptance Criteria\n")
		for _, ac := range draft.AcceptanceCriteria {
			fmt.Fprintf(&b, "* %s\n", ac)
		}
	}
	if draft.BusinessValue != "" {
		b.WriteString("\nh3. Business Value\n")
		b.WriteString(draft.BusinessValue)
	}
	return strings.TrimSpace(b.String())
}

var _ segue.JiraAPI = (*Jira)(nil)
