package segue

import (
	"time"
)

// --- Conversation types ---

// Message roles. The orchestrator only ever appends system, user, and
// assistant messages to a run's transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role Message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// SystemMessage builds a system-role Message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// AssistantMessage builds an assistant-role Message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// Request is one immutable orchestrator invocation.
type Request struct {
	UserInput string
	// History is the prior conversation, oldest first. Read-only during a
	// run; the orchestrator copies the most recent entries into the run's
	// transcript.
	History []Message
	// Deadline bounds the whole request. Zero means the orchestrator's
	// default (5 minutes). The effective deadline is the earlier of the two.
	Deadline time.Time
	// CorrelationID tags log lines and spans. Generated when empty.
	CorrelationID string
	// ConversationID selects the conversation for memory persistence.
	// Empty disables persistence for this request.
	ConversationID string
}

// --- Intent types ---

// Intent is the discrete category the classifier assigns to a user message.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentJiraCreation
	IntentRAGQuery
	IntentGeneralChat
	IntentAgentDelegation
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case IntentJiraCreation:
		return "jira_creation"
	case IntentRAGQuery:
		return "rag_query"
	case IntentGeneralChat:
		return "general_chat"
	case IntentAgentDelegation:
		return "agent_delegation"
	default:
		return "unknown"
	}
}

// IntentSource records which stage of the classifier produced a decision.
type IntentSource int

const (
	SourceKeyword IntentSource = iota
	SourceLLM
	SourceCache
	SourceDefault
)

// String returns the source name.
func (s IntentSource) String() string {
	switch s {
	case SourceKeyword:
		return "keyword"
	case SourceLLM:
		return "llm"
	case SourceCache:
		return "cache"
	default:
		return "default"
	}
}

// IntentDecision is the classifier's output for one message.
type IntentDecision struct {
	Intent     Intent       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Source     IntentSource `json:"source"`
}

// --- Routing state ---

// State is the single mutable record threaded through the routing graph.
// Messages is append-only during a run; Intent is set exactly once before
// any handler executes; each result slot is written by at most one handler.
type State struct {
	UserInput string
	Messages  []Message
	History   []Message // read-only within a run
	Intent    *IntentDecision

	Draft      *TicketDraft
	Ticket     *ToolResult // ticket-creation outcome
	Page       *ToolResult // wiki-page outcome
	Evaluation *Evaluation
	RAGContext string
	Delegation *DelegationResult

	// nextAction is a router-private hint; handlers must not read it.
	nextAction string
}

// appendMessage grows the transcript. The transcript is append-only:
// nothing ever rewrites or removes an entry.
func (s *State) appendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// lastAssistant returns the content of the most recent assistant message,
// or "" when none exists.
func (s *State) lastAssistant() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Evaluation is the INVEST-style quality score for a generated ticket.
type Evaluation struct {
	Score    int    `json:"score"` // 0..100
	Feedback string `json:"feedback"`
}

// DelegationResult is the outcome of handing a request to a Delegate.
type DelegationResult struct {
	Agent  string `json:"agent"`
	Output string `json:"output"`
	Err    string `json:"error,omitempty"`
}

// TicketDraft is the LLM-generated content for a new ticket.
type TicketDraft struct {
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	Priority           string   `json:"priority"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	BusinessValue      string   `json:"business_value"`
	InvestAnalysis     string   `json:"invest_analysis"`
}

// --- Tool types ---

// ToolMethod identifies which path produced a ToolResult.
type ToolMethod int

const (
	MethodNone ToolMethod = iota
	MethodRemoteProtocol
	MethodDirectAPI
	MethodDirectAPIFallback
)

// String returns the method name.
func (m ToolMethod) String() string {
	switch m {
	case MethodRemoteProtocol:
		return "remote_protocol"
	case MethodDirectAPI:
		return "direct_api"
	case MethodDirectAPIFallback:
		return "direct_api_fallback"
	default:
		return "none"
	}
}

// ToolResult is the normalized envelope every tool invocation emits,
// regardless of whether the remote protocol or a direct client served it.
type ToolResult struct {
	Success bool       `json:"success"`
	ID      string     `json:"id,omitempty"`   // primary resource key (issue key, page id)
	Link    string     `json:"link,omitempty"` // canonical URL of the resource
	Title   string     `json:"title,omitempty"`
	ErrKind ErrorKind  `json:"error_kind,omitempty"`
	ErrMsg  string     `json:"error_message,omitempty"`
	Method  ToolMethod `json:"tool_used"`
	// OutcomeNote carries sub-outcome detail (e.g. an unverifiable
	// duplicate claim) without polluting the Method enum.
	OutcomeNote string `json:"outcome_note,omitempty"`
	Raw         string `json:"-"` // preserved for diagnostics
}

// Diagnostics is the structured record Handle returns beside the reply.
type Diagnostics struct {
	CorrelationID string
	Decision      IntentDecision
	Path          []string // node names in traversal order
	Hops          int
	Elapsed       time.Duration
	Ticket        *ToolResult
	Page          *ToolResult
	Evaluation    *Evaluation
	Errors        []string
}
