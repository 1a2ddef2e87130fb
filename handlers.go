package segue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LLM call bounds per operation class.
const (
	draftTimeout      = 90 * time.Second
	evaluationTimeout = 60 * time.Second
	chatTimeout       = 60 * time.Second
	delegationTimeout = 60 * time.Second
)

// historyWindow is how many recent history entries seed a run's transcript.
const historyWindow = 10

// --- intent_detection ---

func (o *Orchestrator) handleIntentDetection(ctx context.Context, state *State) error {
	decision := o.classifier.Classify(ctx, state.UserInput, state.History, o.caps)
	state.Intent = &decision
	o.logger.Info("intent classified",
		"intent", decision.Intent.String(),
		"confidence", decision.Confidence,
		"source", decision.Source.String())
	return nil
}

// routeByIntent resolves the conditional edge out of intent detection.
// Intents whose capability is missing re-route to general chat.
func (o *Orchestrator) routeByIntent(state *State) string {
	if state.Intent == nil {
		return NodeGeneralChat
	}
	switch state.Intent.Intent {
	case IntentJiraCreation:
		if !o.caps.Ticketing {
			return NodeGeneralChat
		}
		return NodeJiraCreation
	case IntentRAGQuery:
		if !o.caps.Retrieval {
			return NodeGeneralChat
		}
		return NodeRAGQuery
	case IntentAgentDelegation:
		if !o.caps.Delegation {
			return NodeGeneralChat
		}
		return NodeDelegation
	default:
		return NodeGeneralChat
	}
}

// --- jira_creation ---

const draftSystemPrompt = `You write Jira tickets for a software team. From the user's request, produce a JSON object with exactly these fields:
{"summary": "one-line title", "description": "full description", "priority": "Highest|High|Medium|Low|Lowest", "acceptance_criteria": ["criterion", ...], "business_value": "why this matters", "invest_analysis": "short INVEST assessment"}
Respond with ONLY the JSON object.`

func (o *Orchestrator) handleJiraCreation(ctx context.Context, state *State) error {
	draft, err := o.generateDraft(ctx, state.UserInput)
	if err != nil {
		o.logger.Warn("ticket draft generation failed", "err", err)
		state.Ticket = &ToolResult{Success: false, ErrKind: ErrInternal, ErrMsg: err.Error()}
		state.appendMessage(AssistantMessage(FailureMessage(ErrInternal)))
		return nil
	}
	state.Draft = &draft

	res := o.dispatcher.CreateTicket(ctx, draft)
	state.Ticket = &res

	if !res.Success {
		state.appendMessage(AssistantMessage(FailureMessage(res.ErrKind)))
		return nil
	}
	state.appendMessage(AssistantMessage(fmt.Sprintf(
		"Created ticket %s: %s\n%s", res.ID, draft.Summary, res.Link)))
	return nil
}

// generateDraft asks the LLM for ticket content and parses the JSON object.
func (o *Orchestrator) generateDraft(ctx context.Context, input string) (TicketDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, draftTimeout)
	defer cancel()

	content, err := generate(ctx, o.llm, draftSystemPrompt, input, nil, true)
	if err != nil {
		return TicketDraft{}, err
	}
	var draft TicketDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil {
		return TicketDraft{}, fmt.Errorf("draft is not valid JSON: %w", err)
	}
	if strings.TrimSpace(draft.Summary) == "" {
		return TicketDraft{}, fmt.Errorf("draft has no summary")
	}
	return draft, nil
}

// --- evaluation ---

const evaluationSystemPrompt = `You review Jira tickets against the INVEST criteria (Independent, Negotiable, Valuable, Estimable, Small, Testable). Score the ticket 0-100 and give one short paragraph of feedback. Respond with ONLY a JSON object: {"score": 0-100, "feedback": "..."}.`

// handleEvaluation scores the generated ticket. Failures are non-fatal: a
// zero score with a note never blocks the documentation step.
func (o *Orchestrator) handleEvaluation(ctx context.Context, state *State) error {
	if state.Draft == nil || state.Ticket == nil || !state.Ticket.Success {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	payload, _ := json.Marshal(state.Draft)
	content, err := generate(ctx, o.llm, evaluationSystemPrompt, string(payload), nil, true)
	if err != nil {
		o.logger.Warn("ticket evaluation failed", "err", err)
		state.Evaluation = &Evaluation{Score: 0, Feedback: "evaluation unavailable"}
		return nil
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(extractJSON(content)), &eval); err != nil {
		o.logger.Warn("ticket evaluation returned non-JSON", "err", err)
		state.Evaluation = &Evaluation{Score: 0, Feedback: "evaluation unavailable"}
		return nil
	}
	if eval.Score < 0 {
		eval.Score = 0
	}
	if eval.Score > 100 {
		eval.Score = 100
	}
	state.Evaluation = &eval
	return nil
}

// routeAfterEvaluation documents successful tickets when a wiki exists.
func (o *Orchestrator) routeAfterEvaluation(state *State) string {
	if state.Ticket != nil && state.Ticket.Success && o.caps.Wiki {
		return NodeConfluence
	}
	return NodeEnd
}

// --- confluence_creation ---

func (o *Orchestrator) handleConfluence(ctx context.Context, state *State) error {
	if state.Draft == nil || state.Ticket == nil {
		return nil
	}

	res := o.dispatcher.CreatePage(ctx, PageRequest{
		Title:    state.Draft.Summary,
		BodyHTML: pageBody(state.Draft, state.Ticket, state.Evaluation),
	})
	state.Page = &res

	var b strings.Builder
	fmt.Fprintf(&b, "Created ticket %s: %s\n%s\n", state.Ticket.ID, state.Draft.Summary, state.Ticket.Link)
	if state.Evaluation != nil && state.Evaluation.Score > 0 {
		fmt.Fprintf(&b, "INVEST score: %d/100\n", state.Evaluation.Score)
	}
	if res.Success {
		fmt.Fprintf(&b, "Documented at page %s\n%s", res.ID, res.Link)
	} else {
		b.WriteString(FailureMessage(res.ErrKind))
		if res.OutcomeNote != "" {
			o.logger.Warn("page creation outcome note", "note", res.OutcomeNote)
		}
	}
	state.appendMessage(AssistantMessage(b.String()))
	return nil
}

// pageBody renders the documentation page for a created ticket.
func pageBody(draft *TicketDraft, ticket *ToolResult, eval *Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>", htmlEscape(draft.Summary))
	fmt.Fprintf(&b, "<p>Ticket: <a href=\"%s\">%s</a></p>", ticket.Link, htmlEscape(ticket.ID))
	fmt.Fprintf(&b, "<h2>Description</h2><p>%s</p>", htmlEscape(draft.Description))
	if len(draft.AcceptanceCriteria) > 0 {
		b.WriteString("<h2>Acceptance Criteria</h2><ul>")
		for _, ac := range draft.AcceptanceCriteria {
			fmt.Fprintf(&b, "<li>%s</li>", htmlEscape(ac))
		}
		b.WriteString("</ul>")
	}
	if draft.BusinessValue != "" {
		fmt.Fprintf(&b, "<h2>Business Value</h2><p>%s</p>", htmlEscape(draft.BusinessValue))
	}
	if eval != nil && eval.Feedback != "" {
		fmt.Fprintf(&b, "<h2>Review</h2><p>Score %d/100. %s</p>", eval.Score, htmlEscape(eval.Feedback))
	}
	return b.String()
}

// htmlEscape escapes <, >, & for page bodies.
func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// --- rag_query ---

const ragSystemPrompt = `You answer questions about the team's tickets and documentation. Ground your answer in the provided context; when the context does not cover the question, say so instead of guessing.`

func (o *Orchestrator) handleRAGQuery(ctx context.Context, state *State) error {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	contextStr, err := GetContext(ctx, o.retriever, state.UserInput, 3)
	if err != nil {
		o.logger.Warn("retrieval failed", "err", err)
		state.appendMessage(AssistantMessage(FailureMessage(KindOf(err))))
		return nil
	}
	state.RAGContext = contextStr

	prompt := state.UserInput
	if contextStr != "" {
		prompt = fmt.Sprintf("## Context\n\n%s\n\n## Question\n\n%s", contextStr, state.UserInput)
	}
	answer, err := generate(ctx, o.llm, ragSystemPrompt, prompt, nil, false)
	if err != nil {
		o.logger.Warn("rag answer generation failed", "err", err)
		state.appendMessage(AssistantMessage(FailureMessage(ErrInternal)))
		return nil
	}
	state.appendMessage(AssistantMessage(answer))
	return nil
}

// --- general_chat ---

const chatSystemPrompt = `You are a helpful project assistant. You can create Jira tickets, publish Confluence pages, and look up project knowledge when asked; otherwise hold a normal conversation.`

func (o *Orchestrator) handleGeneralChat(ctx context.Context, state *State) error {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	msgs := make([]Message, 0, len(state.Messages)+2)
	msgs = append(msgs, SystemMessage(chatSystemPrompt))
	msgs = append(msgs, state.Messages...)
	if len(state.Messages) == 0 || state.Messages[len(state.Messages)-1].Content != state.UserInput {
		msgs = append(msgs, UserMessage(state.UserInput))
	}

	resp, err := o.llm.Chat(ctx, ChatRequest{Messages: msgs})
	if err != nil {
		o.logger.Warn("chat failed", "err", err)
		state.appendMessage(AssistantMessage(FailureMessage(ErrInternal)))
		return nil
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = "I'm here — how can I help?"
	}
	state.appendMessage(AssistantMessage(reply))
	return nil
}

// --- agent_delegation ---

func (o *Orchestrator) handleDelegation(ctx context.Context, state *State) error {
	ctx, cancel := context.WithTimeout(ctx, delegationTimeout)
	defer cancel()

	output, err := o.delegate.Execute(ctx, state.UserInput)
	result := DelegationResult{Agent: o.delegate.Name()}
	if err != nil {
		result.Err = err.Error()
		state.Delegation = &result
		o.logger.Warn("delegation failed", "agent", result.Agent, "err", err)
		state.appendMessage(AssistantMessage(FailureMessage(KindOf(err))))
		return nil
	}
	result.Output = output
	state.Delegation = &result
	state.appendMessage(AssistantMessage(output))
	return nil
}
