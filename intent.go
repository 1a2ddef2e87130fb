package segue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	defaultIntentCacheSize = 100
	defaultIntentTimeout   = 5 * time.Second
	defaultIntentThreshold = 0.7
	defaultIntentTemp      = 0.1
)

// Capabilities tells the classifier and router which collaborators exist.
// A missing capability redirects the matching intent to general chat.
type Capabilities struct {
	Ticketing  bool
	Wiki       bool
	Retrieval  bool
	Delegation bool
}

// Classifier maps user input to an IntentDecision via keyword rules with an
// optional LLM fallback. Stateless except for the bounded result cache.
type Classifier struct {
	llm         Provider // nil disables the LLM fallback
	threshold   float64
	timeout     time.Duration
	temperature float64
	cache       *intentCache
	logger      *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithLLMFallback enables the LLM fallback stage with the given provider.
func WithLLMFallback(p Provider) ClassifierOption {
	return func(c *Classifier) { c.llm = p }
}

// WithConfidenceThreshold sets the minimum confidence to accept an LLM
// classification. Default 0.7.
func WithConfidenceThreshold(t float64) ClassifierOption {
	return func(c *Classifier) { c.threshold = t }
}

// WithIntentTimeout bounds the LLM fallback call. Default 5s.
func WithIntentTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// WithIntentTemperature sets the LLM fallback temperature. Default 0.1.
func WithIntentTemperature(t float64) ClassifierOption {
	return func(c *Classifier) { c.temperature = t }
}

// WithIntentCacheSize bounds the LLM-result cache. Default 100 entries.
func WithIntentCacheSize(n int) ClassifierOption {
	return func(c *Classifier) { c.cache = newIntentCache(n) }
}

// WithClassifierLogger sets the structured logger.
func WithClassifierLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier creates a Classifier with the given options.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		threshold:   defaultIntentThreshold,
		timeout:     defaultIntentTimeout,
		temperature: defaultIntentTemp,
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = newIntentCache(defaultIntentCacheSize)
	}
	return c
}

// --- Keyword rule tables ---

// metaToolingPhrases match questions ABOUT the ticketing tool rather than
// requests to use it. Checked first because these strings also contain the
// keywords the creation rules use.
var metaToolingPhrases = []string{
	"what is jira",
	"what is a jira",
	"what's jira",
	"how does jira work",
	"how do i use jira",
	"tell me about jira",
	"explain jira",
	"what is confluence",
	"how does confluence work",
	"tell me about confluence",
	"what is a ticket in jira",
	"difference between jira",
}

// delegationPhrases match explicit hand-off requests.
var delegationPhrases = []string{
	"ask the agent",
	"delegate this",
	"delegate to",
	"hand this off",
	"hand off to",
	"forward this to the agent",
	"let the agent handle",
}

// jiraKeywords are exact-phrase creation triggers.
var jiraKeywords = []string{
	"create jira",
	"create a jira",
	"create ticket",
	"create a ticket",
	"new ticket",
	"new jira",
	"open a ticket",
	"file a ticket",
	"raise a ticket",
	"submit a ticket",
	"add to backlog",
	"make a jira",
}

// jiraCreationRe matches "verb [article] target" creation phrasings.
var jiraCreationRe = regexp.MustCompile(`\b(create|make|open|new|add|generate|submit)\b\s+(a\s+|an\s+|the\s+)?(jira|ticket|issue|backlog)\b`)

// ragKeywords are lookup triggers; combined with a project-key match in a
// non-creation context.
var ragKeywords = []string{
	"acceptance criteria",
	"business value",
	"show me the",
	"confluence page",
	"ticket details",
	"details of",
	"lookup",
	"look up",
	"what was",
	"what were",
	"find the page",
}

// projectKeyRe matches Jira-style issue keys like PROJ-123.
var projectKeyRe = regexp.MustCompile(`\b[A-Z]{2,}-\d+\b`)

// greetingPhrases short-circuit to general chat.
var greetingPhrases = []string{
	"hi", "hello", "hey", "yo", "good morning", "good afternoon",
	"good evening", "thanks", "thank you", "how are you",
}

// Classify runs the rule pipeline on input. Recent history is forwarded to
// the LLM fallback for context; keyword stages look only at the input.
func (c *Classifier) Classify(ctx context.Context, input string, history []Message, caps Capabilities) IntentDecision {
	norm := strings.ToLower(strings.TrimSpace(input))

	if norm == "" {
		return IntentDecision{Intent: IntentGeneralChat, Confidence: 1.0, Reason: "empty input", Source: SourceKeyword}
	}

	// 1. Meta tooling questions are chat even though they mention jira.
	if containsAny(norm, metaToolingPhrases) {
		return IntentDecision{Intent: IntentGeneralChat, Confidence: 1.0, Reason: "meta tooling question", Source: SourceKeyword}
	}

	// 2. Delegation keywords, only when a delegate is configured.
	if caps.Delegation && containsAny(norm, delegationPhrases) {
		return IntentDecision{Intent: IntentAgentDelegation, Confidence: 1.0, Reason: "delegation keyword", Source: SourceKeyword}
	}

	// 3. Ticket creation rules, only when a ticketing capability exists.
	creation := containsAny(norm, jiraKeywords) || jiraCreationRe.MatchString(norm)
	if creation && caps.Ticketing {
		return IntentDecision{Intent: IntentJiraCreation, Confidence: 1.0, Reason: "creation keyword", Source: SourceKeyword}
	}

	// 4. Knowledge lookup: lookup keyword plus a project key outside a
	// creation context, only when retrieval exists.
	if caps.Retrieval && !creation &&
		containsAny(norm, ragKeywords) && projectKeyRe.MatchString(input) {
		return IntentDecision{Intent: IntentRAGQuery, Confidence: 1.0, Reason: "project key lookup", Source: SourceKeyword}
	}

	// 5. Greetings.
	if isGreeting(norm) {
		return IntentDecision{Intent: IntentGeneralChat, Confidence: 1.0, Reason: "greeting", Source: SourceKeyword}
	}

	// 6. LLM fallback.
	if c.llm != nil {
		if d, ok := c.classifyLLM(ctx, input, norm, history); ok {
			return d
		}
	}

	// 7. Default.
	return IntentDecision{Intent: IntentGeneralChat, Confidence: 0.5, Reason: "no rule fired", Source: SourceDefault}
}

// containsAny reports whether s contains any of the phrases.
func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// isGreeting matches short salutations. Exact match or prefix followed by
// punctuation, so "hi there!" matches but "highlight the risks" does not.
func isGreeting(norm string) bool {
	for _, g := range greetingPhrases {
		if norm == g {
			return true
		}
		if strings.HasPrefix(norm, g) {
			rest := norm[len(g):]
			if strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, ".") {
				return true
			}
		}
	}
	return false
}

// --- LLM fallback ---

// intentSystemPrompt demands a bare JSON classification object.
const intentSystemPrompt = `You are an intent classifier for a project assistant that can create Jira tickets, publish Confluence pages, and look up project knowledge.

Classify the user message into exactly one intent:
- "jira_creation": the user wants a new ticket, issue, or backlog item created.
- "rag_query": the user asks about existing tickets, pages, acceptance criteria, or project knowledge.
- "agent_delegation": the user explicitly asks to hand the request to another agent.
- "general_chat": everything else, including questions about the tools themselves.

Respond with ONLY a JSON object: {"intent": "...", "confidence": 0.0-1.0, "reasoning": "short explanation"}.`

// llmIntentReply is the JSON shape the fallback model must return.
type llmIntentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// classifyLLM runs the bounded LLM fallback. Returns ok=false when the call
// failed, timed out, or the result fell below the confidence threshold with
// no usable reasoning; the pipeline then falls through to the default.
func (c *Classifier) classifyLLM(ctx context.Context, input, norm string, history []Message) (IntentDecision, bool) {
	key := cacheKey(norm)
	if d, ok := c.cache.get(key); ok {
		d.Source = SourceCache
		return d, true
	}

	prompt := input
	if n := len(history); n > 0 {
		// Give the model a little conversational context.
		var b strings.Builder
		for _, m := range history[max(0, n-4):] {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("user: ")
		b.WriteString(input)
		prompt = b.String()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		content, err := generate(ctx, c.llm, intentSystemPrompt, prompt, Temp(c.temperature), true)
		ch <- outcome{content, err}
	}()

	var content string
	select {
	case <-ctx.Done():
		c.logger.Warn("intent llm timed out", "timeout", c.timeout)
		return IntentDecision{}, false
	case out := <-ch:
		if out.err != nil {
			c.logger.Warn("intent llm failed", "err", out.err)
			return IntentDecision{}, false
		}
		content = out.content
	}

	var reply llmIntentReply
	if err := json.Unmarshal([]byte(extractJSON(content)), &reply); err != nil {
		c.logger.Warn("intent llm returned non-JSON", "err", err)
		return IntentDecision{}, false
	}

	intent := parseIntentName(reply.Intent)
	d := IntentDecision{
		Intent:     intent,
		Confidence: reply.Confidence,
		Reason:     reply.Reasoning,
		Source:     SourceLLM,
	}
	if intent == IntentUnknown || reply.Confidence < c.threshold {
		// Below threshold: fall back to chat but keep the model's reasoning
		// as a diagnostic.
		d.Intent = IntentGeneralChat
	}
	c.cache.put(key, d)
	return d, true
}

// parseIntentName maps the LLM's intent string to the enum.
func parseIntentName(s string) Intent {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "jira_creation":
		return IntentJiraCreation
	case "rag_query":
		return IntentRAGQuery
	case "general_chat":
		return IntentGeneralChat
	case "agent_delegation":
		return IntentAgentDelegation
	default:
		return IntentUnknown
	}
}

// cacheKey hashes the normalized input.
func cacheKey(norm string) string {
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// extractJSON finds the first JSON object in a string (handles code fences).
func extractJSON(input string) string {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}

	return trimmed
}
