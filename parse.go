package segue

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// urlRe finds the first http(s) URL in free text.
var urlRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// parseToolResponse normalizes a remote tool's raw text response into a
// ToolResult. Three JSON shapes are recognized (hosted "Rovo" objects,
// custom {success: bool} envelopes, and generic objects), preceded by
// code-fence stripping, whole-string JSON parse, and balanced-brace
// extraction. Non-JSON text falls back to URL / "Error:" heuristics.
//
// A returned error means the response was unusable (protocol error) and the
// dispatcher should try the direct client. The caller fills in Method.
func parseToolResponse(raw string, kind ToolKind, base string) (ToolResult, error) {
	text := stripCodeFences(raw)
	if strings.TrimSpace(text) == "" {
		return ToolResult{}, NewToolError(ErrProtocol, "empty response")
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		if extracted := extractBalancedObject(text); extracted != "" {
			if err := json.Unmarshal([]byte(extracted), &value); err != nil {
				return parseTextHeuristics(text)
			}
		} else {
			return parseTextHeuristics(text)
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return parseObject(v, kind, base, raw)
	case bool:
		// A bare boolean is a malformed protocol reply, not an outcome.
		return ToolResult{}, NewToolError(ErrProtocol, "bare boolean response: %v", v)
	case string:
		return parseTextHeuristics(v)
	default:
		return ToolResult{}, NewToolError(ErrProtocol, "unexpected response type %T", value)
	}
}

// parseObject dispatches on the three known object shapes.
func parseObject(obj map[string]any, kind ToolKind, base, raw string) (ToolResult, error) {
	if _, hasSuccess := obj["success"]; hasSuccess {
		return parseCustomSuccess(obj, kind, base, raw)
	}
	if id := extractID(obj); id != "" {
		return parseRovo(obj, id, kind, base, raw), nil
	}
	return parseGeneric(obj, kind, base, raw)
}

// parseRovo handles hosted-variant objects: an id, no success field.
func parseRovo(obj map[string]any, id string, kind ToolKind, base, raw string) ToolResult {
	res := ToolResult{
		Success: true,
		ID:      id,
		Title:   asString(obj["title"]),
		Raw:     raw,
	}
	if links, ok := obj["_links"].(map[string]any); ok {
		if webui := asString(links["webui"]); webui != "" {
			if strings.HasPrefix(webui, "http://") || strings.HasPrefix(webui, "https://") {
				res.Link = webui
			} else {
				res.Link = strings.TrimSuffix(base, "/") + "/wiki" + webui
			}
		}
	}
	if res.Link == "" {
		res.Link = synthesizeLink(kind, base, id)
	}
	return res
}

// parseCustomSuccess trusts an explicit success flag.
func parseCustomSuccess(obj map[string]any, kind ToolKind, base, raw string) (ToolResult, error) {
	success, _ := obj["success"].(bool)
	if !success {
		msg := firstString(obj, "error", "error_detail", "message")
		kindName := asString(obj["error_type"])
		errKind := ErrProtocol
		if isConflictMessage(msg) || strings.EqualFold(kindName, "conflict") {
			errKind = ErrConflict
		}
		return ToolResult{Raw: raw}, NewToolError(errKind, "%s", nonEmpty(msg, "tool reported failure"))
	}
	res := ToolResult{
		Success: true,
		ID:      extractID(obj),
		Link:    firstString(obj, "link", "url", "self"),
		Title:   firstString(obj, "title", "summary"),
		Raw:     raw,
	}
	if res.Link == "" && res.ID != "" {
		res.Link = synthesizeLink(kind, base, res.ID)
	}
	return res, nil
}

// parseGeneric handles objects that are neither shape. Error keys mean
// failure; an id means success; anything else is a protocol error rather
// than an optimistic success.
func parseGeneric(obj map[string]any, kind ToolKind, base, raw string) (ToolResult, error) {
	if msg := firstString(obj, "error", "errorMessage", "error_message"); msg != "" {
		errKind := ErrProtocol
		if isConflictMessage(msg) {
			errKind = ErrConflict
		}
		return ToolResult{Raw: raw}, NewToolError(errKind, "%s", msg)
	}
	if errs, ok := obj["errors"]; ok {
		return ToolResult{Raw: raw}, NewToolError(ErrProtocol, "%v", errs)
	}
	if id := extractID(obj); id != "" {
		res := ToolResult{
			Success: true,
			ID:      id,
			Link:    firstString(obj, "link", "url", "self"),
			Title:   firstString(obj, "title", "summary"),
			Raw:     raw,
		}
		if res.Link == "" {
			res.Link = synthesizeLink(kind, base, id)
		}
		return res, nil
	}
	return ToolResult{Raw: raw}, NewToolError(ErrProtocol, "response carries neither id nor error")
}

// parseTextHeuristics handles non-JSON text: a URL means the operation
// landed somewhere addressable; an explicit Error: prefix means failure;
// anything else is unusable.
func parseTextHeuristics(text string) (ToolResult, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "Error:") || strings.HasPrefix(trimmed, "error:") {
		msg := strings.TrimSpace(trimmed[len("Error:"):])
		errKind := ErrProtocol
		if isConflictMessage(msg) {
			errKind = ErrConflict
		}
		return ToolResult{Raw: text}, NewToolError(errKind, "%s", msg)
	}
	if link := urlRe.FindString(trimmed); link != "" {
		return ToolResult{Success: true, Link: link, Raw: text}, nil
	}
	return ToolResult{Raw: text}, NewToolError(ErrProtocol, "unrecognized text response")
}

// extractID probes the id keys the known backends use, including the
// nested version.id some page APIs return.
func extractID(obj map[string]any) string {
	if id := firstString(obj, "id", "ticket_id", "key", "pageId", "page_id", "issueKey", "issue_key"); id != "" {
		return id
	}
	if version, ok := obj["version"].(map[string]any); ok {
		return asString(version["id"])
	}
	return ""
}

// synthesizeLink builds a canonical URL from a bare resource id.
func synthesizeLink(kind ToolKind, base, id string) string {
	if base == "" || id == "" {
		return ""
	}
	base = strings.TrimSuffix(base, "/")
	switch kind {
	case KindCreateTicket:
		return base + "/browse/" + id
	default:
		return base + "/wiki/pages/viewpage.action?pageId=" + id
	}
}

// stripCodeFences removes a wrapping markdown code fence (```json ... ```).
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 && len(strings.TrimSpace(trimmed[:idx])) <= 8 {
		// Drop the language tag line (json, JSON, etc).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// extractBalancedObject returns the first balanced top-level JSON object in
// text, respecting string literals and escapes. Returns "" when none closes.
func extractBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// firstString returns the first non-empty string value among keys.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// asString renders scalar JSON values as strings; numbers drop trailing
// zeros so {"id": 42} extracts as "42".
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return stringify(t)
	case bool:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// nonEmpty returns s, or fallback when s is blank.
func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
