package segue

import (
	"fmt"
	"strconv"
	"strings"
)

// BindError is a categorized argument-binding failure. Surfaces to callers
// as schema_validation; the Reason distinguishes the three failure modes.
type BindError struct {
	Reason   string // "missing_required", "type_mismatch", "enum_violation"
	Property string
	Detail   string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Property, e.Detail)
}

// staticAliases seeds the parameter-name alias table. Keys and values are
// interchangeable in both directions; resolution tries every member of the
// group a schema property belongs to.
var staticAliases = [][]string{
	{"title", "name", "pageTitle", "summary"},
	{"content", "body", "html", "text", "description"},
	{"space", "spaceKey", "spaceId", "space_key", "space_id"},
	{"cloudId", "cloud_id"},
	{"contentFormat", "content_format", "format"},
}

// aliasesFor returns every alternative key to probe for a schema property,
// in priority order: static alias group members, generated snake/camel
// variants, and Id/Key interchange (some APIs treat these as equivalent).
func aliasesFor(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	for _, group := range staticAliases {
		for _, member := range group {
			if strings.EqualFold(member, name) {
				for _, alias := range group {
					add(alias)
				}
			}
		}
	}

	add(camelToSnake(name))
	add(snakeToCamel(name))

	// fooId <-> fooKey: interchangeable resource identifiers in some APIs.
	for _, v := range swapIDKey(name) {
		add(v)
		add(camelToSnake(v))
		add(snakeToCamel(v))
	}
	return out
}

// camelToSnake converts fooId -> foo_id. Returns "" when nothing changes.
func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	if out := b.String(); out != s {
		return out
	}
	return ""
}

// snakeToCamel converts foo_id -> fooId. Returns "" when nothing changes.
func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) < 2 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// swapIDKey returns Id<->Key suffix variants of a name.
func swapIDKey(s string) []string {
	switch {
	case strings.HasSuffix(s, "Id"):
		return []string{strings.TrimSuffix(s, "Id") + "Key"}
	case strings.HasSuffix(s, "Key"):
		return []string{strings.TrimSuffix(s, "Key") + "Id"}
	case strings.HasSuffix(s, "_id"):
		return []string{strings.TrimSuffix(s, "_id") + "_key"}
	case strings.HasSuffix(s, "_key"):
		return []string{strings.TrimSuffix(s, "_key") + "_id"}
	}
	return nil
}

// BindArguments maps internal data onto a tool's declared input schema.
// For each declared property it resolves a value (internal data, call
// context, alias table, case-insensitive match), coerces it to the declared
// primitive type, and validates enum membership. Properties are processed
// in schema declaration order; the result's keys are always a subset of the
// schema's properties.
func BindArguments(schema InputSchema, internal, callCtx map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(schema.Order))

	for _, name := range schema.Order {
		prop := schema.Properties[name]

		value, found := resolveValue(name, internal, callCtx)

		if !found {
			if dv := defaultFor(name, prop); dv != nil {
				args[name] = dv
				continue
			}
			if schema.IsRequired(name) {
				return nil, &BindError{Reason: "missing_required", Property: name, Detail: "no value resolved"}
			}
			continue
		}

		coerced, err := coerce(value, prop.Type)
		if err != nil {
			return nil, &BindError{Reason: "type_mismatch", Property: name, Detail: err.Error()}
		}

		if enum := prop.EnumValues(); len(enum) > 0 && !enumContains(enum, coerced) {
			return nil, &BindError{Reason: "enum_violation", Property: name, Detail: fmt.Sprintf("%v not in %v", coerced, enum)}
		}

		args[name] = coerced
	}
	return args, nil
}

// resolveValue probes the sources in priority order: exact key in internal
// data, exact key in call context, each alias in both maps, then a
// case-insensitive sweep of both maps.
func resolveValue(name string, internal, callCtx map[string]any) (any, bool) {
	if v, ok := internal[name]; ok {
		return v, true
	}
	if v, ok := callCtx[name]; ok {
		return v, true
	}
	for _, alias := range aliasesFor(name) {
		if v, ok := internal[alias]; ok {
			return v, true
		}
		if v, ok := callCtx[alias]; ok {
			return v, true
		}
	}
	for k, v := range internal {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	for k, v := range callCtx {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// defaultFor picks a value for an absent property: the schema default when
// declared; for contentFormat with no enum specifically, "markdown".
func defaultFor(name string, prop Property) any {
	if prop.Default != nil {
		return prop.Default
	}
	if name == "contentFormat" && len(prop.EnumValues()) == 0 {
		return "markdown"
	}
	return nil
}

// coerce converts a resolved value to the declared primitive type.
func coerce(v any, typ string) (any, error) {
	switch typ {
	case "", "string":
		return stringify(v), nil
	case "integer":
		switch t := v.(type) {
		case int:
			return t, nil
		case int64:
			return int(t), nil
		case float64:
			if t != float64(int(t)) {
				return nil, fmt.Errorf("%v is not an integer", t)
			}
			return int(t), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("%q is not numeric", t)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("cannot convert %T to integer", v)
		}
	case "number":
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not numeric", t)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("cannot convert %T to number", v)
		}
	case "boolean":
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "yes", "on":
				return true, nil
			case "false", "0", "no", "off":
				return false, nil
			}
			return nil, fmt.Errorf("%q is not boolean", t)
		default:
			return nil, fmt.Errorf("cannot convert %T to boolean", v)
		}
	default:
		// Unrecognized declared types pass through untouched.
		return v, nil
	}
}

// stringify renders a value as the string form a string-typed parameter
// expects. Slices join with newlines (acceptance criteria lists etc).
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, "\n")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, "\n")
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// enumContains checks membership with string-insensitive comparison, since
// coercion may have changed the value's Go type relative to the enum's.
func enumContains(enum []any, v any) bool {
	vs := stringify(v)
	for _, e := range enum {
		if stringify(e) == vs {
			return true
		}
	}
	return false
}
