package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrIntent       = attribute.Key("intent.name")
	AttrIntentSource = attribute.Key("intent.source")

	AttrToolKind   = attribute.Key("tool.kind")
	AttrToolMethod = attribute.Key("tool.method")
	AttrToolStatus = attribute.Key("tool.status")
)
