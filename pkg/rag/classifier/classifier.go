package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/rag/prompt"
	"ai-docchat-be/pkg/rag/state"
)

// routeDecision is the structured answer requested from the model.
type routeDecision struct {
	Route string `json:"route" jsonschema:"enum=retrieve,enum=direct,description=retrieve unless the query is a simple greeting"`
}

var routeSchema = llm.ResponseSchema{
	Name:        "RouteDecision",
	Description: "Routing decision for a user query",
	Schema:      llm.GenerateSchema[routeDecision](),
}

// Result is the verdict plus, when the model's answer could not be used as-is, why.
type Result struct {
	Route state.Route
	// Fallback is set when Route was not read from a well-formed model answer.
	Fallback bool
	Reason   string
}

type Classifier struct {
	provider llm.LLMProvider
	builder  *prompt.Builder
}

func New(provider llm.LLMProvider, builder *prompt.Builder) *Classifier {
	if builder == nil {
		builder = prompt.NewBuilder(6)
	}
	return &Classifier{provider: provider, builder: builder}
}

// Classify always returns a valid route. Any provider error or unusable answer
// routes to retrieval.
func (c *Classifier) Classify(ctx context.Context, query string, recent []state.Message, opts ...llm.Option) Result {
	if c.provider == nil {
		return Result{Route: state.RouteRetrieve, Fallback: true, Reason: "no completion provider"}
	}

	msgs := c.builder.Router(query, recent)
	opts = append([]llm.Option{llm.WithTemperature(0), llm.WithMaxTokens(64)}, opts...)

	var (
		raw string
		err error
	)
	if sp, ok := c.provider.(llm.StructuredProvider); ok {
		raw, err = sp.ChatStructured(ctx, msgs, routeSchema, opts...)
	} else {
		raw, err = c.provider.Chat(ctx, msgs, opts...)
	}
	if err != nil {
		return Result{Route: state.RouteRetrieve, Fallback: true, Reason: fmt.Sprintf("completion failed: %v", err)}
	}

	return ParseRoute(raw)
}

// ParseRoute reads a verdict from model output: fenced or embedded JSON first,
// then bare keywords, then retrieve.
func ParseRoute(response string) Result {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Try to extract JSON from response (might be wrapped in text)
	jsonStart := strings.Index(cleaned, "{")
	jsonEnd := strings.LastIndex(cleaned, "}")
	if jsonStart >= 0 && jsonEnd > jsonStart {
		var decision routeDecision
		if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &decision); err == nil {
			route := state.Route(strings.ToLower(strings.TrimSpace(decision.Route)))
			if route.Valid() {
				return Result{Route: route}
			}
			return Result{Route: state.RouteRetrieve, Fallback: true, Reason: fmt.Sprintf("unknown route %q", decision.Route)}
		}
	}

	// keyword fallback
	lower := strings.ToLower(cleaned)
	hasDirect := strings.Contains(lower, "direct")
	hasRetrieve := strings.Contains(lower, "retrieve")
	switch {
	case hasDirect && !hasRetrieve:
		return Result{Route: state.RouteDirect, Fallback: true, Reason: "keyword detection: direct"}
	case hasRetrieve:
		return Result{Route: state.RouteRetrieve, Fallback: true, Reason: "keyword detection: retrieve"}
	}

	return Result{Route: state.RouteRetrieve, Fallback: true, Reason: "unparseable verdict"}
}
