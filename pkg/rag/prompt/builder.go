package prompt

import (
	"fmt"
	"strings"

	"ai-docchat-be/internal/constant"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/rag/state"
)

// Builder turns conversation state into provider-agnostic chat messages.
type Builder struct {
	// HistoryWindow caps how many prior messages are replayed to the model. Zero means all.
	HistoryWindow int
	// RouterSnippetLen truncates each history line shown to the router.
	RouterSnippetLen int
}

func NewBuilder(historyWindow int) *Builder {
	return &Builder{HistoryWindow: historyWindow, RouterSnippetLen: 200}
}

// Router asks for a {"route": ...} verdict on query, with recent messages as context.
func (b *Builder) Router(query string, recent []state.Message) []llm.Message {
	user := query
	if history := b.routerHistory(recent); history != "" {
		user = fmt.Sprintf(constant.RouterHistoryTemplate, history, query)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: constant.RouterSystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}

// Grounded builds the retrieve-path prompt: grounding rules with the formatted
// documents, then the conversation ending in the current question.
func (b *Builder) Grounded(messages []state.Message, query string, docs []document.Document) []llm.Message {
	system := fmt.Sprintf(constant.ResponseSystemPrompt, query, document.FormatDocs(docs))
	out := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	out = append(out, b.history(messages)...)
	return ensureQuery(out, query)
}

// Direct builds the greeting-only prompt. Documents are never included.
func (b *Builder) Direct(query string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: constant.DirectAnswerSystemPrompt},
		{Role: llm.RoleUser, Content: query},
	}
}

func (b *Builder) history(messages []state.Message) []llm.Message {
	window := messages
	if b.HistoryWindow > 0 && len(window) > b.HistoryWindow {
		window = window[len(window)-b.HistoryWindow:]
	}
	out := make([]llm.Message, 0, len(window))
	for _, m := range window {
		out = append(out, llm.Message{Role: toLLMRole(m.Role), Content: m.Content})
	}
	return out
}

func (b *Builder) routerHistory(recent []state.Message) string {
	// the last entry is the query itself
	if n := len(recent); n > 0 && recent[n-1].Role == state.RoleHuman {
		recent = recent[:n-1]
	}
	if b.HistoryWindow > 0 && len(recent) > b.HistoryWindow {
		recent = recent[len(recent)-b.HistoryWindow:]
	}

	var sb strings.Builder
	for _, m := range recent {
		role := "User"
		if m.Role == state.RoleAI {
			role = "Assistant"
		}

		// Truncate long messages for prompt efficiency
		content := m.Content
		if b.RouterSnippetLen > 0 && len(content) > b.RouterSnippetLen {
			content = content[:b.RouterSnippetLen] + "..."
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", role, content))
	}
	return sb.String()
}

// ensureQuery appends the question when the replayed history does not already end with it.
func ensureQuery(msgs []llm.Message, query string) []llm.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == llm.RoleUser && msgs[n-1].Content == query {
		return msgs
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
}

func toLLMRole(role string) string {
	if role == state.RoleAI {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
