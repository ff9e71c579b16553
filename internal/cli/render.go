package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/rag/state"
	"ai-docchat-be/pkg/stream"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	contentStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true).
			PaddingLeft(2)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func roleLabel(role string) string {
	if role == state.RoleHuman {
		return userStyle.Render("You")
	}
	return assistantStyle.Render("Assistant")
}

// RenderAnswer prints the final assistant entry of a turn. When its text was
// already streamed to w only the sources are added.
func RenderAnswer(w io.Writer, s stream.DisplayState, streamed bool) {
	entry, ok := s.Trailing()
	if !ok {
		return
	}
	if !streamed || s.Failed {
		fmt.Fprintln(w, roleLabel(entry.Role))
		fmt.Fprintln(w, contentStyle.Render(entry.Content))
	}
	for _, src := range uniqueSources(entry.Sources) {
		fmt.Fprintln(w, sourceStyle.Render("source: "+src))
	}
	fmt.Fprintln(w)
	if s.Failed {
		fmt.Fprintln(w, errorStyle.Render("The turn failed."))
	}
}

func uniqueSources(docs []document.Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range docs {
		src := d.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

// RenderHistory prints a stored conversation.
func RenderHistory(w io.Writer, h *dto.ConversationHistoryResponse) {
	fmt.Fprintln(w, headerStyle.Render("Thread "+h.ThreadId))
	if len(h.Messages) == 0 {
		fmt.Fprintln(w, idStyle.Render("(no messages)"))
		return
	}
	for _, m := range h.Messages {
		fmt.Fprintln(w, roleLabel(m.Role))
		fmt.Fprintln(w, contentStyle.Render(m.Content))
		seen := make(map[string]bool)
		for _, src := range m.Sources {
			name, _ := src.Metadata["source"].(string)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			fmt.Fprintln(w, sourceStyle.Render("source: "+name))
		}
		fmt.Fprintln(w)
	}
}

// RenderConversations prints one line per conversation.
func RenderConversations(w io.Writer, list []dto.ConversationResponse, total int64) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Conversations (%d)", total)))
	for _, c := range list {
		fmt.Fprintf(w, "%s  %s\n", idStyle.Render(c.ThreadId), titleOf(c.Title))
	}
}

func RenderDeleted(w io.Writer, list []dto.DeletedConversationResponse) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Deleted conversations (%d)", len(list))))
	for _, c := range list {
		line := fmt.Sprintf("%s  %s", idStyle.Render(c.ThreadId), titleOf(c.Title))
		if c.ExpiresAt != nil {
			line += idStyle.Render("  expires " + c.ExpiresAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(w, line)
	}
}

func titleOf(t *string) string {
	if t == nil || strings.TrimSpace(*t) == "" {
		return "(untitled)"
	}
	return *t
}
