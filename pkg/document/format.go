package document

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// FormatDocs renders documents as an XML-ish block for prompts. Metadata becomes
// attributes (sorted by key) so the model can cite sources.
func FormatDocs(docs []Document) string {
	if len(docs) == 0 {
		return "<documents></documents>"
	}

	var sb strings.Builder
	sb.WriteString("<documents>\n")
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n")
		}
		formatDoc(&sb, d)
	}
	sb.WriteString("\n</documents>")
	return sb.String()
}

func formatDoc(sb *strings.Builder, d Document) {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("<document")
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString(`="`)
		_ = xml.EscapeText(sb, []byte(attrValue(d.Metadata[k])))
		sb.WriteString(`"`)
	}
	sb.WriteString(">\n")
	sb.WriteString(d.Content)
	sb.WriteString("\n</document>")
}

func attrValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
