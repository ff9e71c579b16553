package document

import "maps"

// Metadata keys stamped by ingestion and read back by retrieval and prompt formatting.
const (
	MetaUUID              = "uuid"
	MetaSource            = "source"
	MetaPage              = "page"
	MetaThreadID          = "thread_id"
	MetaVisibility        = "visibility"
	MetaConversationTitle = "conversation_title"

	// SharedThreadID marks documents visible to every thread.
	SharedThreadID = "__SHARED__"

	VisibilityShared  = "shared"
	VisibilityPrivate = "private"
)

// Document is an immutable passage of source text. Identity is ID, never the pointer.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"page_content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Source returns the retrieval-source identifier, or "" when the document has none.
func (d Document) Source() string {
	if s, ok := d.Metadata[MetaSource].(string); ok {
		return s
	}
	return ""
}

// Clone returns a copy whose metadata map is not shared with d.
func (d Document) Clone() Document {
	out := d
	if d.Metadata == nil {
		out.Metadata = map[string]interface{}{}
	} else {
		out.Metadata = maps.Clone(d.Metadata)
	}
	return out
}

// Collection is an ordered sequence of documents, unique by ID.
type Collection []Document

func (c Collection) IDs() []string {
	ids := make([]string, len(c))
	for i, d := range c {
		ids[i] = d.ID
	}
	return ids
}

func (c Collection) Contains(id string) bool {
	for _, d := range c {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Clone deep-copies the collection so callers can hand it to another goroutine.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, d := range c {
		out[i] = d.Clone()
	}
	return out
}
