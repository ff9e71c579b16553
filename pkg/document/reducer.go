package document

import (
	"fmt"

	"github.com/google/uuid"
)

// DropFunc is told about every batch element the reducer could not normalise.
type DropFunc func(index int, reason string)

// Reducer merges updates into a collection. The zero value is ready to use.
type Reducer struct {
	// OnDrop, when set, receives dropped elements. Dropping never fails the batch.
	OnDrop DropFunc
	// NewID generates ids for inputs that carry none. Defaults to a random UUID.
	NewID func() string
}

// Reduce applies update to current with the default reducer.
func Reduce(current Collection, update Update) (Collection, error) {
	return Reducer{}.Reduce(current, update)
}

// Reduce returns a new collection; current is never modified.
//
// ClearCommand yields the empty collection. A DocumentBatch appends its normalised
// items in order and skips any id already present (first write wins, also within
// the batch itself). Any other update value is ErrInvalidUpdate.
func (r Reducer) Reduce(current Collection, update Update) (Collection, error) {
	var items []Input
	switch u := update.(type) {
	case ClearCommand, *ClearCommand:
		return Collection{}, nil
	case DocumentBatch:
		items = u.Items
	case *DocumentBatch:
		if u == nil {
			return nil, fmt.Errorf("%w: nil batch", ErrInvalidUpdate)
		}
		items = u.Items
	case nil:
		return nil, fmt.Errorf("%w: nil update", ErrInvalidUpdate)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidUpdate, update)
	}

	out := make(Collection, len(current), len(current)+len(items))
	copy(out, current)

	seen := make(map[string]struct{}, len(out)+len(items))
	for _, d := range out {
		seen[d.ID] = struct{}{}
	}

	for i, item := range items {
		doc, reason, ok := r.normalize(item)
		if !ok {
			r.drop(i, reason)
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}

	return out, nil
}

func (r Reducer) drop(index int, reason string) {
	if r.OnDrop != nil {
		r.OnDrop(index, reason)
	}
}

func (r Reducer) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r Reducer) normalize(item Input) (Document, string, bool) {
	switch v := item.(type) {
	case Document:
		return r.fromDocument(v), "", true
	case *Document:
		if v == nil {
			return Document{}, "nil document", false
		}
		return r.fromDocument(*v), "", true
	case TextInput:
		return Document{ID: r.newID(), Content: string(v), Metadata: map[string]interface{}{}}, "", true
	case RecordInput:
		if v == nil {
			return Document{}, "nil record", false
		}
		return r.fromRecord(v)
	case unknownInput:
		return Document{}, fmt.Sprintf("unrecognised element %s", truncate(string(v.raw), 64)), false
	case nil:
		return Document{}, "nil element", false
	default:
		return Document{}, fmt.Sprintf("unsupported element type %T", item), false
	}
}

func (r Reducer) fromDocument(d Document) Document {
	out := d.Clone()
	if out.ID == "" {
		if id, ok := out.Metadata[MetaUUID].(string); ok && id != "" {
			out.ID = id
		} else {
			out.ID = r.newID()
		}
	}
	return out
}

var contentKeys = []string{"page_content", "pageContent", "content"}

func (r Reducer) fromRecord(rec RecordInput) (Document, string, bool) {
	meta := map[string]interface{}{}
	if raw, present := rec["metadata"]; present && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return Document{}, fmt.Sprintf("metadata is %T, want object", raw), false
		}
		for k, v := range m {
			meta[k] = v
		}
	}

	content := ""
	hasContent := false
	for _, key := range contentKeys {
		raw, present := rec[key]
		if !present {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return Document{}, fmt.Sprintf("%s is %T, want string", key, raw), false
		}
		content = s
		hasContent = true
		break
	}

	// A record without content is treated as bare metadata.
	if !hasContent {
		for k, v := range rec {
			if k == "id" || k == "metadata" {
				continue
			}
			meta[k] = v
		}
	}

	var id string
	switch {
	case nonEmpty(rec["id"]):
		id = rec["id"].(string)
	case nonEmpty(meta[MetaUUID]):
		id = meta[MetaUUID].(string)
	default:
		id = r.newID()
	}

	return Document{ID: id, Content: content, Metadata: meta}, "", true
}

func nonEmpty(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
