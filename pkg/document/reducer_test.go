package document

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id, content string) Document {
	return Document{ID: id, Content: content, Metadata: map[string]interface{}{"source": id + ".pdf"}}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestReduce_AppendAndDedupe(t *testing.T) {
	first, err := Reduce(nil, Batch(doc("a", "alpha"), doc("b", "beta")))
	require.NoError(t, err)

	second, err := Reduce(first, Batch(doc("a", "alpha v2"), doc("c", "gamma")))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, second.IDs())
	assert.Equal(t, "alpha", second[0].Content, "first write wins for an existing id")
	assert.Equal(t, []string{"a", "b"}, first.IDs(), "input collection must not change")
}

func TestReduce_DedupeWithinBatch(t *testing.T) {
	out, err := Reduce(nil, Batch(doc("x", "one"), doc("x", "two")))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "one", out[0].Content)
}

func TestReduce_Clear(t *testing.T) {
	existing, err := Reduce(nil, Batch(doc("a", "alpha"), doc("b", "beta")))
	require.NoError(t, err)

	cleared, err := Reduce(existing, ClearCommand{})
	require.NoError(t, err)
	assert.Empty(t, cleared)
	assert.NotNil(t, cleared)

	cleared, err = Reduce(nil, &ClearCommand{})
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestReduce_Normalization(t *testing.T) {
	r := Reducer{NewID: sequentialIDs()}

	tests := []struct {
		name        string
		input       Input
		wantID      string
		wantContent string
		wantMeta    map[string]interface{}
	}{
		{
			name:        "text input gets generated id and empty metadata",
			input:       TextInput("hello world"),
			wantID:      "gen-1",
			wantContent: "hello world",
			wantMeta:    map[string]interface{}{},
		},
		{
			name:        "record with page_content keeps its id",
			input:       RecordInput{"id": "r1", "page_content": "body", "metadata": map[string]interface{}{"page": 2.0}},
			wantID:      "r1",
			wantContent: "body",
			wantMeta:    map[string]interface{}{"page": 2.0},
		},
		{
			name:        "record with camelCase content falls back to metadata uuid",
			input:       RecordInput{"pageContent": "body", "metadata": map[string]interface{}{"uuid": "u-7"}},
			wantID:      "u-7",
			wantContent: "body",
			wantMeta:    map[string]interface{}{"uuid": "u-7"},
		},
		{
			name:        "record without content becomes metadata",
			input:       RecordInput{"source": "notes.pdf"},
			wantID:      "gen-1",
			wantContent: "",
			wantMeta:    map[string]interface{}{"source": "notes.pdf"},
		},
		{
			name:        "document without id uses metadata uuid",
			input:       Document{Content: "c", Metadata: map[string]interface{}{"uuid": "m-1"}},
			wantID:      "m-1",
			wantContent: "c",
			wantMeta:    map[string]interface{}{"uuid": "m-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.NewID = sequentialIDs()
			out, err := r.Reduce(nil, DocumentBatch{Items: []Input{tt.input}})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantID, out[0].ID)
			assert.Equal(t, tt.wantContent, out[0].Content)
			assert.Equal(t, tt.wantMeta, out[0].Metadata)
		})
	}
}

func TestReduce_DropsMalformedElements(t *testing.T) {
	var dropped []int
	r := Reducer{OnDrop: func(index int, reason string) {
		dropped = append(dropped, index)
		assert.NotEmpty(t, reason)
	}}

	var nilDoc *Document
	out, err := r.Reduce(Collection{doc("a", "alpha")}, DocumentBatch{Items: []Input{
		doc("b", "beta"),
		RecordInput{"page_content": 42},
		nil,
		RecordInput{"page_content": "ok", "metadata": "not-a-map"},
		nilDoc,
		doc("c", "gamma"),
	}})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out.IDs())
	assert.Equal(t, []int{1, 2, 3, 4}, dropped)
}

func TestReduce_InvalidTopLevel(t *testing.T) {
	_, err := Reduce(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidUpdate)

	var nilBatch *DocumentBatch
	_, err = Reduce(nil, nilBatch)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestReduce_DoesNotShareMetadata(t *testing.T) {
	src := doc("a", "alpha")
	out, err := Reduce(nil, Batch(src))
	require.NoError(t, err)

	out[0].Metadata["source"] = "changed"
	assert.Equal(t, "a.pdf", src.Metadata["source"])
}

func TestReduce_RepeatedApplicationIsStable(t *testing.T) {
	batch := Batch(doc("a", "alpha"), doc("b", "beta"))
	once, err := Reduce(nil, batch)
	require.NoError(t, err)
	twice, err := Reduce(once, batch)
	require.NoError(t, err)
	assert.Equal(t, once.IDs(), twice.IDs())
}

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, u Update)
	}{
		{
			name: "delete keyword clears",
			raw:  `"delete"`,
			check: func(t *testing.T, u Update) {
				assert.IsType(t, ClearCommand{}, u)
			},
		},
		{
			name: "single string is one text input",
			raw:  `"just text"`,
			check: func(t *testing.T, u Update) {
				b := u.(DocumentBatch)
				require.Len(t, b.Items, 1)
				assert.Equal(t, TextInput("just text"), b.Items[0])
			},
		},
		{
			name: "array mixes strings records and junk",
			raw:  `["a", {"id": "x", "page_content": "p"}, 12, true]`,
			check: func(t *testing.T, u Update) {
				r := Reducer{NewID: sequentialIDs()}
				dropped := 0
				r.OnDrop = func(int, string) { dropped++ }
				out, err := r.Reduce(nil, u)
				require.NoError(t, err)
				assert.Equal(t, []string{"gen-1", "x"}, out.IDs())
				assert.Equal(t, 2, dropped)
			},
		},
		{
			name: "null is a no-op batch",
			raw:  `null`,
			check: func(t *testing.T, u Update) {
				out, err := Reduce(Collection{doc("a", "alpha")}, u)
				require.NoError(t, err)
				assert.Equal(t, []string{"a"}, out.IDs())
			},
		},
		{name: "object at top level", raw: `{"page_content": "x"}`, wantErr: true},
		{name: "number at top level", raw: `7`, wantErr: true},
		{name: "empty input", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUpdate(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUpdate)
				return
			}
			require.NoError(t, err)
			tt.check(t, u)
		})
	}
}
