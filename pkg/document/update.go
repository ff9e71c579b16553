package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidUpdate is returned when the top-level reducer input is neither a batch nor the clear command.
var ErrInvalidUpdate = errors.New("document: invalid update")

// Update is the reducer input. It is one of ClearCommand or DocumentBatch.
type Update interface {
	isUpdate()
}

// ClearCommand resets the collection to empty. It is the only way to shrink a collection.
type ClearCommand struct{}

// DocumentBatch appends its items, in order, skipping ids that are already present.
type DocumentBatch struct {
	Items []Input
}

func (ClearCommand) isUpdate() {}
func (DocumentBatch) isUpdate() {}

// Input is one element of a batch: a Document, a TextInput or a RecordInput.
type Input interface {
	isInput()
}

// TextInput becomes a document with the text as content and empty metadata.
type TextInput string

// RecordInput is a partially filled document record, typically decoded from JSON.
// Recognised keys: id, page_content, pageContent, content, metadata.
type RecordInput map[string]interface{}

// unknownInput carries an element whose shape could not be recognised, so the
// reducer can drop it with a reason instead of failing the batch.
type unknownInput struct {
	raw json.RawMessage
}

func (Document) isInput() {}
func (TextInput) isInput() {}
func (RecordInput) isInput() {}
func (unknownInput) isInput() {}

// Batch builds a DocumentBatch from ready documents.
func Batch(docs ...Document) DocumentBatch {
	items := make([]Input, len(docs))
	for i, d := range docs {
		items[i] = d
	}
	return DocumentBatch{Items: items}
}

// Texts builds a DocumentBatch from plain strings.
func Texts(texts ...string) DocumentBatch {
	items := make([]Input, len(texts))
	for i, t := range texts {
		items[i] = TextInput(t)
	}
	return DocumentBatch{Items: items}
}

const clearKeyword = "delete"

// ParseUpdate decodes the wire form of a reducer input.
//
//	"delete"          -> ClearCommand
//	"some text"       -> batch of one text input
//	[ ... ]           -> batch; strings and objects are inputs, anything else is dropped later
//	null              -> empty batch (no-op)
//
// Any other top-level value is ErrInvalidUpdate.
func ParseUpdate(raw json.RawMessage) (Update, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidUpdate)
	}

	switch trimmed[0] {
	case 'n':
		if string(trimmed) == "null" {
			return DocumentBatch{}, nil
		}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		if s == clearKeyword {
			return ClearCommand{}, nil
		}
		return Texts(s), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		batch := DocumentBatch{Items: make([]Input, 0, len(elems))}
		for _, elem := range elems {
			batch.Items = append(batch.Items, parseInput(elem))
		}
		return batch, nil
	}

	return nil, fmt.Errorf("%w: expected \"delete\", a string or an array", ErrInvalidUpdate)
}

func parseInput(elem json.RawMessage) Input {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 {
		return unknownInput{raw: elem}
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return TextInput(s)
		}
	case '{':
		var rec map[string]interface{}
		if err := json.Unmarshal(trimmed, &rec); err == nil {
			return RecordInput(rec)
		}
	}
	return unknownInput{raw: elem}
}
