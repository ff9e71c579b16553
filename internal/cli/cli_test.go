package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/rag/state"
	"ai-docchat-be/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func turnEvents(t *testing.T) []stream.Event {
	t.Helper()
	doc := document.Document{ID: "d1", Content: "renewal is yearly", Metadata: map[string]interface{}{"source": "contract.pdf"}}
	answer := state.Message{ID: "a1", Role: state.RoleAI, Content: "It renews yearly."}

	route, err := stream.Updates("ClassifyQuery", state.Patch{Route: state.RouteRetrieve})
	require.NoError(t, err)
	retrieved, err := stream.Updates("RetrieveDocuments", state.Patch{Documents: []document.Document{doc}})
	require.NoError(t, err)
	partial, err := stream.Partial([]state.Message{{ID: "a1", Role: state.RoleAI, Content: "It renews"}})
	require.NoError(t, err)
	final, err := stream.Updates("GenerateResponse", state.Patch{Messages: []state.Message{answer}})
	require.NoError(t, err)
	return []stream.Event{route, retrieved, partial, final, stream.Done()}
}

func newTestServer(t *testing.T, events []stream.Event) (*httptest.Server, *dto.ChatRequest) {
	t.Helper()
	var got dto.ChatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		enc := stream.NewEncoder(w)
		for i, ev := range events {
			if i == 1 {
				fmt.Fprint(w, "data: {not json}\n\n")
			}
			assert.NoError(t, enc.Encode(ev))
		}
	})
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		title := "Renewal terms"
		_ = json.NewEncoder(w).Encode(serverutils.SuccessResponse("ok", dto.ListConversationsResponse{
			Conversations: []dto.ConversationResponse{{ThreadId: "t1", Title: &title}},
			Total:         1,
			Limit:         50,
		}))
	})
	mux.HandleFunc("/api/conversations/missing/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(serverutils.ErrorResponse(http.StatusNotFound, "Conversation not found"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAsk_JSONOutputFoldsStream(t *testing.T) {
	srv, got := newTestServer(t, turnEvents(t))

	out, err := run(t, "ask", "when does it renew?", "--server", srv.URL, "--thread", "t1", "--model", "openai/gpt-4o-mini", "-o", "json")
	require.NoError(t, err)

	assert.Equal(t, "t1", got.ThreadId)
	require.NotNil(t, got.Config)
	assert.Equal(t, "openai/gpt-4o-mini", got.Config.Configurable.QueryModel)

	var res struct {
		ThreadID string         `json:"thread_id"`
		Messages []stream.Entry `json:"messages"`
		Done     bool           `json:"done"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "t1", res.ThreadID)
	assert.True(t, res.Done)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "It renews yearly.", res.Messages[1].Content)
	assert.False(t, res.Messages[1].Pending)
	require.Len(t, res.Messages[1].Sources, 1)
}

func TestAsk_YAMLOutput(t *testing.T) {
	srv, _ := newTestServer(t, turnEvents(t))

	out, err := run(t, "ask", "when does it renew?", "--server", srv.URL, "-o", "yaml")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res["thread_id"], "a thread id is generated when none is given")
	assert.Len(t, res["messages"], 2)
}

func TestAsk_TextOutputStreamsAnswer(t *testing.T) {
	srv, _ := newTestServer(t, turnEvents(t))

	out, err := run(t, "ask", "when does it renew?", "--server", srv.URL, "--thread", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "It renews")
	assert.Contains(t, out, "source: contract.pdf")
	assert.Contains(t, out, "thread: t1")
}

func TestAsk_ErrorEventFailsCommand(t *testing.T) {
	srv, _ := newTestServer(t, []stream.Event{stream.Error("model unavailable")})

	out, err := run(t, "ask", "hi", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, out, stream.FailureMessage)
}

func TestClient_CountsMalformedFrames(t *testing.T) {
	srv, _ := newTestServer(t, turnEvents(t))
	c := NewClient(srv.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var kinds []stream.Kind
	err := c.Ask(ctx, dto.ChatRequest{Message: "q", ThreadId: "t1"}, func(ev stream.Event) {
		kinds = append(kinds, ev.Event)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Malformed)
	assert.Equal(t, []stream.Kind{stream.KindUpdates, stream.KindUpdates, stream.KindPartial, stream.KindUpdates, stream.KindDone}, kinds)
}

func TestConversationsList_Text(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	out, err := run(t, "conversations", "list", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Conversations (1)")
	assert.Contains(t, out, "Renewal terms")
}

func TestHistory_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := run(t, "history", "missing", "--server", srv.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Conversation not found", apiErr.Message)
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "conversations", "list", "-o", "xml")
	require.Error(t, err)
}
