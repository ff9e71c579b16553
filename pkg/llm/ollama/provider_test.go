package ollama

import (
	"ai-docchat-be/pkg/llm"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler func(t *testing.T, req ollamaChatRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(t, req, w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatStream(t *testing.T) {
	srv := newServer(t, func(t *testing.T, req ollamaChatRequest, w http.ResponseWriter) {
		assert.True(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		for _, part := range []string{"Hel", "lo", " there"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})

	p := NewOllamaProvider(srv.URL+"/", "llama3")
	var deltas []string
	out, err := p.ChatStream(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: "ai", Content: "hello"},
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, []string{"Hel", "lo", " there"}, deltas)
}

func TestChatStream_HandlerErrorStops(t *testing.T) {
	srv := newServer(t, func(t *testing.T, _ ollamaChatRequest, w http.ResponseWriter) {
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"b"},"done":true}`)
	})

	stop := errors.New("stop")
	_, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestChatStream_TruncatedStream(t *testing.T) {
	srv := newServer(t, func(t *testing.T, _ ollamaChatRequest, w http.ResponseWriter) {
		fmt.Fprintln(w, `{"message":{"content":"partial"},"done":false}`)
	})

	out, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Equal(t, "partial", out)
}

func TestChatStructured_SendsFormat(t *testing.T) {
	srv := newServer(t, func(t *testing.T, req ollamaChatRequest, w http.ResponseWriter) {
		assert.False(t, req.Stream)
		format, ok := req.Format.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "object", format["type"])
		require.NotNil(t, req.Options.Temperature)
		assert.Equal(t, 0.0, *req.Options.Temperature)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"{\"route\":\"direct\"}"},"done":true}`)
	})

	out, err := NewOllamaProvider(srv.URL, "m").ChatStructured(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		llm.ResponseSchema{Name: "Route", Schema: map[string]interface{}{"type": "object"}},
		llm.WithTemperature(0))

	require.NoError(t, err)
	assert.Equal(t, `{"route":"direct"}`, out)
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
