package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/repository/memory"
	"ai-docchat-be/internal/service"
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/rag/graph"
	"ai-docchat-be/pkg/stream"

	pktNats "ai-docchat-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var nopLog = logger.NewFromZap(zap.NewNop())

func passThrough(c *fiber.Ctx) error { return c.Next() }

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	return app
}

// directLLM answers every query without retrieval.
type directLLM struct{}

func (directLLM) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return `{"route": "direct"}`, nil
}

func (d directLLM) Generate(ctx context.Context, _ string, o ...llm.Option) (string, error) {
	return d.Chat(ctx, nil, o...)
}

func (directLLM) ChatStream(_ context.Context, _ []llm.Message, onChunk llm.ChunkHandler, _ ...llm.Option) (string, error) {
	for _, part := range []string{"Hi", " there"} {
		if err := onChunk(part); err != nil {
			return "", err
		}
	}
	return "Hi there", nil
}

func newChatApp(t *testing.T) (*fiber.App, *memory.CheckpointRepository) {
	t.Helper()
	checkpoints := memory.NewCheckpointRepository(0)
	svc := service.NewChatService(service.ChatServiceConfig{DefaultProvider: "ollama"}, service.ChatDeps{
		Checkpoints: checkpoints,
		Graphs: func(string) (*graph.Graph, error) {
			return graph.New(graph.Config{}, graph.Deps{Completion: directLLM{}}), nil
		},
		Logger: nopLog,
	})
	app := newApp()
	NewChatController(svc, nopLog).RegisterRoutes(app, passThrough)
	return app, checkpoints
}

func TestChat_StreamsTurnAsSSE(t *testing.T) {
	app, checkpoints := newChatApp(t)

	body := `{"message":"hello","threadId":"t1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	dec := stream.NewDecoder(resp.Body)
	var kinds []stream.Kind
	var events []stream.Event
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Event)
		events = append(events, ev)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, stream.KindDone, kinds[len(kinds)-1])
	assert.Contains(t, kinds, stream.KindPartial)

	display := stream.Replay("hello", events)
	entry, ok := display.Trailing()
	require.True(t, ok)
	assert.Equal(t, "Hi there", entry.Content)

	saved, err := checkpoints.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Len(t, saved.Messages, 2)
}

func TestChat_Validation(t *testing.T) {
	app, _ := newChatApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"message":`},
		{"empty message", `{"message":"","threadId":"t1"}`},
		{"missing thread", `{"message":"hi"}`},
		{"thread too long", `{"message":"hi","threadId":"` + strings.Repeat("x", 129) + `"}`},
		{"bad model override", `{"message":"hi","threadId":"t1","config":{"configurable":{"queryModel":"nomodel"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestChat_CancelWithoutRunningTurn(t *testing.T) {
	app, _ := newChatApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/chat/t9/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out serverutils.BaseResponse[dto.CancelTurnResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "t9", out.Data.ThreadId)
	assert.False(t, out.Data.Cancelled)
}

// stubIngest checks uploads like the real service and records what got through.
type stubIngest struct {
	threadID string
	conf     dto.Configurable
	docs     *dto.IngestDocumentsRequest
}

func (s *stubIngest) CheckUpload(filename string, size int64) error {
	if !strings.HasSuffix(filename, ".pdf") {
		return serverutils.BadRequest("Only PDF files are supported")
	}
	if size > 16 {
		return serverutils.NewAppError(http.StatusRequestEntityTooLarge, "File too large. Maximum size is 10MB", nil)
	}
	return nil
}

func (s *stubIngest) IngestPDF(_ context.Context, threadID, filename string, _ []byte, conf dto.Configurable) (*dto.IngestResponse, error) {
	if threadID == "" {
		return nil, serverutils.BadRequest("threadId is required")
	}
	s.threadID, s.conf = threadID, conf
	return &dto.IngestResponse{Status: "success", Message: "Successfully ingested " + filename + " (1 pages)", ThreadId: threadID, Pages: 1}, nil
}

func (s *stubIngest) IngestDocuments(_ context.Context, req *dto.IngestDocumentsRequest) (*dto.IngestResponse, error) {
	s.docs = req
	return &dto.IngestResponse{Status: "success", ThreadId: req.ThreadId}, nil
}

func multipartRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIngest_ValidationOrder(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		want     int
	}{
		{"no file", "", "", map[string]string{"threadId": "t1"}, http.StatusBadRequest},
		{"not a pdf", "notes.txt", "x", map[string]string{"threadId": "t1"}, http.StatusBadRequest},
		{"too large wins over bad config", "big.pdf", strings.Repeat("x", 32), map[string]string{"threadId": "t1", "config": "{"}, http.StatusRequestEntityTooLarge},
		{"bad config", "a.pdf", "x", map[string]string{"threadId": "t1", "config": "{"}, http.StatusBadRequest},
		{"missing thread", "a.pdf", "x", nil, http.StatusBadRequest},
		{"ok", "a.pdf", "x", map[string]string{"threadId": "t1"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			NewIngestController(&stubIngest{}).RegisterRoutes(app, passThrough)

			resp, err := app.Test(multipartRequest(t, tt.filename, tt.content, tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestIngest_PassesConfig(t *testing.T) {
	stub := &stubIngest{}
	app := newApp()
	NewIngestController(stub).RegisterRoutes(app, passThrough)

	resp, err := app.Test(multipartRequest(t, "a.pdf", "x", map[string]string{
		"threadId": "t1",
		"config":   `{"configurable":{"is_shared":true}}`,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.IngestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "t1", out.ThreadId)
	assert.True(t, stub.conf.IsShared)
}

func TestIngestDocuments(t *testing.T) {
	stub := &stubIngest{}
	app := newApp()
	NewIngestController(stub).RegisterRoutes(app, passThrough)

	req := httptest.NewRequest(http.MethodPost, "/ingest/documents", strings.NewReader(`{"threadId":"t1","docs":"delete"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, stub.docs)
	assert.JSONEq(t, `"delete"`, string(stub.docs.Docs))
}

type stubConversations struct {
	deleted []string
}

func (s *stubConversations) List(_ context.Context, req *dto.ListConversationsRequest) (*dto.ListConversationsResponse, error) {
	return &dto.ListConversationsResponse{Conversations: []dto.ConversationResponse{}, Limit: req.Limit, Offset: req.Offset}, nil
}

func (s *stubConversations) Create(_ context.Context, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	return &dto.ConversationResponse{ThreadId: "new", Title: req.Title, CreatedAt: time.Now()}, nil
}

func (s *stubConversations) History(_ context.Context, threadID string) (*dto.ConversationHistoryResponse, error) {
	if threadID == "missing" {
		return nil, service.ErrConversationNotFound
	}
	return &dto.ConversationHistoryResponse{ThreadId: threadID, Messages: []dto.HistoryMessageResponse{}}, nil
}

func (s *stubConversations) UpdateTitle(_ context.Context, req *dto.UpdateConversationTitleRequest) (*dto.ConversationResponse, error) {
	return &dto.ConversationResponse{ThreadId: req.ThreadId, Title: &req.Title}, nil
}

func (s *stubConversations) Delete(_ context.Context, threadID string) error {
	s.deleted = append(s.deleted, threadID)
	return nil
}

func (s *stubConversations) ListDeleted(context.Context) (*dto.ListDeletedConversationsResponse, error) {
	return &dto.ListDeletedConversationsResponse{Conversations: []dto.DeletedConversationResponse{}}, nil
}

func (s *stubConversations) Restore(_ context.Context, threadID string) (*dto.ConversationResponse, error) {
	return &dto.ConversationResponse{ThreadId: threadID}, nil
}

func (s *stubConversations) Title(context.Context, string) (string, error) { return "", nil }

func (s *stubConversations) RecordTurn(context.Context, string, string) error { return nil }

func (s *stubConversations) ConsumeActivity(context.Context, *pktNats.Subscriber) error { return nil }

func TestConversationRoutes(t *testing.T) {
	stub := &stubConversations{}
	app := newApp()
	NewConversationController(stub).RegisterRoutes(app, passThrough)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"list", http.MethodGet, "/conversations?limit=10&offset=5", "", http.StatusOK},
		{"list limit too large", http.MethodGet, "/conversations?limit=1000", "", http.StatusBadRequest},
		{"create without body", http.MethodPost, "/conversations", "", http.StatusCreated},
		{"create with title", http.MethodPost, "/conversations", `{"title":"Contracts"}`, http.StatusCreated},
		{"deleted", http.MethodGet, "/conversations/deleted", "", http.StatusOK},
		{"history", http.MethodGet, "/conversations/t1/history", "", http.StatusOK},
		{"history missing", http.MethodGet, "/conversations/missing/history", "", http.StatusNotFound},
		{"rename", http.MethodPatch, "/conversations/t1", `{"title":"Renamed"}`, http.StatusOK},
		{"rename empty", http.MethodPatch, "/conversations/t1", `{"title":""}`, http.StatusBadRequest},
		{"delete", http.MethodDelete, "/conversations/t1", "", http.StatusOK},
		{"restore", http.MethodPost, "/conversations/t1/restore", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, []string{"t1"}, stub.deleted)
}

func TestHealth(t *testing.T) {
	app := newApp()
	NewHealthController("0.1.0").RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	var out HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, HealthResponse{Status: "healthy", Version: "0.1.0"}, out)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
