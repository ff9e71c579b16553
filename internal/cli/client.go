package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/pkg/stream"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the REST surface of the service.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// Malformed counts stream frames the decoder skipped during the last Ask.
	Malformed int
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		// no overall timeout: answers stream for as long as the model talks
		HTTP: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second}},
	}
}

// Ask posts one chat turn and calls onEvent for each decoded stream event, in order.
func (c *Client) Ask(ctx context.Context, req dto.ChatRequest, onEvent func(stream.Event)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.Malformed = 0
	dec := stream.NewDecoder(resp.Body)
	dec.OnMalformed = func(string, error) { c.Malformed++ }
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		onEvent(ev)
	}
}

func (c *Client) CancelTurn(ctx context.Context, threadID string) (*dto.CancelTurnResponse, error) {
	var out dto.CancelTurnResponse
	return &out, c.call(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(threadID)+"/cancel", nil, &out)
}

func (c *Client) ListConversations(ctx context.Context, limit, offset int) (*dto.ListConversationsResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	path := "/api/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out dto.ListConversationsResponse
	return &out, c.call(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) ListDeleted(ctx context.Context) (*dto.ListDeletedConversationsResponse, error) {
	var out dto.ListDeletedConversationsResponse
	return &out, c.call(ctx, http.MethodGet, "/api/conversations/deleted", nil, &out)
}

func (c *Client) CreateConversation(ctx context.Context, title string) (*dto.ConversationResponse, error) {
	req := dto.CreateConversationRequest{}
	if title != "" {
		req.Title = &title
	}
	var out dto.ConversationResponse
	return &out, c.call(ctx, http.MethodPost, "/api/conversations", req, &out)
}

func (c *Client) DeleteConversation(ctx context.Context, threadID string) error {
	return c.call(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(threadID), nil, nil)
}

func (c *Client) RestoreConversation(ctx context.Context, threadID string) (*dto.ConversationResponse, error) {
	var out dto.ConversationResponse
	return &out, c.call(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(threadID)+"/restore", nil, &out)
}

func (c *Client) History(ctx context.Context, threadID string) (*dto.ConversationHistoryResponse, error) {
	var out dto.ConversationHistoryResponse
	return &out, c.call(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(threadID)+"/history", nil, &out)
}

// call sends a JSON request and unwraps the success envelope into out.
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	envelope := serverutils.BaseResponse[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var envelope serverutils.BaseResponse[any]
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
