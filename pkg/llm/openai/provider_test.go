package openai

import (
	"ai-docchat-be/pkg/llm"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		rateLimit bool
		server    bool
	}{
		{"nil", nil, false, false},
		{"rate limit text", errors.New("429 Too Many Requests"), true, false},
		{"server text", errors.New("Internal Server Error"), false, true},
		{"other", errors.New("invalid api key"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rateLimit, isRateLimitError(tt.err))
			assert.Equal(t, tt.server, isServerError(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	p := &OpenAIProvider{
		rateLimitWaits:   []time.Duration{time.Millisecond, time.Millisecond},
		serverErrorWaits: []time.Duration{time.Millisecond},
	}

	t.Run("retries rate limits then succeeds", func(t *testing.T) {
		calls := 0
		err := p.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("rate limit exceeded")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		calls := 0
		err := p.withRetry(context.Background(), func() error {
			calls++
			return errors.New("bad request")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after the last server wait", func(t *testing.T) {
		calls := 0
		err := p.withRetry(context.Background(), func() error {
			calls++
			return errors.New("server_error")
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops waiting when context ends", func(t *testing.T) {
		slow := &OpenAIProvider{rateLimitWaits: []time.Duration{time.Hour}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := slow.withRetry(ctx, func() error { return errors.New("429") })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hi", " there"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "m", srv.URL)
	var deltas []string
	out, err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
	assert.Equal(t, []string{"Hi", " there"}, deltas)
}
