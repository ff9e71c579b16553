package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{"unit already", []float32{1, 0}, []float32{1, 0}},
		{"3-4-5", []float32{3, 4}, []float32{0.6, 0.8}},
		{"zero vector untouched", []float32{0, 0, 0}, []float32{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeVector(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-6)
			}
		})
	}
}

func TestOllamaProvider_Generate(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		task       string
		wantPrefix string
	}{
		{"nomic query", "nomic-embed-text", TaskRetrievalQuery, "search_query: "},
		{"nomic document", "nomic-embed-text", TaskRetrievalDocument, "search_document: "},
		{"other model unprefixed", "mxbai-embed-large", TaskRetrievalQuery, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ollamaEmbedRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/embed", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				fmt.Fprint(w, `{"embeddings":[[2,0,0]]}`)
			}))
			defer srv.Close()

			resp, err := NewOllamaProvider(srv.URL+"/", tt.model).Generate(context.Background(), "hello", tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix+"hello", got.Input)
			assert.True(t, got.Truncate)

			var mag float64
			for _, v := range resp.Embedding.Values {
				mag += float64(v) * float64(v)
			}
			assert.InDelta(t, 1.0, math.Sqrt(mag), 1e-6)
		})
	}
}

func TestOllamaProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"empty vector", http.StatusOK, `{"embeddings":[]}`, "empty vector"},
		{"server error message", http.StatusNotFound, `{"error":"model \"m\" not found"}`, "not found"},
		{"plain error body", http.StatusBadGateway, `upstream down`, "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "hello", TaskRetrievalQuery)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type countingProvider struct {
	calls int
	err   error
}

func (c *countingProvider) Generate(_ context.Context, text string, _ string) (*EmbeddingResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: []float32{float32(len(text))}}}, nil
}

func TestCachedProvider(t *testing.T) {
	next := &countingProvider{}
	cached := NewCachedProvider(next, time.Minute)
	ctx := context.Background()

	first, err := cached.Generate(ctx, "what is rag", TaskRetrievalQuery)
	require.NoError(t, err)
	second, err := cached.Generate(ctx, "what is rag", TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, next.calls)

	_, err = cached.Generate(ctx, "what is rag", TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "task type is part of the key")
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	next := &countingProvider{err: errors.New("down")}
	cached := NewCachedProvider(next, time.Minute)

	_, err := cached.Generate(context.Background(), "q", TaskRetrievalQuery)
	assert.Error(t, err)
	_, err = cached.Generate(context.Background(), "q", TaskRetrievalQuery)
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
