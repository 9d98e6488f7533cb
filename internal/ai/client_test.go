package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/apperr"
)

func embCfg(url string) EmbeddingConfig {
	return EmbeddingConfig{BaseURL: url, APIKey: "test-key", Model: "text-embedding-3-small"}
}

func TestEmbedBatchPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 3)

		// Respond with items out of order; the client must restore order
		// from the index field.
		resp := map[string]any{"data": []map[string]any{
			{"index": 2, "embedding": []float32{3}},
			{"index": 0, "embedding": []float32{1}},
			{"index": 1, "embedding": []float32{2}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.Client())
	vecs, err := client.EmbedBatch(context.Background(), embCfg(srv.URL), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1}, vecs[0])
	assert.Equal(t, []float32{2}, vecs[1])
	assert.Equal(t, []float32{3}, vecs[2])
}

func TestEmbedBatchRejectsEmptyText(t *testing.T) {
	client := NewClient()
	_, err := client.EmbedBatch(context.Background(), embCfg("http://unused"), []string{"a", " "})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProviderErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, apperr.KindTransientProvider},
		{"server error", http.StatusBadGateway, apperr.KindTransientProvider},
		{"bad input", http.StatusBadRequest, apperr.KindPermanentProvider},
		{"unauthorized", http.StatusUnauthorized, apperr.KindPermanentProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := NewClientWithHTTP(srv.Client())
			_, err := client.EmbedBatch(context.Background(), embCfg(srv.URL), []string{"a"})

			require.Error(t, err)
			assert.Equal(t, tc.want, apperr.KindOf(err))
		})
	}
}

func TestBatchEmbedderRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := map[string]any{"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	embedder := NewBatchEmbedder(NewClientWithHTTP(srv.Client()), embCfg(srv.URL), EmbedderOptions{
		MaxRetries:  3,
		RatePerSec:  1000,
		backoffBase: time.Millisecond,
	})

	vec, err := embedder.EmbedOne(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchEmbedderDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	embedder := NewBatchEmbedder(NewClientWithHTTP(srv.Client()), embCfg(srv.URL), EmbedderOptions{
		MaxRetries:  3,
		RatePerSec:  1000,
		backoffBase: time.Millisecond,
	})

	_, err := embedder.EmbedOne(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, apperr.KindPermanentProvider, apperr.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatchEmbedderSplitsAndOrdersBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.Input), 2)

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float32{float32(len(text))}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	embedder := NewBatchEmbedder(NewClientWithHTTP(srv.Client()), embCfg(srv.URL), EmbedderOptions{
		BatchSize:   2,
		Concurrency: 3,
		RatePerSec:  1000,
		backoffBase: time.Millisecond,
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := embedder.EmbedAll(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, []float32{float32(len(text))}, vecs[i])
	}
}

func TestCompleteParsesAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"choices": []map[string]any{
			{"message": map[string]any{"content": "the answer"}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.Client())
	answer, err := client.Complete(context.Background(),
		ChatConfig{BaseURL: srv.URL, Model: "gpt-4o-mini"},
		[]ChatMessage{{Role: "user", Content: "q"}})

	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}
