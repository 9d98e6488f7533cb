package ai

import (
	"context"
	"encoding/json"
	"strings"

	"documind/internal/apperr"
)

// EmbeddingConfig holds API settings for text embedding.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.New(apperr.KindValidation, "embedding input is empty")
	}

	vecs, err := c.EmbedBatch(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order. Empty inputs
// are rejected up front so the provider never sees them.
func (c *Client) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperr.New(apperr.KindValidation, "embedding batch contains empty text")
		}
	}

	reqBody := map[string]any{
		"model": cfg.Model,
		"input": texts,
	}
	raw, err := c.post(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanentProvider, "parse embedding json failed", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindPermanentProvider,
			"embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	// The API reports an index per item; honor it so output order always
	// matches input order.
	result := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, apperr.New(apperr.KindPermanentProvider, "empty embedding in response")
		}
		result[idx] = d.Embedding
	}
	return result, nil
}
