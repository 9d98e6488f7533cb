package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"documind/internal/model"
)

// AnswerCache keeps recent answers keyed by tenant and normalized question,
// and an inverted set per document so re-processing or deleting a document
// evicts every cached answer that cited it.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) Get(ctx context.Context, tenantID uint, question string) (*model.Answer, bool, error) {
	key := c.answerKey(tenantID, question)
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get answer failed: %w", err)
	}

	var answer model.Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return &answer, true, nil
}

func (c *AnswerCache) Set(ctx context.Context, tenantID uint, question string, answer *model.Answer, documentIDs []uint) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer failed: %w", err)
	}

	key := c.answerKey(tenantID, question)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	for _, docID := range documentIDs {
		docKey := c.docKey(tenantID, docID)
		if err := c.client.SAdd(ctx, docKey, key).Err(); err != nil {
			return fmt.Errorf("redis track answer key failed: %w", err)
		}
		// Keep the tracking set around a bit longer than the answers it tracks.
		_ = c.client.Expire(ctx, docKey, c.ttl*2).Err()
	}
	return nil
}

// EvictByDocument drops every cached answer that cited the document.
func (c *AnswerCache) EvictByDocument(ctx context.Context, tenantID, documentID uint) error {
	docKey := c.docKey(tenantID, documentID)
	keys, err := c.client.SMembers(ctx, docKey).Result()
	if err != nil && err != redisv9.Nil {
		return fmt.Errorf("redis list answer keys failed: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis evict answers failed: %w", err)
		}
	}
	if err := c.client.Del(ctx, docKey).Err(); err != nil {
		return fmt.Errorf("redis drop tracking set failed: %w", err)
	}
	return nil
}

func (c *AnswerCache) answerKey(tenantID uint, question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("answer:%d:%s", tenantID, hex.EncodeToString(sum[:16]))
}

func (c *AnswerCache) docKey(tenantID, documentID uint) string {
	return fmt.Sprintf("answer-docs:%d:%d", tenantID, documentID)
}
