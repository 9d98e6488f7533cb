package ai

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"documind/internal/apperr"
)

// EmbedderOptions bounds how the BatchEmbedder calls the provider.
type EmbedderOptions struct {
	BatchSize   int
	Concurrency int
	MaxRetries  int
	RatePerSec  float64
	// backoffBase is overridden in tests to keep them fast.
	backoffBase time.Duration
}

// BatchEmbedder splits inputs into provider-sized batches, issues them
// concurrently under a rate limit, and retries transient failures with
// exponential backoff and jitter. Output order always matches input order.
type BatchEmbedder struct {
	client  *Client
	cfg     EmbeddingConfig
	opts    EmbedderOptions
	limiter *rate.Limiter
}

func NewBatchEmbedder(client *Client, cfg EmbeddingConfig, opts EmbedderOptions) *BatchEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.backoffBase <= 0 {
		opts.backoffBase = 500 * time.Millisecond
	}
	return &BatchEmbedder{
		client:  client,
		cfg:     cfg,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// Model returns the embedding model identifier this embedder produces
// vectors with. Chunks indexed under a different model are version-skewed.
func (b *BatchEmbedder) Model() string { return b.cfg.Model }

// EmbedAll embeds every text and returns vectors in input order.
func (b *BatchEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for start := 0; start < len(texts); start += b.opts.BatchSize {
		end := start + b.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := b.embedWithRetry(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne embeds a single text through the same rate limit and retry path.
func (b *BatchEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *BatchEmbedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, b.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := b.client.EmbedBatch(ctx, b.cfg, batch)
		if err == nil {
			return vecs, nil
		}
		if apperr.KindOf(err) != apperr.KindTransientProvider {
			return nil, err
		}
		lastErr = err
	}
	return nil, apperr.Wrap(apperr.KindTransientProvider, "embedding retries exhausted", lastErr)
}

// backoff doubles per attempt with up to 25% random jitter.
func (b *BatchEmbedder) backoff(attempt int) time.Duration {
	d := b.opts.backoffBase << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
