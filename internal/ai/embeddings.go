package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/generative-ai-go/genai"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/logger"
)

// GeminiEmbedder produces embeddings through the Google Generative AI API.
// Results are cached in Redis keyed by content hash, so re-ingesting an
// unchanged document does not re-bill the API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	redis      *redis.Client
	cacheTTL   time.Duration
	timeout    time.Duration
	maxRetries int
}

func NewGeminiEmbedder(cfg *config.Config, redisClient *redis.Client) (*GeminiEmbedder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      cfg.EmbeddingModel,
		redis:      redisClient,
		cacheTTL:   time.Duration(cfg.EmbedCacheTTLSecs) * time.Second,
		timeout:    time.Duration(cfg.EmbedTimeoutSecs) * time.Second,
		maxRetries: cfg.EmbedMaxRetries,
	}, nil
}

// Embed returns the embedding vector for text, consulting the cache first.
// Transient API failures are retried with exponential backoff; empty input
// fails immediately.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	cacheKey := embedCacheKey(e.model, text)
	if cached := e.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	operation := func() ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		model := e.client.EmbeddingModel(e.model)
		resp, err := model.EmbedContent(callCtx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("no embedding returned"))
		}
		return resp.Embedding.Values, nil
	}

	vector, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(e.maxRetries)),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	e.toCache(ctx, cacheKey, vector)
	return vector, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

func embedCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + ":" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (e *GeminiEmbedder) fromCache(ctx context.Context, key string) []float32 {
	if e.redis == nil {
		return nil
	}

	data, err := e.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		logger.Warn("Corrupt embedding cache entry", "key", key, "error", err)
		e.redis.Del(ctx, key)
		return nil
	}
	return vector
}

func (e *GeminiEmbedder) toCache(ctx context.Context, key string, vector []float32) {
	if e.redis == nil {
		return
	}

	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := e.redis.Set(ctx, key, data, e.cacheTTL).Err(); err != nil {
		logger.Warn("Failed to cache embedding", "key", key, "error", err)
	}
}
