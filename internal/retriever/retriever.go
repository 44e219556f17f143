package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/vectorindex"
	"tenant-rag-chatbot/models"
)

// KnowledgeResult is one knowledge base hit with its similarity score.
type KnowledgeResult struct {
	Item  models.KnowledgeItem `json:"item"`
	Score float64              `json:"score"`
}

// ProductResult is one catalog hit with its similarity score.
type ProductResult struct {
	Item  models.ProductItem `json:"item"`
	Score float64            `json:"score"`
}

// Retriever answers semantic search queries against a tenant's indexed
// content. When the vector index is unreachable it degrades to empty
// results rather than failing the conversation.
type Retriever struct {
	embedder  ai.Embedder
	index     vectorindex.Index
	knowledge store.KnowledgeStore
	products  store.ProductStore

	defaultLimit int
	minScore     float64
}

func New(embedder ai.Embedder, index vectorindex.Index, knowledge store.KnowledgeStore, products store.ProductStore, defaultLimit int, minScore float64) *Retriever {
	return &Retriever{
		embedder:     embedder,
		index:        index,
		knowledge:    knowledge,
		products:     products,
		defaultLimit: defaultLimit,
		minScore:     minScore,
	}
}

// SearchKnowledge returns the tenant's knowledge items most similar to the
// query, best first. Items below the minimum score or marked inactive are
// dropped.
func (r *Retriever) SearchKnowledge(ctx context.Context, tenantID, query string, limit int) ([]KnowledgeResult, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	hits, err := r.search(ctx, tenantID, models.ItemKindKnowledge, query, limit)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	items, err := r.knowledge.GetByVectorIDs(ctx, tenantID, hitIDs(hits))
	if err != nil {
		return nil, fmt.Errorf("resolving knowledge hits: %w", err)
	}

	byVectorID := make(map[string]models.KnowledgeItem, len(items))
	for _, item := range items {
		byVectorID[item.VectorID] = item
	}

	var results []KnowledgeResult
	for _, hit := range hits {
		item, ok := byVectorID[hit.ID]
		if !ok || !item.IsActive {
			continue
		}
		results = append(results, KnowledgeResult{Item: item, Score: hit.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchProducts is the catalog counterpart of SearchKnowledge.
func (r *Retriever) SearchProducts(ctx context.Context, tenantID, query string, limit int) ([]ProductResult, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	hits, err := r.search(ctx, tenantID, models.ItemKindProduct, query, limit)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	items, err := r.products.GetByVectorIDs(ctx, tenantID, hitIDs(hits))
	if err != nil {
		return nil, fmt.Errorf("resolving product hits: %w", err)
	}

	byVectorID := make(map[string]models.ProductItem, len(items))
	for _, item := range items {
		byVectorID[item.VectorID] = item
	}

	var results []ProductResult
	for _, hit := range hits {
		item, ok := byVectorID[hit.ID]
		if !ok || !item.IsActive {
			continue
		}
		results = append(results, ProductResult{Item: item, Score: hit.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// search embeds the query and runs the partition query, applying the score
// floor. Over-fetching leaves room for hits dropped as inactive.
func (r *Retriever) search(ctx context.Context, tenantID, kind, query string, limit int) ([]vectorindex.Result, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	partition := vectorindex.Partition{TenantID: tenantID, Kind: kind}
	hits, err := r.index.Query(ctx, partition, vector, limit*2)
	if errors.Is(err, vectorindex.ErrUnavailable) {
		logger.Warn("Vector index unavailable, returning empty results",
			"tenant_id", tenantID, "kind", kind)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying vector index: %w", err)
	}

	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Score >= r.minScore {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

func hitIDs(hits []vectorindex.Result) []string {
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	return ids
}
