package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable is returned when the index backend cannot be reached.
// Callers that can degrade (retrieval) treat it as "no results"; callers
// that cannot (ingestion) propagate it.
var ErrUnavailable = errors.New("vector index unavailable")

// Partition identifies one tenant-scoped vector collection. Kind separates
// knowledge base content from the product catalog.
type Partition struct {
	TenantID string
	Kind     string
}

// CollectionName returns the backing collection for this partition.
func (p Partition) CollectionName() string {
	return fmt.Sprintf("tenant_%s_%s", p.TenantID, p.Kind)
}

// Entry is one stored vector. ID is the deterministic chunk identity, so
// upserting the same entry twice overwrites rather than duplicates.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Result is one query hit. Score is cosine similarity in [-1, 1], higher is
// more similar.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Index stores and searches embedding vectors partitioned per tenant and
// content kind. Implementations must never return results across
// partitions.
type Index interface {
	Upsert(ctx context.Context, partition Partition, entries []Entry) error
	Query(ctx context.Context, partition Partition, vector []float32, topK int) ([]Result, error)
	Delete(ctx context.Context, partition Partition, ids []string) error
	// DropPartition removes the whole collection, used when a tenant or
	// content kind is wiped.
	DropPartition(ctx context.Context, partition Partition) error
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
