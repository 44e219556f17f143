package retriever

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/vectorindex"
	"tenant-rag-chatbot/models"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no fake vector for %q", text)
	}
	return v, nil
}

type fakeKnowledgeStore struct {
	store.KnowledgeStore
	items []models.KnowledgeItem
}

func (f *fakeKnowledgeStore) GetByVectorIDs(_ context.Context, tenantID string, vectorIDs []string) ([]models.KnowledgeItem, error) {
	wanted := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		wanted[id] = true
	}

	var out []models.KnowledgeItem
	for _, item := range f.items {
		if item.TenantID == tenantID && wanted[item.VectorID] {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeProductStore struct {
	store.ProductStore
	items []models.ProductItem
}

func (f *fakeProductStore) GetByVectorIDs(_ context.Context, tenantID string, vectorIDs []string) ([]models.ProductItem, error) {
	wanted := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		wanted[id] = true
	}

	var out []models.ProductItem
	for _, item := range f.items {
		if item.TenantID == tenantID && wanted[item.VectorID] {
			out = append(out, item)
		}
	}
	return out, nil
}

type unavailableIndex struct {
	vectorindex.Index
}

func (unavailableIndex) Query(context.Context, vectorindex.Partition, []float32, int) ([]vectorindex.Result, error) {
	return nil, vectorindex.ErrUnavailable
}

func newKnowledgeFixture(t *testing.T) (*Retriever, *vectorindex.MemoryIndex) {
	t.Helper()

	idx := vectorindex.NewMemoryIndex()
	ctx := context.Background()

	idx.Upsert(ctx, vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindKnowledge}, []vectorindex.Entry{
		{ID: "vec-returns", Vector: []float32{1, 0, 0}},
		{ID: "vec-shipping", Vector: []float32{0.9, 0.4, 0}},
		{ID: "vec-offtopic", Vector: []float32{0, 0, 1}},
		{ID: "vec-inactive", Vector: []float32{1, 0.05, 0}},
	})
	idx.Upsert(ctx, vectorindex.Partition{TenantID: "globex", Kind: models.ItemKindKnowledge}, []vectorindex.Entry{
		{ID: "vec-globex", Vector: []float32{1, 0, 0}},
	})

	knowledge := &fakeKnowledgeStore{items: []models.KnowledgeItem{
		{ID: "k1", TenantID: "acme", Title: "Returns", VectorID: "vec-returns", IsActive: true, CreatedAt: time.Now()},
		{ID: "k2", TenantID: "acme", Title: "Shipping", VectorID: "vec-shipping", IsActive: true, CreatedAt: time.Now()},
		{ID: "k3", TenantID: "acme", Title: "Offtopic", VectorID: "vec-offtopic", IsActive: true, CreatedAt: time.Now()},
		{ID: "k4", TenantID: "acme", Title: "Retired", VectorID: "vec-inactive", IsActive: false, CreatedAt: time.Now()},
		{ID: "g1", TenantID: "globex", Title: "Globex secret", VectorID: "vec-globex", IsActive: true, CreatedAt: time.Now()},
	}}

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"return policy": {1, 0, 0},
	}}

	return New(embedder, idx, knowledge, &fakeProductStore{}, 5, 0.7), idx
}

func TestSearchKnowledgeRankingAndFiltering(t *testing.T) {
	r, _ := newKnowledgeFixture(t)

	results, err := r.SearchKnowledge(context.Background(), "acme", "return policy", 5)
	if err != nil {
		t.Fatalf("SearchKnowledge failed: %v", err)
	}

	// Offtopic falls below min score, Retired is inactive.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Item.Title != "Returns" {
		t.Errorf("best hit = %q, want Returns", results[0].Item.Title)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by descending score")
	}
	for _, res := range results {
		if res.Score < 0.7 {
			t.Errorf("result %q below the score floor: %f", res.Item.Title, res.Score)
		}
	}
}

func TestSearchKnowledgeTenantIsolation(t *testing.T) {
	r, _ := newKnowledgeFixture(t)

	results, err := r.SearchKnowledge(context.Background(), "acme", "return policy", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Item.TenantID != "acme" {
			t.Fatalf("result leaked from tenant %q", res.Item.TenantID)
		}
	}

	globex, err := r.SearchKnowledge(context.Background(), "globex", "return policy", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(globex) != 1 || globex[0].Item.ID != "g1" {
		t.Fatalf("globex results = %+v, want only g1", globex)
	}
}

func TestSearchKnowledgeIndexUnavailable(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"anything": {1, 0}}}
	r := New(embedder, unavailableIndex{}, &fakeKnowledgeStore{}, &fakeProductStore{}, 5, 0.7)

	results, err := r.SearchKnowledge(context.Background(), "acme", "anything", 5)
	if err != nil {
		t.Fatalf("expected graceful degradation, got error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestSearchProducts(t *testing.T) {
	idx := vectorindex.NewMemoryIndex()
	ctx := context.Background()

	idx.Upsert(ctx, vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindProduct}, []vectorindex.Entry{
		{ID: "vec-widget", Vector: []float32{1, 0}},
		{ID: "vec-gadget", Vector: []float32{0.8, 0.6}},
	})

	products := &fakeProductStore{items: []models.ProductItem{
		{ID: "p1", TenantID: "acme", Name: "Widget", VectorID: "vec-widget", IsActive: true},
		{ID: "p2", TenantID: "acme", Name: "Gadget", VectorID: "vec-gadget", IsActive: true},
	}}

	embedder := &fakeEmbedder{vectors: map[string][]float32{"widget": {1, 0}}}
	r := New(embedder, idx, &fakeKnowledgeStore{}, products, 5, 0.7)

	results, err := r.SearchProducts(ctx, "acme", "widget", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Item.Name != "Widget" {
		t.Fatalf("results = %+v, want only Widget", results)
	}
}

func TestSearchKnowledgeDefaultLimit(t *testing.T) {
	r, _ := newKnowledgeFixture(t)

	results, err := r.SearchKnowledge(context.Background(), "acme", "return policy", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("default limit should still return results")
	}
}
