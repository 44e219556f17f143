package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestPartitionCollectionName(t *testing.T) {
	p := Partition{TenantID: "acme", Kind: "knowledge"}
	if got := p.CollectionName(); got != "tenant_acme_knowledge" {
		t.Errorf("CollectionName = %q", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestMemoryIndexQueryRanking(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	p := Partition{TenantID: "t1", Kind: "knowledge"}

	err := idx.Upsert(ctx, p, []Entry{
		{ID: "far", Vector: []float32{0, 1, 0}},
		{ID: "near", Vector: []float32{1, 0.1, 0}},
		{ID: "exact", Vector: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := idx.Query(ctx, p, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "near" {
		t.Errorf("ranking = [%s, %s], want [exact, near]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by descending score")
	}
}

func TestMemoryIndexUpsertIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	p := Partition{TenantID: "t1", Kind: "knowledge"}

	entry := Entry{ID: "chunk-1", Vector: []float32{1, 0}, Metadata: map[string]string{"item_id": "a"}}
	for i := 0; i < 3; i++ {
		if err := idx.Upsert(ctx, p, []Entry{entry}); err != nil {
			t.Fatal(err)
		}
	}

	if got := idx.Size(p); got != 1 {
		t.Errorf("partition size = %d after repeated upsert, want 1", got)
	}
}

func TestMemoryIndexPartitionIsolation(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	tenantA := Partition{TenantID: "a", Kind: "knowledge"}
	tenantB := Partition{TenantID: "b", Kind: "knowledge"}
	products := Partition{TenantID: "a", Kind: "products"}

	idx.Upsert(ctx, tenantA, []Entry{{ID: "ka", Vector: []float32{1, 0}}})
	idx.Upsert(ctx, tenantB, []Entry{{ID: "kb", Vector: []float32{1, 0}}})
	idx.Upsert(ctx, products, []Entry{{ID: "pa", Vector: []float32{1, 0}}})

	results, err := idx.Query(ctx, tenantA, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "ka" {
		t.Fatalf("tenant A query leaked entries from other partitions: %v", results)
	}
}

func TestMemoryIndexDelete(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	p := Partition{TenantID: "t1", Kind: "products"}

	idx.Upsert(ctx, p, []Entry{
		{ID: "p1", Vector: []float32{1, 0}},
		{ID: "p2", Vector: []float32{0, 1}},
	})

	if err := idx.Delete(ctx, p, []string{"p1"}); err != nil {
		t.Fatal(err)
	}
	if got := idx.Size(p); got != 1 {
		t.Errorf("size after delete = %d, want 1", got)
	}

	if err := idx.DropPartition(ctx, p); err != nil {
		t.Fatal(err)
	}
	if got := idx.Size(p); got != 0 {
		t.Errorf("size after drop = %d, want 0", got)
	}
}
