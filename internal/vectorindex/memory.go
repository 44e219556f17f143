package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index used in tests and single-node
// development setups. Partition isolation matches the MongoDB
// implementation.
type MemoryIndex struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{partitions: make(map[string]map[string]Entry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, partition Partition, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := partition.CollectionName()
	bucket, ok := m.partitions[name]
	if !ok {
		bucket = make(map[string]Entry)
		m.partitions[name] = bucket
	}

	for _, entry := range entries {
		vector := make([]float32, len(entry.Vector))
		copy(vector, entry.Vector)
		metadata := make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			metadata[k] = v
		}
		bucket[entry.ID] = Entry{ID: entry.ID, Vector: vector, Metadata: metadata}
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, partition Partition, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.partitions[partition.CollectionName()]
	results := make([]Result, 0, len(bucket))
	for _, entry := range bucket {
		results = append(results, Result{
			ID:       entry.ID,
			Score:    CosineSimilarity(vector, entry.Vector),
			Metadata: entry.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) Delete(_ context.Context, partition Partition, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.partitions[partition.CollectionName()]
	for _, id := range ids {
		delete(bucket, id)
	}
	return nil
}

func (m *MemoryIndex) DropPartition(_ context.Context, partition Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.partitions, partition.CollectionName())
	return nil
}

// Size reports the number of entries in a partition, used by tests.
func (m *MemoryIndex) Size(partition Partition) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions[partition.CollectionName()])
}
