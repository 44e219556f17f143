package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/logger"
)

type vectorDoc struct {
	ID       string            `bson:"_id"`
	Vector   []float32         `bson:"vector"`
	Metadata map[string]string `bson:"metadata,omitempty"`
}

// MongoIndex stores vectors in per-partition MongoDB collections. Queries
// use an Atlas Search $vectorSearch stage when enabled, otherwise an exact
// cosine scan over the partition.
type MongoIndex struct {
	db *mongo.Database

	atlasEnabled bool
	atlasIndex   string

	mu          sync.RWMutex
	collections map[string]*mongo.Collection
}

func NewMongoIndex(db *mongo.Database, cfg *config.Config) *MongoIndex {
	return &MongoIndex{
		db:           db,
		atlasEnabled: cfg.VectorSearchEnabled,
		atlasIndex:   cfg.VectorIndexName,
		collections:  make(map[string]*mongo.Collection),
	}
}

func (m *MongoIndex) collection(partition Partition) *mongo.Collection {
	name := partition.CollectionName()

	m.mu.RLock()
	coll, ok := m.collections[name]
	m.mu.RUnlock()
	if ok {
		return coll
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if coll, ok := m.collections[name]; ok {
		return coll
	}
	coll = m.db.Collection(name)
	m.collections[name] = coll
	return coll
}

// Upsert writes entries in one unordered bulk operation keyed by entry ID,
// so repeated ingestion of the same chunks is idempotent.
func (m *MongoIndex) Upsert(ctx context.Context, partition Partition, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return fmt.Errorf("entry %s has an empty vector", entry.ID)
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": entry.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"vector":   entry.Vector,
				"metadata": entry.Metadata,
			}}).
			SetUpsert(true))
	}

	_, err := m.collection(partition).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("%w: bulk upsert into %s: %v", ErrUnavailable, partition.CollectionName(), err)
	}
	return nil
}

func (m *MongoIndex) Query(ctx context.Context, partition Partition, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	if m.atlasEnabled {
		results, err := m.queryAtlas(ctx, partition, vector, topK)
		if err == nil {
			return results, nil
		}
		logger.Warn("Atlas vector search failed, falling back to exact scan",
			"collection", partition.CollectionName(), "error", err)
	}

	return m.queryExact(ctx, partition, vector, topK)
}

func (m *MongoIndex) queryAtlas(ctx context.Context, partition Partition, vector []float32, topK int) ([]Result, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         m.atlasIndex,
			"path":          "vector",
			"queryVector":   vector,
			"numCandidates": topK * 10,
			"limit":         topK,
		}}},
		{{Key: "$project", Value: bson.M{
			"metadata": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.collection(partition).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []Result
	for cursor.Next(ctx) {
		var doc struct {
			ID       string            `bson:"_id"`
			Score    float64           `bson:"score"`
			Metadata map[string]string `bson:"metadata"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, Result{ID: doc.ID, Score: doc.Score, Metadata: doc.Metadata})
	}
	return results, cursor.Err()
}

// queryExact scans the whole partition and ranks by cosine similarity.
// Fine for the collection sizes a single tenant produces; Atlas search takes
// over beyond that.
func (m *MongoIndex) queryExact(ctx context.Context, partition Partition, vector []float32, topK int) ([]Result, error) {
	cursor, err := m.collection(partition).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", ErrUnavailable, partition.CollectionName(), err)
	}
	defer cursor.Close(ctx)

	var results []Result
	for cursor.Next(ctx) {
		var doc vectorDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding vector doc: %w", err)
		}
		results = append(results, Result{
			ID:       doc.ID,
			Score:    CosineSimilarity(vector, doc.Vector),
			Metadata: doc.Metadata,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", ErrUnavailable, partition.CollectionName(), err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MongoIndex) Delete(ctx context.Context, partition Partition, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := m.collection(partition).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("%w: deleting from %s: %v", ErrUnavailable, partition.CollectionName(), err)
	}
	return nil
}

func (m *MongoIndex) DropPartition(ctx context.Context, partition Partition) error {
	if err := m.collection(partition).Drop(ctx); err != nil {
		return fmt.Errorf("%w: dropping %s: %v", ErrUnavailable, partition.CollectionName(), err)
	}

	m.mu.Lock()
	delete(m.collections, partition.CollectionName())
	m.mu.Unlock()
	return nil
}
