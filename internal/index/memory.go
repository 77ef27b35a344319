package index

import (
	"context"
	"sort"
	"sync"
)

// MemStore is a VectorStore held in process memory.
type MemStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	records map[string][]Record // By document id.
	order   []string            // Document ids in insertion order.
}

var _ VectorStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		docs:    make(map[string]Document),
		records: make(map[string][]Record),
	}
}

func (m *MemStore) UpsertDocument(ctx context.Context, doc Document, records []Record) error {
	cp := make([]Record, len(records))
	copy(cp, records)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		m.order = append(m.order, doc.ID)
	}
	m.docs[doc.ID] = doc
	m.records[doc.ID] = cp
	return nil
}

func (m *MemStore) Query(ctx context.Context, vec []float32, k int, f Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []Hit
	for _, id := range m.order {
		for _, r := range m.records[id] {
			if !f.Match(r.Chunk) {
				continue
			}
			hits = append(hits, Hit{Chunk: r.Chunk, Score: Cosine(vec, r.Vector)})
		}
	}
	return TopK(hits, k), nil
}

func (m *MemStore) FindByHash(ctx context.Context, hash string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if d := m.docs[id]; d.ContentHash == hash {
			return d, true, nil
		}
	}
	return Document{}, false, nil
}

func (m *MemStore) ListDocuments(ctx context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.order))
	for _, id := range m.order {
		docs = append(docs, m.docs[id])
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (m *MemStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.docs, id)
	delete(m.records, id)
	for i, d := range m.order {
		if d == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored chunks.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rs := range m.records {
		n += len(rs)
	}
	return n
}
