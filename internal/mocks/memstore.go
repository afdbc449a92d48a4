package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chat-sync/internal/store"
)

// MemStore is an in-memory Store for tests. Writes notify subscribers
// synchronously, so assertions can run right after the mutating call.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
	subs map[string]map[int]subscriber
	next int
}

type subscriber struct {
	onChange func(store.Snapshot)
}

var _ store.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		docs: map[string]json.RawMessage{},
		subs: map[string]map[int]subscriber{},
	}
}

func key(collection, id string) string {
	return collection + "/" + id
}

func (m *MemStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key(collection, id)]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: data}, nil
}

func (m *MemStore) Set(ctx context.Context, collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key(collection, id)] = data
	m.mu.Unlock()
	m.notify(collection, id)
	return nil
}

func (m *MemStore) Update(ctx context.Context, collection, id string, merges store.Merges) error {
	m.mu.Lock()
	data, ok := m.docs[key(collection, id)]
	if !ok {
		m.mu.Unlock()
		return store.ErrNotFound
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		m.mu.Unlock()
		return err
	}
	for field, value := range merges {
		if union, ok := value.(store.ArrayUnion); ok {
			var arr []json.RawMessage
			if existing, ok := doc[field]; ok {
				if err := json.Unmarshal(existing, &arr); err != nil {
					m.mu.Unlock()
					return err
				}
			}
			for _, elem := range union.Elems {
				raw, err := json.Marshal(elem)
				if err != nil {
					m.mu.Unlock()
					return err
				}
				arr = append(arr, raw)
			}
			merged, err := json.Marshal(arr)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			doc[field] = merged
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		doc[field] = raw
	}
	updated, err := json.Marshal(doc)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.docs[key(collection, id)] = updated
	m.mu.Unlock()
	m.notify(collection, id)
	return nil
}

func (m *MemStore) Query(ctx context.Context, collection, field, value string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []store.Document
	prefix := collection + "/"
	for k, data := range m.docs {
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			continue
		}
		if fmt.Sprintf("%v", fields[field]) == value {
			docs = append(docs, store.Document{ID: k[len(prefix):], Data: data})
		}
	}
	return docs, nil
}

func (m *MemStore) Subscribe(collection, id string, onChange func(store.Snapshot), onError func(error)) func() {
	k := key(collection, id)

	m.mu.Lock()
	if m.subs[k] == nil {
		m.subs[k] = map[int]subscriber{}
	}
	token := m.next
	m.next++
	m.subs[k][token] = subscriber{onChange: onChange}
	data, exists := m.docs[k]
	m.mu.Unlock()

	onChange(store.Snapshot{Document: store.Document{ID: id, Data: data}, Exists: exists})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[k], token)
			m.mu.Unlock()
		})
	}
}

func (m *MemStore) notify(collection, id string) {
	k := key(collection, id)
	m.mu.Lock()
	data := m.docs[k]
	targets := make([]subscriber, 0, len(m.subs[k]))
	for _, sub := range m.subs[k] {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	snap := store.Snapshot{Document: store.Document{ID: id, Data: data}, Exists: true}
	for _, sub := range targets {
		sub.onChange(snap)
	}
}
