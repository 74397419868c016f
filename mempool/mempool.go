// mempool/mempool.go
package mempool

import (
	"github.com/google/uuid"
)

// Entry is a pending item tagged with the ID it was admitted under
type Entry[T any] struct {
	ID   string
	Item T
}

// Mempool keeps pending items in admission order.
//
// A Mempool is not safe for concurrent use; the ledger that owns it
// serializes every access under its own lock.
type Mempool[T any] struct {
	entries []Entry[T]
}

// NewMempool creates a new mempool
func NewMempool[T any]() *Mempool[T] {
	return &Mempool[T]{
		entries: make([]Entry[T], 0),
	}
}

// AddItem appends an item and returns the ID assigned to it
func (mp *Mempool[T]) AddItem(item T) string {
	id := uuid.New().String()
	mp.entries = append(mp.entries, Entry[T]{ID: id, Item: item})
	return id
}

// GetItem retrieves an item from the mempool
func (mp *Mempool[T]) GetItem(id string) (T, bool) {
	for _, e := range mp.entries {
		if e.ID == id {
			return e.Item, true
		}
	}
	var zero T
	return zero, false
}

// RemoveItem removes an item from the mempool, reporting whether it was present
func (mp *Mempool[T]) RemoveItem(id string) bool {
	for i, e := range mp.entries {
		if e.ID == id {
			mp.entries = append(mp.entries[:i:i], mp.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveProcessedItems drops every entry whose ID is in ids, keeping the order of the rest
func (mp *Mempool[T]) RemoveProcessedItems(ids []string) {
	if len(ids) == 0 {
		return
	}
	processed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		processed[id] = struct{}{}
	}
	kept := make([]Entry[T], 0, len(mp.entries))
	for _, e := range mp.entries {
		if _, ok := processed[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	mp.entries = kept
}

// GetPendingItems returns the items in admission order
func (mp *Mempool[T]) GetPendingItems() []T {
	result := make([]T, 0, len(mp.entries))
	for _, e := range mp.entries {
		result = append(result, e.Item)
	}
	return result
}

// GetAllEntries returns a copy of the entries with their IDs
func (mp *Mempool[T]) GetAllEntries() []Entry[T] {
	result := make([]Entry[T], len(mp.entries))
	copy(result, mp.entries)
	return result
}

// GetSize returns the number of items in the mempool
func (mp *Mempool[T]) GetSize() int {
	return len(mp.entries)
}

// Clear removes all items from the mempool
func (mp *Mempool[T]) Clear() {
	mp.entries = make([]Entry[T], 0)
}
