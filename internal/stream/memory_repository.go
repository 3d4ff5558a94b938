package stream

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	nextID  uint64
	storage map[uint64]Stream
}

// NewMemoryRepository constructs an in-memory stream store for tests and dev
// mode. Identifiers are assigned sequentially starting at zero.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[uint64]Stream)}
}

func (r *memoryRepository) NextID(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id, nil
}

func (r *memoryRepository) Insert(_ context.Context, s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[s.ID]; exists {
		return ErrDuplicateStream
	}
	r.storage[s.ID] = s
	if s.ID >= r.nextID {
		r.nextID = s.ID + 1
	}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uint64) (Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.storage[id]
	if !ok {
		return Stream{}, ErrNotFound
	}
	return s, nil
}

func (r *memoryRepository) Update(_ context.Context, s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[s.ID]; !ok {
		return ErrNotFound
	}
	r.storage[s.ID] = s
	return nil
}

func (r *memoryRepository) ListBySenderWallet(_ context.Context, walletID string) ([]Stream, error) {
	return r.list(func(s Stream) bool { return s.SenderWalletID == walletID })
}

func (r *memoryRepository) ListByRecipientWallet(_ context.Context, walletID string) ([]Stream, error) {
	return r.list(func(s Stream) bool { return s.RecipientWalletID == walletID })
}

func (r *memoryRepository) list(match func(Stream) bool) ([]Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var streams []Stream
	for _, s := range r.storage {
		if match(s) {
			streams = append(streams, s)
		}
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].ID > streams[j].ID })
	return streams, nil
}
