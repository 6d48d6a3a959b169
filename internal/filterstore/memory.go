package filterstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type memoryOwner struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]ChannelFilter]
}

func (o *memoryOwner) load() []ChannelFilter {
	return *o.snapshot.Load()
}

func (o *memoryOwner) publish(filters []ChannelFilter) {
	o.snapshot.Store(&filters)
}

// MemoryStore keeps rankings in process. Writers serialise on the owner
// mutex and publish a new slice; readers load the current slice without
// locking.
type MemoryStore struct {
	mu     sync.RWMutex
	owners map[string]*memoryOwner
	index  map[string]string // filter id -> integration id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners: make(map[string]*memoryOwner),
		index:  make(map[string]string),
	}
}

func (s *MemoryStore) CreateOwner(_ context.Context, integrationID string, defaultFilter *ChannelFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[integrationID]; ok {
		return ErrOwnerExists
	}

	prepareNew(defaultFilter, integrationID)
	defaultFilter.IsDefault = true
	defaultFilter.Order = 0

	o := &memoryOwner{}
	o.publish([]ChannelFilter{defaultFilter.Clone()})
	s.owners[integrationID] = o
	s.index[defaultFilter.ID] = integrationID
	return nil
}

func (s *MemoryStore) owner(integrationID string) (*memoryOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[integrationID]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	return o, nil
}

func (s *MemoryStore) ownerOf(filterID string) (*memoryOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	integrationID, ok := s.index[filterID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.owners[integrationID], nil
}

func (s *MemoryStore) InsertAt(_ context.Context, filter *ChannelFilter, index int) error {
	o, err := s.owner(filter.IntegrationID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	prepareNew(filter, filter.IntegrationID)
	s.mu.RLock()
	_, exists := s.index[filter.ID]
	s.mu.RUnlock()
	if exists {
		return ErrFilterExists
	}

	next, err := applyInsert(o.load(), filter.Clone(), index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.index[filter.ID] = filter.IntegrationID
	s.mu.Unlock()
	o.publish(next)

	for _, f := range next {
		if f.ID == filter.ID {
			filter.Order = f.Order
		}
	}
	return nil
}

func (s *MemoryStore) MoveTo(_ context.Context, filterID string, index int) error {
	o, err := s.ownerOf(filterID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	current := o.load()
	next, err := applyMove(current, filterID, index)
	if err != nil {
		return err
	}
	changed := make(map[string]bool)
	for _, f := range changedOrders(current, next) {
		changed[f.ID] = true
	}
	now := time.Now()
	for i := range next {
		if changed[next[i].ID] {
			next[i].UpdatedAt = now
		}
	}
	o.publish(next)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, filterID string) error {
	o, err := s.ownerOf(filterID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := applyRemove(o.load(), filterID)
	if err != nil {
		return err
	}
	o.publish(next)

	s.mu.Lock()
	delete(s.index, filterID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, filter *ChannelFilter) error {
	o, err := s.ownerOf(filter.ID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	current := o.load()
	next := make([]ChannelFilter, len(current))
	copy(next, current)
	for i := range next {
		if next[i].ID != filter.ID {
			continue
		}
		updated := filter.Clone()
		updated.IntegrationID = next[i].IntegrationID
		updated.Order = next[i].Order
		updated.IsDefault = next[i].IsDefault
		updated.CreatedAt = next[i].CreatedAt
		updated.UpdatedAt = time.Now()
		next[i] = updated
		o.publish(next)
		*filter = updated.Clone()
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) Get(_ context.Context, filterID string) (*ChannelFilter, error) {
	o, err := s.ownerOf(filterID)
	if err != nil {
		return nil, err
	}

	for _, f := range o.load() {
		if f.ID == filterID {
			out := f.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, integrationID string) ([]ChannelFilter, error) {
	o, err := s.owner(integrationID)
	if err != nil {
		return nil, err
	}

	filters := o.load()
	out := make([]ChannelFilter, len(filters))
	for i, f := range filters {
		out[i] = f.Clone()
	}
	return out, nil
}

func (s *MemoryStore) ListIntegrations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.owners))
	for id := range s.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func prepareNew(filter *ChannelFilter, integrationID string) {
	if filter.ID == "" {
		filter.ID = uuid.New().String()
	}
	filter.IntegrationID = integrationID
	now := time.Now()
	filter.CreatedAt = now
	filter.UpdatedAt = now
}
