package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openfed/manage/pkg/model"
)

// CachingStore is a read-through cache in front of FindByID. Writes
// invalidate eagerly; filter and revision queries always hit the backend
// because their result sets are not keyed by a single document.
type CachingStore struct {
	Store
	cache *lru.Cache[string, *model.MetaData]
}

// NewCachingStore wraps backend with an LRU of the given size.
func NewCachingStore(backend Store, size int) (*CachingStore, error) {
	cache, err := lru.New[string, *model.MetaData](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{Store: backend, cache: cache}, nil
}

func cacheKey(id, entityType string) string { return entityType + "/" + id }

func (s *CachingStore) FindByID(ctx context.Context, id, entityType string) (*model.MetaData, error) {
	key := cacheKey(id, entityType)
	if cached, ok := s.cache.Get(key); ok {
		return cached.Copy(), nil
	}
	record, err := s.Store.FindByID(ctx, id, entityType)
	if err != nil || record == nil {
		return record, err
	}
	s.cache.Add(key, record.Copy())
	return record, nil
}

func (s *CachingStore) Save(ctx context.Context, record *model.MetaData) error {
	s.cache.Remove(cacheKey(record.ID, record.Type))
	return s.Store.Save(ctx, record)
}

func (s *CachingStore) Update(ctx context.Context, record *model.MetaData) error {
	s.cache.Remove(cacheKey(record.ID, record.Type))
	return s.Store.Update(ctx, record)
}

func (s *CachingStore) Remove(ctx context.Context, record *model.MetaData) error {
	s.cache.Remove(cacheKey(record.ID, record.Type))
	return s.Store.Remove(ctx, record)
}
