package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openfed/manage/pkg/model"
)

// MemoryStore is an in-process Store used for development and as the test
// double for the engine. Records are deep-copied on the way in and out so
// callers never alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*model.MetaData // type -> id -> record
	counter int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]map[string]*model.MetaData{}}
}

func (s *MemoryStore) FindByID(_ context.Context, id, entityType string) (*model.MetaData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[entityType][id]
	if !ok {
		return nil, nil
	}
	return record.Copy(), nil
}

func (s *MemoryStore) Save(_ context.Context, record *model.MetaData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[record.Type]
	if !ok {
		byID = map[string]*model.MetaData{}
		s.records[record.Type] = byID
	}
	if _, exists := byID[record.ID]; exists {
		return fmt.Errorf("record %s/%s already exists", record.Type, record.ID)
	}
	byID[record.ID] = record.Copy()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, record *model.MetaData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.Type][record.ID]
	if !ok {
		return &model.NotFoundError{ID: record.ID, Type: record.Type}
	}
	if stored.Version != record.Version {
		return &model.ConflictError{ID: record.ID, Type: record.Type, Version: record.Version}
	}
	updated := record.Copy()
	updated.Version++
	s.records[record.Type][record.ID] = updated
	record.Version = updated.Version
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, record *model.MetaData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Type][record.ID]; !ok {
		return &model.NotFoundError{ID: record.ID, Type: record.Type}
	}
	delete(s.records[record.Type], record.ID)
	return nil
}

func (s *MemoryStore) NextCounterValue(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter, nil
}

func (s *MemoryStore) FindByFilter(_ context.Context, entityType string, filter map[string]interface{}, matchAll bool, requestedAttributes []string) ([]*model.MetaData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*model.MetaData
	for _, record := range s.records[entityType] {
		if matchesFilter(record.Data, filter, matchAll) {
			results = append(results, project(record, requestedAttributes))
		}
	}
	sortByID(results)
	return results, nil
}

func (s *MemoryStore) FindByRawQuery(ctx context.Context, entityType, rawQuery string) ([]*model.MetaData, error) {
	var filter map[string]interface{}
	if err := json.Unmarshal([]byte(rawQuery), &filter); err != nil {
		return nil, fmt.Errorf("invalid raw query: %w", err)
	}
	return s.FindByFilter(ctx, entityType, filter, true, nil)
}

func (s *MemoryStore) ListRevisions(_ context.Context, revisionType, parentID string) ([]*model.MetaData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var revisions []*model.MetaData
	for _, record := range s.records[revisionType] {
		if record.Revision != nil && record.Revision.ParentID == parentID {
			revisions = append(revisions, record.Copy())
		}
	}
	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Revision.Number < revisions[j].Revision.Number
	})
	return revisions, nil
}

func matchesFilter(data map[string]interface{}, filter map[string]interface{}, matchAll bool) bool {
	if len(filter) == 0 {
		return true
	}
	for path, expected := range filter {
		matched := matchPath(data, strings.Split(path, "."), expected)
		if matchAll && !matched {
			return false
		}
		if !matchAll && matched {
			return true
		}
	}
	return matchAll
}

// matchPath walks a dotted path; a list node matches when any element does.
func matchPath(node interface{}, parts []string, expected interface{}) bool {
	if len(parts) == 0 {
		return equalValue(node, expected)
	}
	switch t := node.(type) {
	case map[string]interface{}:
		child, ok := t[parts[0]]
		if !ok {
			return false
		}
		return matchPath(child, parts[1:], expected)
	case []interface{}:
		for _, element := range t {
			if matchPath(element, parts, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func equalValue(actual, expected interface{}) bool {
	if actual == expected {
		return true
	}
	// JSON round-trips turn ints into float64; compare numerics loosely.
	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)
	return aok && eok && af == ef
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func project(record *model.MetaData, requestedAttributes []string) *model.MetaData {
	clone := record.Copy()
	if len(requestedAttributes) == 0 {
		return clone
	}
	keep := map[string]bool{"entityid": true}
	for _, attr := range requestedAttributes {
		keep[attr] = true
	}
	for key := range clone.Data {
		if !keep[key] {
			delete(clone.Data, key)
		}
	}
	return clone
}

func sortByID(records []*model.MetaData) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
