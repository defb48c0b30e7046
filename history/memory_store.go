package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
	byEvent map[string]int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]int),
		byEvent: make(map[string]int),
		now:     time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byEvent[rec.EventID]; ok {
		return s.records[idx].ID, ErrDuplicateEvent
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.now().UTC()

	s.records = append(s.records, rec)
	s.byID[rec.ID] = len(s.records) - 1
	s.byEvent[rec.EventID] = len(s.records) - 1
	return rec.ID, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.records[idx]
	return &rec, nil
}

func (s *MemoryStore) FindAll(ctx context.Context, p PageRequest) (Page[Record], error) {
	return s.Search(ctx, Criteria{}, p)
}

func (s *MemoryStore) Search(_ context.Context, c Criteria, p PageRequest) (Page[Record], error) {
	p, err := p.Normalize()
	if err != nil {
		return Page[Record]{}, err
	}

	// seq is the insertion index, used as the tie-breaker.
	type entry struct {
		seq int
		rec Record
	}

	s.mu.RLock()
	matched := make([]entry, 0)
	for i, rec := range s.records {
		if c.matches(rec) {
			matched = append(matched, entry{seq: i, rec: rec})
		}
	}
	s.mu.RUnlock()

	desc := p.SortDir == SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		cmp := compareField(matched[i].rec, matched[j].rec, p.SortBy)
		if cmp == 0 {
			cmp = matched[i].seq - matched[j].seq
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})

	total := int64(len(matched))
	start := p.offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}

	content := make([]Record, 0, end-start)
	for _, e := range matched[start:end] {
		content = append(content, e.rec)
	}
	return NewPage(content, p, total), nil
}

func compareField(a, b Record, field string) int {
	switch field {
	case "timestamp":
		return a.Timestamp.Compare(b.Timestamp)
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "serviceName":
		return strings.Compare(a.ServiceName, b.ServiceName)
	case "entityName":
		return strings.Compare(a.EntityName, b.EntityName)
	case "entityId":
		return strings.Compare(a.EntityID, b.EntityID)
	case "actionType":
		return strings.Compare(string(a.ActionType), string(b.ActionType))
	case "userId":
		return strings.Compare(a.UserID, b.UserID)
	default:
		return a.EventTimestamp.Compare(b.EventTimestamp)
	}
}
