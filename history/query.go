package history

import (
	"context"
	"fmt"
	"strings"
)

// QueryService is the read side over a Store.
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// FindAll pages through every record.
func (q *QueryService) FindAll(ctx context.Context, p PageRequest) (Page[Record], error) {
	p, err := p.Normalize()
	if err != nil {
		return Page[Record]{}, err
	}
	return q.store.FindAll(ctx, p)
}

// Search pages through records matching every set criterion.
func (q *QueryService) Search(ctx context.Context, c Criteria, p PageRequest) (Page[Record], error) {
	p, err := p.Normalize()
	if err != nil {
		return Page[Record]{}, err
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return Page[Record]{}, err
	}
	return q.store.Search(ctx, c, p)
}

// FindByID wraps ErrNotFound so callers can errors.Is on it.
func (q *QueryService) FindByID(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rec, err := q.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("audit log %s: %w", id, err)
	}
	return rec, nil
}
