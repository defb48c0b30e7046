package history

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("history: audit log not found")
	ErrDuplicateEvent     = errors.New("history: event already recorded")
	ErrInvalidPageRequest = errors.New("history: invalid page request")
	ErrInvalidCriteria    = errors.New("history: invalid search criteria")
)

// Store persists audit log records. It is append-only: there is no update path.
type Store interface {
	// Insert appends rec and returns its id. If rec.EventID was already
	// recorded it returns the existing id together with ErrDuplicateEvent.
	Insert(ctx context.Context, rec Record) (string, error)
	// FindByID returns ErrNotFound when no record has the id.
	FindByID(ctx context.Context, id string) (*Record, error)
	Search(ctx context.Context, c Criteria, p PageRequest) (Page[Record], error)
	FindAll(ctx context.Context, p PageRequest) (Page[Record], error)
}
