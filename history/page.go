package history

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultSortBy   = "eventTimestamp"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// sortColumns whitelists sortable fields and maps them to store columns.
var sortColumns = map[string]string{
	"eventTimestamp": "event_timestamp",
	"timestamp":      "recorded_at",
	"createdAt":      "created_at",
	"serviceName":    "service_name",
	"entityName":     "entity_name",
	"entityId":       "entity_id",
	"actionType":     "action_type",
	"userId":         "user_id",
}

// PageRequest selects a zero-based page of results.
type PageRequest struct {
	Page    int
	Size    int
	SortBy  string
	SortDir SortDirection
}

// Normalize fills defaults and rejects out-of-range values with ErrInvalidPageRequest.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page < 0 {
		return p, fmt.Errorf("%w: page must be >= 0", ErrInvalidPageRequest)
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return p, fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidPageRequest, MaxPageSize)
	}
	if p.SortBy == "" {
		p.SortBy = DefaultSortBy
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		return p, fmt.Errorf("%w: cannot sort by %q", ErrInvalidPageRequest, p.SortBy)
	}
	switch SortDirection(strings.ToLower(string(p.SortDir))) {
	case "", SortDesc:
		p.SortDir = SortDesc
	case SortAsc:
		p.SortDir = SortAsc
	default:
		return p, fmt.Errorf("%w: sort direction must be asc or desc", ErrInvalidPageRequest)
	}
	return p, nil
}

func (p PageRequest) offset() int { return p.Page * p.Size }

// Page is one slice of a sorted result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         req.Page == 0,
		Last:          req.Page >= totalPages-1,
	}
}

// Criteria filters a search. Zero-valued fields impose no filter; all set
// fields must match. StartDate and EndDate bound the event timestamp inclusively.
type Criteria struct {
	ServiceName string
	EntityName  string
	EntityID    string
	ActionType  ActionType
	UserID      string
	StartDate   *time.Time
	EndDate     *time.Time
}

func (c Criteria) normalize() Criteria {
	c.ServiceName = strings.TrimSpace(c.ServiceName)
	c.EntityName = strings.TrimSpace(c.EntityName)
	c.EntityID = strings.TrimSpace(c.EntityID)
	c.UserID = strings.TrimSpace(c.UserID)
	c.ActionType = ActionType(strings.ToUpper(strings.TrimSpace(string(c.ActionType))))
	return c
}

// Validate rejects unknown action types and inverted date ranges.
func (c Criteria) Validate() error {
	if c.ActionType != "" && !c.ActionType.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidCriteria, c.ActionType)
	}
	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		return fmt.Errorf("%w: startDate is after endDate", ErrInvalidCriteria)
	}
	return nil
}

func (c Criteria) matches(r Record) bool {
	if c.ServiceName != "" && r.ServiceName != c.ServiceName {
		return false
	}
	if c.EntityName != "" && r.EntityName != c.EntityName {
		return false
	}
	if c.EntityID != "" && r.EntityID != c.EntityID {
		return false
	}
	if c.ActionType != "" && r.ActionType != c.ActionType {
		return false
	}
	if c.UserID != "" && r.UserID != c.UserID {
		return false
	}
	if c.StartDate != nil && r.EventTimestamp.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && r.EventTimestamp.After(*c.EndDate) {
		return false
	}
	return true
}
