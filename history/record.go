package history

import (
	"time"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/messaging"
)

// ActionType is the persisted, query-facing form of an audit.EventType.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ActionFor maps CREATED/UPDATED/DELETED to CREATE/UPDATE/DELETE.
func ActionFor(t audit.EventType) ActionType {
	switch t {
	case audit.EventCreated:
		return ActionCreate
	case audit.EventUpdated:
		return ActionUpdate
	case audit.EventDeleted:
		return ActionDelete
	}
	return ActionType(t)
}

// Record is a persisted audit log entry. It is written once and never updated.
type Record struct {
	ID          string          `json:"id"`
	EventID     string          `json:"eventId"`
	EventType   audit.EventType `json:"eventType"`
	ActionType  ActionType      `json:"actionType"`
	ServiceName string          `json:"serviceName"`
	EntityName  string          `json:"entityName"`
	EntityID    string          `json:"entityId"`
	UserID      string          `json:"userId,omitempty"`
	UserInfo    string          `json:"userInfo,omitempty"`
	OldValue    string          `json:"oldValue,omitempty"`
	NewValue    string          `json:"newValue,omitempty"`
	Changes     string          `json:"changes,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`

	// EventTimestamp is the producer's clock; Timestamp is when the consumer
	// processed the message; CreatedAt is when the store accepted the row.
	EventTimestamp time.Time `json:"eventTimestamp"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`

	SourceTopic     string `json:"sourceTopic,omitempty"`
	SourcePartition int32  `json:"sourcePartition"`
	SourceOffset    int64  `json:"sourceOffset"`
}

// NewRecord maps a validated event and its bus coordinates to a Record.
// ID and CreatedAt are left for the store to assign.
func NewRecord(e audit.Event, msg messaging.Message, processedAt time.Time) Record {
	return Record{
		EventID:         e.EventID,
		EventType:       e.EventType,
		ActionType:      ActionFor(e.EventType),
		ServiceName:     e.ServiceName,
		EntityName:      e.EntityType,
		EntityID:        e.EntityID,
		UserID:          e.UserID,
		UserInfo:        e.UserInfo,
		OldValue:        e.OldValue,
		NewValue:        e.NewValue,
		Changes:         e.Changes,
		RequestID:       e.RequestID,
		EventTimestamp:  e.Timestamp,
		Timestamp:       processedAt,
		SourceTopic:     msg.Topic,
		SourcePartition: msg.Partition,
		SourceOffset:    msg.Offset,
	}
}

// Event reconstructs the wire event the record was built from.
func (r Record) Event() audit.Event {
	return audit.Event{
		EventID:     r.EventID,
		EventType:   r.EventType,
		ServiceName: r.ServiceName,
		EntityType:  r.EntityName,
		EntityID:    r.EntityID,
		UserID:      r.UserID,
		UserInfo:    r.UserInfo,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Changes:     r.Changes,
		Timestamp:   r.EventTimestamp,
		RequestID:   r.RequestID,
	}
}
