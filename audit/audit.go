package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventType is the kind of change an Event describes.
type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// TopicSuffix is appended to a service name to form its audit topic.
const TopicSuffix = "-audit-logs"

// TopicFor returns the audit topic owned by serviceName.
func TopicFor(serviceName string) string {
	return serviceName + TopicSuffix
}

// Event is the wire record for one entity change.
// Value fields are opaque serialized snapshots; an empty string means absent.
type Event struct {
	EventID     string    `json:"eventId" validate:"required"`
	EventType   EventType `json:"eventType" validate:"required,oneof=CREATED UPDATED DELETED"`
	ServiceName string    `json:"serviceName" validate:"required"`
	EntityType  string    `json:"entityType" validate:"required"`
	EntityID    string    `json:"entityId" validate:"required"`
	UserID      string    `json:"userId,omitempty"`
	UserInfo    string    `json:"userInfo,omitempty"`
	OldValue    string    `json:"oldValue,omitempty" validate:"required_unless=EventType CREATED"`
	NewValue    string    `json:"newValue,omitempty" validate:"required_unless=EventType DELETED"`
	Changes     string    `json:"changes,omitempty"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	RequestID   string    `json:"requestId,omitempty"`
}

// localDateTime is the zone-less ISO-8601 form emitted by many JVM producers.
const localDateTime = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON accepts RFC 3339 timestamps and zone-less local date-times (read as UTC).
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = ts
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("audit: timestamp must be a string: %w", err)
	}
	if s == "" {
		return time.Time{}, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(localDateTime, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("audit: unrecognised timestamp %q", s)
	}
	return ts, nil
}

// Marshal encodes the event in its wire form.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal failed: %w", err)
	}
	return payload, nil
}

// Unmarshal decodes a wire payload. It does not validate.
func Unmarshal(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("audit: unmarshal failed: %w", err)
	}
	return e, nil
}

// ValidationError lists every field that broke the event contract.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "audit: invalid event: " + strings.Join(parts, ", ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func eventValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report wire names instead of Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks required fields and the value presence rules per event type:
// CREATED needs newValue, DELETED needs oldValue, UPDATED needs both.
func (e Event) Validate() error {
	err := eventValidator().Struct(e)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("audit: validation failed: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
