package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	EventGroupCreated       EventType = "group.created"
	EventSessionScheduled   EventType = "group.session_scheduled"
	EventPassIssued         EventType = "session.pass_issued"
	EventAttendanceRecorded EventType = "session.attendance_recorded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// GroupCreatedEvent is emitted when a new group is created.
type GroupCreatedEvent struct {
	BaseEvent
	Code string `json:"code"`
	Name string `json:"name"`
}

// NewGroupCreatedEvent creates a GroupCreatedEvent.
func NewGroupCreatedEvent(groupID GroupID, code, name string, at time.Time) GroupCreatedEvent {
	return GroupCreatedEvent{
		BaseEvent: NewBaseEvent(EventGroupCreated, groupID.String(), at),
		Code:      code,
		Name:      name,
	}
}

// Payload implements Event interface.
func (e GroupCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id": e.AggregateId,
		"code":     e.Code,
		"name":     e.Name,
	}
}

// SessionScheduledEvent is emitted when a session is added to a group.
type SessionScheduledEvent struct {
	BaseEvent
	SessionID SessionID `json:"session_id"`
	Begins    time.Time `json:"begins"`
	Ends      time.Time `json:"ends"`
}

// NewSessionScheduledEvent creates a SessionScheduledEvent.
func NewSessionScheduledEvent(groupID GroupID, sessionID SessionID, begins, ends, at time.Time) SessionScheduledEvent {
	return SessionScheduledEvent{
		BaseEvent: NewBaseEvent(EventSessionScheduled, groupID.String(), at),
		SessionID: sessionID,
		Begins:    begins,
		Ends:      ends,
	}
}

// Payload implements Event interface.
func (e SessionScheduledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.AggregateId,
		"session_id": e.SessionID.String(),
		"begins":     e.Begins.Format(time.RFC3339),
		"ends":       e.Ends.Format(time.RFC3339),
	}
}

// PassIssuedEvent is emitted when a pass is issued for a session.
type PassIssuedEvent struct {
	BaseEvent
	GroupID     GroupID   `json:"group_id"`
	RequesterID UserID    `json:"requester_id"`
	RequesteeID UserID    `json:"requestee_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewPassIssuedEvent creates a PassIssuedEvent. The pass code is not part of
// the event.
func NewPassIssuedEvent(groupID GroupID, sessionID SessionID, requester, requestee UserID, expiresAt, at time.Time) PassIssuedEvent {
	return PassIssuedEvent{
		BaseEvent:   NewBaseEvent(EventPassIssued, sessionID.String(), at),
		GroupID:     groupID,
		RequesterID: requester,
		RequesteeID: requestee,
		ExpiresAt:   expiresAt,
	}
}

// Payload implements Event interface.
func (e PassIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":     e.GroupID.String(),
		"session_id":   e.AggregateId,
		"requester_id": e.RequesterID.String(),
		"requestee_id": e.RequesteeID.String(),
		"expires_at":   e.ExpiresAt.Format(time.RFC3339),
	}
}

// AttendanceRecordedEvent is emitted when an attendance fact is stored.
type AttendanceRecordedEvent struct {
	BaseEvent
	GroupID GroupID `json:"group_id"`
	UserID  UserID  `json:"user_id"`
}

// NewAttendanceRecordedEvent creates an AttendanceRecordedEvent.
func NewAttendanceRecordedEvent(groupID GroupID, sessionID SessionID, userID UserID, at time.Time) AttendanceRecordedEvent {
	return AttendanceRecordedEvent{
		BaseEvent: NewBaseEvent(EventAttendanceRecorded, sessionID.String(), at),
		GroupID:   groupID,
		UserID:    userID,
	}
}

// Payload implements Event interface.
func (e AttendanceRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID.String(),
		"session_id": e.AggregateId,
		"user_id":    e.UserID.String(),
	}
}

// EventHandler is a function that handles a domain event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
