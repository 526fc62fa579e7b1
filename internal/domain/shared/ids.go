package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// GroupID uniquely identifies a study group.
type GroupID string

// NewGroupID generates a fresh GroupID.
func NewGroupID() GroupID { return GroupID(uuid.NewString()) }

// ParseGroupID validates and normalizes a group identifier.
func ParseGroupID(s string) (GroupID, error) {
	id, err := parseUUID("ParseGroupID", s)
	return GroupID(id), err
}

// String returns the string representation.
func (id GroupID) String() string { return string(id) }

// IsEmpty checks if the ID is empty.
func (id GroupID) IsEmpty() bool { return id == "" }

// SessionID uniquely identifies a session within the system.
type SessionID string

// NewSessionID generates a fresh SessionID.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// ParseSessionID validates and normalizes a session identifier.
func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID("ParseSessionID", s)
	return SessionID(id), err
}

// String returns the string representation.
func (id SessionID) String() string { return string(id) }

// IsEmpty checks if the ID is empty.
func (id SessionID) IsEmpty() bool { return id == "" }

// UserID identifies a user resolved by the identity provider.
type UserID string

// NewUserID generates a fresh UserID.
func NewUserID() UserID { return UserID(uuid.NewString()) }

// ParseUserID validates and normalizes a user identifier.
func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID("ParseUserID", s)
	return UserID(id), err
}

// String returns the string representation.
func (id UserID) String() string { return string(id) }

// IsEmpty checks if the ID is empty.
func (id UserID) IsEmpty() bool { return id == "" }

func parseUUID(op, s string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", WrapError("shared", op, ErrValidation, "invalid identifier format", err)
	}
	return u.String(), nil
}
