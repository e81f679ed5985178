package model

import (
	"fmt"
	"strings"
)

// NotFoundError indicates no record exists for an id+type pair.
type NotFoundError struct {
	ID   string
	Type string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("metadata type %s with id %s does not exist", e.Type, e.ID)
}

// DuplicateEntityIDError indicates the entityid is already taken within the
// record's type family.
type DuplicateEntityIDError struct {
	EntityID string
}

func (e *DuplicateEntityIDError) Error() string {
	return fmt.Sprintf("entityid %q is already registered", e.EntityID)
}

// ValidationError carries the human-readable schema violations of a rejected
// record.
type ValidationError struct {
	Type     string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation of %s failed: %s", e.Type, strings.Join(e.Messages, ", "))
}

// ConflictError indicates an optimistic-version mismatch on update.
type ConflictError struct {
	ID      string
	Type    string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict updating %s %s at version %d", e.Type, e.ID, e.Version)
}

// IllegalStateError indicates a restore invariant does not hold.
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string { return e.Reason }

// PolicyViolationError indicates a business-rule rejection, e.g. an
// unauthorized automatic connection request.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string { return e.Reason }
