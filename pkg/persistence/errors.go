// Standardized error types shared by all persistence implementations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrDefinitionNotFound indicates no journey definition exists for the id.
	ErrDefinitionNotFound = errors.New("journey definition not found")

	// ErrInstanceNotFound indicates no instance exists for the lookup.
	ErrInstanceNotFound = errors.New("journey instance not found")

	// ErrInstanceExists indicates a live instance already occupies the
	// (journey, subject) slot.
	ErrInstanceExists = errors.New("live journey instance already exists")

	// ErrVersionConflict indicates an optimistic-concurrency write lost the
	// race; the caller must abandon its pass, not retry blindly.
	ErrVersionConflict = errors.New("instance version conflict")
)

// InstanceError wraps instance-related errors with operation context.
type InstanceError struct {
	Op         string // operation being performed ("CreateLive", "Update", ...)
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates an instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsInstanceExists checks if an error indicates the enrollment guard fired.
func IsInstanceExists(err error) bool {
	return errors.Is(err, ErrInstanceExists)
}

// IsVersionConflict checks if an error indicates a lost optimistic write.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsDefinitionNotFound checks if an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}
