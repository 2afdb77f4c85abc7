package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownAgent    = errors.New("unknown agent")
)

// ValidationError reports an agent reply or a directive that failed its schema.
type ValidationError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: invalid output: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Component, e.Field, e.Reason)
}

func NewValidationError(component, field, reason string) *ValidationError {
	return &ValidationError{Component: component, Field: field, Reason: reason}
}

// ConfigurationError is a routing or wiring mistake, such as an unknown next_step.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// CatalogIntegrityError reports a vector index entry with no relational row,
// or the reverse.
type CatalogIntegrityError struct {
	ConceptID string
	Reason    string
}

func (e *CatalogIntegrityError) Error() string {
	return fmt.Sprintf("catalog integrity: concept %s: %s", e.ConceptID, e.Reason)
}

// SuspensionError means a resume arrived for a checkpoint that does not exist.
type SuspensionError struct {
	SessionID string
}

func (e *SuspensionError) Error() string {
	return fmt.Sprintf("no suspended review for session %s", e.SessionID)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
