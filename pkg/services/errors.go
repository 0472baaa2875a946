// Package services provides the application service layer sitting between the
// HTTP API and the engine, session, and persistence packages.
package services

import (
	"errors"
	"fmt"

	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/session"
)

// Business logic errors - these indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrEmptyThreadID    = errors.New("thread ID cannot be empty")
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrUnknownStageType = errors.New("unknown stage type")

	// Not-found errors (404 Not Found).
	ErrThreadNotFound = persistence.ErrConversationNotFound
	ErrStageNotFound  = persistence.ErrStageNotFound

	// Business logic conflicts (409 Conflict).
	ErrStageAlreadyExists = persistence.ErrStageAlreadyExists
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyThreadID) ||
		errors.Is(err, ErrEmptyUserID) ||
		errors.Is(err, ErrUnknownStageType) ||
		errors.Is(err, models.ErrCyclicDependency) ||
		errors.Is(err, models.ErrUnknownDependency) ||
		errors.Is(err, session.ErrInvalidArgument)
}

// IsNotFoundError checks if an error indicates a missing resource (HTTP 404).
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrThreadNotFound) ||
		errors.Is(err, ErrStageNotFound) ||
		errors.Is(err, engine.ErrUnknownStage)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStageAlreadyExists) ||
		errors.Is(err, engine.ErrRequiredStageInactive)
}
