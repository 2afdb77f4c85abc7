package service

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// ErrTurnAborted wraps any failure that stopped a turn before its state was
// committed.
var ErrTurnAborted = errors.New("turn aborted")

// RecoveryMessage is what the user sees when a turn is aborted.
const RecoveryMessage = "I had trouble processing that, could you rephrase?"

// errorType names the error kind carried on agent_error events.
func errorType(err error) string {
	var (
		validation    *domain.ValidationError
		invocation    *llm.InvocationError
		configuration *domain.ConfigurationError
		integrity     *domain.CatalogIntegrityError
		suspension    *domain.SuspensionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &invocation):
		return "llm_invocation_error"
	case errors.As(err, &configuration):
		return "configuration_error"
	case errors.As(err, &integrity):
		return "catalog_integrity_error"
	case errors.As(err, &suspension):
		return "suspension_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
