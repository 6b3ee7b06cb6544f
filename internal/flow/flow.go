package flow

import (
	"context"
	"errors"

	"personabot/internal/models"
)

// ErrInvariant marks a flow state that should be impossible. Callers treat it
// as a bug: log, force-reset the session, and answer with a generic error.
var ErrInvariant = errors.New("flow state invariant violated")

// ResultStore persists flow outcomes.
type ResultStore interface {
	SaveTestResult(ctx context.Context, userID int64, testType string, payload any) error
	SaveAnalysis(ctx context.Context, userID int64, kind models.MediaKind, ref string, payload any) error
}

// Completer produces one chat completion for a consultation message.
type Completer interface {
	Complete(ctx context.Context, system, message string) (string, error)
}
