// Package history persists conversation turns per session. Every backend serializes
// appends within a session, numbers turns contiguously from 1, and wraps backend
// failures in models.ErrStoreUnavailable. A cancelled caller gets its context error.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/lumi/internal/models"
)

// Store is the session history store.
type Store interface {
	// Append assigns the next sequence number to turn, writes it atomically and returns the
	// stored copy. Appends to one session are serialized; other sessions are not blocked.
	Append(ctx context.Context, sessionID string, turn *models.Turn) (*models.Turn, error)
	// Read returns every turn of the session in sequence order. An unknown session yields
	// an empty slice and no error.
	Read(ctx context.Context, sessionID string) ([]*models.Turn, error)
	// Reset deletes all turns of the session. Resetting an unknown session is not an error.
	Reset(ctx context.Context, sessionID string) error
	Close() error
}

// unavailable wraps a backend failure as ErrStoreUnavailable. When the caller's context is
// done its error is returned unwrapped, since the store itself did not fail.
func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}

func validateSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id cannot be empty", models.ErrInvalidInput)
	}
	return nil
}

// prepare validates turn and returns a copy bound to sessionID with CreatedAt set.
func prepare(sessionID string, turn *models.Turn) (*models.Turn, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, fmt.Errorf("%w: turn cannot be nil", models.ErrInvalidInput)
	}
	if !turn.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, turn.Role)
	}
	if turn.Role == models.RoleTool && turn.ToolCall == nil {
		return nil, fmt.Errorf("%w: tool turn without tool call", models.ErrInvalidInput)
	}
	out := *turn
	out.SessionID = sessionID
	out.Seq = 0
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if turn.ToolCall != nil {
		tc := *turn.ToolCall
		out.ToolCall = &tc
	}
	return &out, nil
}
