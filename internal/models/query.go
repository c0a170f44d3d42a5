package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a direct retrieval request (operator debugging; the agent uses the Search tool).
type SearchQuery struct {
	Query string `json:"query"`
}

// Validate trims the query and rejects empty input.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	return nil
}

// ChatRequest is one user message submitted to a session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Validate trims both fields and rejects empty ones.
func (r *ChatRequest) Validate() error {
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Message = strings.TrimSpace(r.Message)
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id cannot be empty", ErrInvalidInput)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}
	return nil
}

// ChatResponse echoes the request with either a response or an error, never both.
type ChatResponse struct {
	SessionID string  `json:"session_id"`
	Message   string  `json:"message"`
	Response  *string `json:"response"`
	Error     *string `json:"error"`
}
