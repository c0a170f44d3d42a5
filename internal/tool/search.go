// Package tool implements the Search tool the agent offers to the model.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/lumi/internal/llm"
	"github.com/hyperjump/lumi/internal/models"
)

// SearchName is the tool name exposed to the model.
const SearchName = "Search"

const searchDescription = "Search the official document collection (staff, tuition, schedules, news, regulations, locations). " +
	"Call this before concluding that information is unavailable. Use short keyword queries."

// Retriever is the hybrid retrieval capability the tool runs.
type Retriever interface {
	Query(ctx context.Context, text string) (*models.FusedResult, error)
}

// Passage is one element of the tool output.
type Passage struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Search wraps a Retriever as a model tool.
type Search struct {
	retriever Retriever
	limit     int
}

// NewSearch creates the tool. limit caps the passages serialized for the model; 0 keeps
// everything the retriever returned.
func NewSearch(r Retriever, limit int) *Search {
	return &Search{retriever: r, limit: limit}
}

// Definition returns the schema sent to the model.
func (s *Search) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        SearchName,
		Description: searchDescription,
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query to search for.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// ParseQuery extracts the query argument from the raw JSON arguments.
func ParseQuery(arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: malformed tool arguments: %v", models.ErrInvalidInput, err)
	}
	q := strings.TrimSpace(args.Query)
	if q == "" {
		return "", fmt.Errorf("%w: tool query cannot be empty", models.ErrInvalidInput)
	}
	return q, nil
}

// Run queries the retriever once and returns the result with its serialized output.
// Retriever errors are returned unchanged.
func (s *Search) Run(ctx context.Context, query string) (*models.FusedResult, string, error) {
	res, err := s.retriever.Query(ctx, query)
	if err != nil {
		return nil, "", err
	}
	out, err := Serialize(res, s.limit)
	if err != nil {
		return nil, "", err
	}
	return res, out, nil
}

// Serialize renders res as a JSON array of passages in rank order. An empty result is "[]".
func Serialize(res *models.FusedResult, limit int) (string, error) {
	passages := make([]Passage, 0, res.Len())
	if res != nil {
		for _, d := range res.Documents {
			if limit > 0 && len(passages) >= limit {
				break
			}
			meta := make(map[string]string, len(d.Document.Metadata)+1)
			for k, v := range d.Document.Metadata {
				meta[k] = v
			}
			if d.Document.Title != "" {
				if _, ok := meta["title"]; !ok {
					meta["title"] = d.Document.Title
				}
			}
			passages = append(passages, Passage{Text: d.Document.Content, Metadata: meta})
		}
	}
	data, err := json.Marshal(passages)
	if err != nil {
		return "", fmt.Errorf("failed to serialize search result: %w", err)
	}
	return string(data), nil
}
