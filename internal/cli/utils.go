// Package cli provides output helpers for the lumi command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a fused retrieval result to w in the given format.
func WriteSearchResults(w io.Writer, res *models.FusedResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	writeSearchResultsText(w, res)
	return nil
}

func writeSearchResultsText(w io.Writer, res *models.FusedResult) {
	fmt.Fprintf(w, "\nFound %d results in %dms (sources: %s)\n",
		res.Len(), res.QueryTime, strings.Join(res.Sources, ", "))
	if res.Degraded {
		fmt.Fprintln(w, "warning: degraded, one retrieval source was unavailable")
	}
	if res.SuggestedQuery != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", res.SuggestedQuery)
	}
	fmt.Fprintln(w)
	for i, d := range res.Documents {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d | Score: %.4f (Lexical: %.4f rank %d, Vector: %.4f rank %d)\n",
			i+1, d.Score, d.LexicalScore, d.LexicalRank, d.VectorScore, d.VectorRank)
		fmt.Fprintf(w, "ID: %s\n", d.Document.ID)
		if d.Document.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", d.Document.Title)
		}
		if url := d.Document.Metadata[models.MetaURL]; url != "" {
			fmt.Fprintf(w, "URL: %s\n", url)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(d.Document.Content, 200))
	}
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(res *models.FusedResult) {
	_ = WriteSearchResults(os.Stdout, res, OutputText)
}

// WriteTurns writes a session transcript to w in the given format.
func WriteTurns(w io.Writer, sessionID string, turns []*models.Turn, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"session_id": sessionID, "turns": turns})
	}
	if len(turns) == 0 {
		fmt.Fprintf(w, "Session %s has no turns\n", sessionID)
		return nil
	}
	fmt.Fprintf(w, "Session %s (%d turns)\n\n", sessionID, len(turns))
	for _, t := range turns {
		ts := t.CreatedAt.Format("2006-01-02 15:04:05")
		switch {
		case t.Role == models.RoleTool && t.ToolCall != nil:
			fmt.Fprintf(w, "[%d] %s tool %s(%q) -> %s\n", t.Seq, ts, t.ToolCall.Name, t.ToolCall.Input,
				Truncate(t.ToolCall.Output, 120))
		default:
			fmt.Fprintf(w, "[%d] %s %s: %s\n", t.Seq, ts, t.Role, t.Content)
		}
	}
	return nil
}

// ChatOutput is the result of one chat turn as printed by the CLI.
type ChatOutput struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	ToolUsed  bool   `json:"tool_used"`
	Fallback  bool   `json:"fallback"`
	Degraded  bool   `json:"degraded"`
	Retrieved int    `json:"retrieved"`
}

// WriteAnswer writes one assistant answer. In text mode, retrieval notes are printed
// only when verbose is set.
func WriteAnswer(w io.Writer, out *ChatOutput, format OutputFormat, verbose bool) error {
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "%s\n", out.Answer)
	if verbose {
		var notes []string
		if out.ToolUsed {
			notes = append(notes, fmt.Sprintf("searched, %d passages", out.Retrieved))
		}
		if out.Degraded {
			notes = append(notes, "degraded")
		}
		if out.Fallback {
			notes = append(notes, "retrieval unavailable")
		}
		if len(notes) > 0 {
			fmt.Fprintf(w, "(%s)\n", strings.Join(notes, "; "))
		}
	}
	return nil
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
