package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/lumi/internal/models"
)

func sampleResult() *models.FusedResult {
	return &models.FusedResult{
		Query:     "tuition fees",
		QueryTime: 42,
		Sources:   []string{models.SourceLexical, models.SourceVector},
		Documents: []*models.FusedDocument{
			{
				Score: 0.9, LexicalScore: 1, VectorScore: 0.8, LexicalRank: 1, VectorRank: 2,
				Document: &models.Document{
					ID:       "fees#0",
					Title:    "Tuition fees",
					Content:  "Tuition is due in August.",
					Metadata: map[string]string{models.MetaURL: "https://example.edu/fees"},
				},
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	res := sampleResult()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, res, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.FusedResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != res.Query || decoded.QueryTime != res.QueryTime {
		t.Errorf("decoded query=%q query_time=%d", decoded.Query, decoded.QueryTime)
	}
	if len(decoded.Documents) != 1 || decoded.Documents[0].Document.ID != "fees#0" {
		t.Errorf("decoded documents: %+v", decoded.Documents)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResult(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results in 42ms", "lexical, vector", "ID: fees#0",
		"Title: Tuition fees", "URL: https://example.edu/fees", "Tuition is due in August."} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "degraded") {
		t.Errorf("unexpected degraded warning:\n%s", out)
	}
}

func TestWriteSearchResults_textDegraded(t *testing.T) {
	res := sampleResult()
	res.Degraded = true
	res.Sources = []string{models.SourceVector}
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, res, OutputText)
	if !strings.Contains(buf.String(), "degraded") {
		t.Errorf("expected degraded warning, got %q", buf.String())
	}
}

func TestWriteSearchResults_textSuggestedQuery(t *testing.T) {
	res := sampleResult()
	res.SuggestedQuery = "tuition fees"
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, res, OutputText)
	if !strings.Contains(buf.String(), "Did you mean: tuition fees") {
		t.Errorf("expected suggestion line, got %q", buf.String())
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.FusedResult{}, OutputFormat("xml")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteTurns(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	turns := []*models.Turn{
		{Seq: 1, Role: models.RoleUser, Content: "when are fees due?", CreatedAt: ts},
		{Seq: 2, Role: models.RoleTool, CreatedAt: ts,
			ToolCall: &models.ToolCall{Name: "Search", Input: "fees", Output: "[]"}},
		{Seq: 3, Role: models.RoleAssistant, Content: "In August.", CreatedAt: ts},
	}
	var buf bytes.Buffer
	if err := WriteTurns(&buf, "s1", turns, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Session s1 (3 turns)", "[1] 2024-03-01 09:30:00 user: when are fees due?",
		`[2] 2024-03-01 09:30:00 tool Search("fees") -> []`, "[3] 2024-03-01 09:30:00 assistant: In August."} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteTurns(&buf, "empty", nil, OutputText)
	if !strings.Contains(buf.String(), "no turns") {
		t.Errorf("empty session output: %q", buf.String())
	}

	buf.Reset()
	if err := WriteTurns(&buf, "s1", turns, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		SessionID string         `json:"session_id"`
		Turns     []*models.Turn `json:"turns"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SessionID != "s1" || len(decoded.Turns) != 3 {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteAnswer(t *testing.T) {
	out := &ChatOutput{SessionID: "s1", Answer: "In August.", ToolUsed: true, Retrieved: 3, Degraded: true}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, out, OutputText, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "In August.\n" {
		t.Errorf("quiet output: %q", buf.String())
	}
	buf.Reset()
	_ = WriteAnswer(&buf, out, OutputText, true)
	if !strings.Contains(buf.String(), "(searched, 3 passages; degraded)") {
		t.Errorf("verbose output: %q", buf.String())
	}
	buf.Reset()
	_ = WriteAnswer(&buf, out, OutputJSON, false)
	if !strings.Contains(buf.String(), `"tool_used": true`) {
		t.Errorf("json output: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"maxLen zero", "ab", 0, "ab"},
		{"maxLen negative", "ab", -1, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
		{"single long", "word", 1, "word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWords(tt.s, tt.maxWords)
			if got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestTruncate_multibyte(t *testing.T) {
	if got := Truncate("ค่าเทอม", 3); got != "ค่า..." {
		t.Errorf("Truncate multibyte = %q", got)
	}
}

func TestPrintSearchResults(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintSearchResults(&models.FusedResult{Query: "print test", QueryTime: 1})
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("PrintSearchResults should write to stdout; got %q", buf.String())
	}
}
