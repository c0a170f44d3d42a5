package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/cli"
	"github.com/hyperjump/lumi/internal/config"
	"github.com/hyperjump/lumi/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"tuition fees", "-output", "json"},
			expected: []string{"-output", "json", "tuition fees"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "tuition fees"},
			expected: []string{"-output", "json", "tuition fees"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"tuition fees"},
			expected: []string{"tuition fees"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-limit", "5"},
			expected: []string{"-limit", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"scholarships"}, "scholarships"},
		{"multiple words", []string{"library", "hours"}, "library hours"},
		{"single quoted phrase", []string{"library hours"}, "library hours"},
		{"three words", []string{"how", "to", "apply"}, "how to apply"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
		{"one space", []string{" "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestChatLoop(t *testing.T) {
	in := strings.NewReader("first question\n  second question  \n\nnever sent\n")
	var out bytes.Buffer
	var sent []string
	chatLoop(context.Background(), in, &out, cli.OutputText, func(msg string) error {
		sent = append(sent, msg)
		if msg == "first question" {
			return errors.New("transient")
		}
		return nil
	})
	want := []string{"first question", "second question"}
	if !reflect.DeepEqual(sent, want) {
		t.Errorf("sent = %v, want %v", sent, want)
	}
	if strings.Count(out.String(), "> ") != 3 {
		t.Errorf("prompts: got %q", out.String())
	}
}

func TestChatLoop_jsonHasNoPrompt(t *testing.T) {
	var out bytes.Buffer
	chatLoop(context.Background(), strings.NewReader("hi\n"), &out, cli.OutputJSON, func(string) error { return nil })
	if out.Len() != 0 {
		t.Errorf("unexpected prompt output: %q", out.String())
	}
}

func TestAPIClient_chat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Message == "break" {
			w.WriteHeader(http.StatusBadGateway)
			msg := "agent failure: upstream"
			_ = json.NewEncoder(w).Encode(models.ChatResponse{SessionID: req.SessionID, Error: &msg})
			return
		}
		answer := "echo: " + req.Message
		_ = json.NewEncoder(w).Encode(models.ChatResponse{SessionID: req.SessionID, Message: req.Message, Response: &answer})
	}))
	defer ts.Close()

	c := newAPIClient(ts.URL + "/")
	out, err := c.chat(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "s1" || out.Answer != "echo: hello" {
		t.Errorf("chat output: %+v", out)
	}
	_, err = c.chat(context.Background(), "s1", "break")
	if err == nil || !strings.Contains(err.Error(), "502: agent failure: upstream") {
		t.Errorf("error: got %v", err)
	}
}

func TestAPIClient_turns(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v1/sessions/a%2Fb/turns" {
			t.Errorf("path: got %s", r.URL.EscapedPath())
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"session_id": "a/b",
			"turns":      []*models.Turn{{Seq: 1, Role: models.RoleUser, Content: "hi"}},
		})
	}))
	defer ts.Close()

	turns, err := newAPIClient(ts.URL).turns(context.Background(), "a/b")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Content != "hi" {
		t.Errorf("turns: %+v", turns)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	if got := apiErrorMessage([]byte(`{"error":"bad"}`)); got != "bad" {
		t.Errorf("json body: got %q", got)
	}
	if got := apiErrorMessage([]byte("plain text\n")); got != "plain text" {
		t.Errorf("plain body: got %q", got)
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := newEmbedder(config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Dimensions() != 8 {
		t.Errorf("dimensions: got %d", e.Dimensions())
	}
	if _, err := newEmbedder(config.EmbeddingConfig{Provider: "onnx"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOpenHistory(t *testing.T) {
	dir := t.TempDir()
	store, err := openHistory(context.Background(), config.HistoryConfig{Backend: "sqlite", DSN: filepath.Join(dir, "h.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Append(context.Background(), "s1", &models.Turn{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := openHistory(context.Background(), config.HistoryConfig{Backend: "redis"}); err == nil {
		t.Error("expected error for redis without address")
	}
}

func TestInitializeComponents_mockEmbedder(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "documents.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "indices", "bleve")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "indices", "vectors.bin")
	cfg.Embedding.Provider = "mock"
	cfg.History.Backend = "memory"
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = 8
	cfg.Indexing.ChunkSize = 20
	cfg.Indexing.ChunkOverlap = 5

	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop(), true)
	if err != nil {
		t.Fatal(err)
	}
	if c.Executor == nil || c.History == nil {
		t.Fatal("agent components not created")
	}
	if _, err := c.Indexer.IndexDocument(ctx, &models.DocumentInput{ID: "fees", Content: "Tuition fees are due in August."}); err != nil {
		t.Fatal(err)
	}
	res, err := c.Retriever.Query(ctx, "tuition fees")
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 1 {
		t.Errorf("retrieved %d documents, want 1", res.Len())
	}
	c.Close()

	// The in-memory vector index is snapshotted on Close and reloaded.
	if _, err := os.Stat(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatalf("vector snapshot: %v", err)
	}
	c2, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if size, _ := c2.VectorIndex.Size(ctx); size != 1 {
		t.Errorf("reloaded vector size = %d, want 1", size)
	}
}

func TestWriteStatusText(t *testing.T) {
	total := int64(2048)
	var buf bytes.Buffer
	writeStatusText(&buf, &statusResponse{
		Documents: 3, VectorIndexSize: 3, DiskUsageBytes: &total,
		Config: map[string]interface{}{"fallback_mode": "fail_open", "llm_model": ""},
	})
	out := buf.String()
	for _, want := range []string{"documents:          3", "disk_usage_bytes:   2048", "fallback_mode:      fail_open"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "llm_model") {
		t.Errorf("empty values should be omitted:\n%s", out)
	}
}
