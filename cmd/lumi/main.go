// Package main is the Lumi CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/cli"
	"github.com/hyperjump/lumi/internal/config"
	"github.com/hyperjump/lumi/internal/history"
	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/server"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/lumi/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "chat":
		runChat()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "history":
		runHistory()
	case "reset":
		runReset()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("lumi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// local holds what a command running without the server needs.
type local struct {
	cfg        *config.Config
	logger     *zap.Logger
	components *Components
}

func (l *local) Close() {
	l.components.Close()
	_ = l.logger.Sync()
}

// openLocal loads config and initializes components in-process. Exits on failure.
func openLocal(configPath string, debug, withAgent bool) *local {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	components, err := initializeComponents(context.Background(), cfg, logger, withAgent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return &local{cfg: cfg, logger: logger, components: components}
}

func parseFormat(s string) cli.OutputFormat {
	switch s {
	case "json":
		return cli.OutputJSON
	case "text":
		return cli.OutputText
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", s)
		os.Exit(1)
	}
	return cli.OutputText
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (state transitions, retrieval timings, etc.)")
	_ = fs.Parse(os.Args[2:])

	l := openLocal(*configPath, *debug, true)
	defer l.Close()
	logger := l.logger

	logger.Info("config loaded",
		zap.String("history_backend", l.cfg.History.Backend),
		zap.String("vector_backend", l.cfg.Storage.VectorBackend),
		zap.String("fallback_mode", l.cfg.Agent.FallbackMode),
	)

	srv := server.NewServer(
		l.components.Executor,
		l.components.Retriever,
		l.components.Storage,
		l.components.VectorIndex,
		l.cfg,
		logger,
	).WithSpellChecker(l.components.SpellChecker)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: lumi search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Runs hybrid retrieval directly, without the assistant. Useful to check what the Search tool would see.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  lumi search tuition fees
  lumi search "scholarship deadline" -output json
  lumi search -server "" library opening hours     # query the local indices
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local indices when the server is not running)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	q := &models.SearchQuery{Query: buildSearchQuery(fs.Args())}
	if err := q.Validate(); err != nil {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var res *models.FusedResult
	if *serverURL != "" {
		// Bleve holds an exclusive lock on its index, so go through the running server.
		c := newAPIClient(*serverURL)
		if err := c.do(context.Background(), "POST", "/api/v1/search", q, &res); err != nil {
			fail("Search failed: %v", err)
		}
	} else {
		l := openLocal(*configPath, false, false)
		defer l.Close()
		var err error
		res, err = l.components.Retriever.Query(context.Background(), q.Query)
		if err != nil {
			fail("Search failed: %v", err)
		}
		if sc := l.components.SpellChecker; sc != nil {
			if c, err := sc.Check(q.Query); err == nil && c.Changed() {
				res.SuggestedQuery = c.Corrected
			}
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, res, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the assistant in-process)")
	session := fs.String("session", "", "session id (default: a new random id)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	verbose := fs.Bool("verbose", false, "print retrieval notes after each answer")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	format := parseFormat(*outputFormat)
	sessionID := *session
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	var submit func(ctx context.Context, msg string) (*cli.ChatOutput, error)
	if *serverURL != "" {
		c := newAPIClient(*serverURL)
		submit = func(ctx context.Context, msg string) (*cli.ChatOutput, error) {
			return c.chat(ctx, sessionID, msg)
		}
	} else {
		l := openLocal(*configPath, false, true)
		defer l.Close()
		exec := l.components.Executor
		submit = func(ctx context.Context, msg string) (*cli.ChatOutput, error) {
			res, err := exec.SubmitTurn(ctx, sessionID, msg)
			if err != nil {
				return nil, err
			}
			return &cli.ChatOutput{
				SessionID: res.SessionID,
				Answer:    res.Answer,
				ToolUsed:  res.ToolUsed,
				Fallback:  res.Fallback,
				Degraded:  res.Degraded,
				Retrieved: res.Retrieved,
			}, nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One-shot: lumi chat how do I apply for a scholarship
	if msg := buildSearchQuery(fs.Args()); msg != "" {
		out, err := submit(ctx, msg)
		if err != nil {
			fail("Chat failed: %v", err)
		}
		if err := cli.WriteAnswer(os.Stdout, out, format, *verbose); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}

	if format == cli.OutputText {
		fmt.Printf("Session %s. Empty line or Ctrl-D to quit.\n", sessionID)
	}
	chatLoop(ctx, os.Stdin, os.Stdout, format, func(msg string) error {
		out, err := submit(ctx, msg)
		if err != nil {
			return err
		}
		return cli.WriteAnswer(os.Stdout, out, format, *verbose)
	})
}

// chatLoop reads one message per line until EOF, an empty line or ctx is done.
// Errors from send are reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, format cli.OutputFormat, send func(string) error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if format == cli.OutputText {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			return
		}
		if err := send(msg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the history store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Println("Usage: lumi history [flags] <session-id>")
		os.Exit(1)
	}
	sessionID := fs.Arg(0)
	format := parseFormat(*outputFormat)

	var turns []*models.Turn
	if *serverURL != "" {
		var err error
		turns, err = newAPIClient(*serverURL).turns(context.Background(), sessionID)
		if err != nil {
			fail("History failed: %v", err)
		}
	} else {
		store := openHistoryOnly(*configPath)
		defer store.Close()
		var err error
		turns, err = store.Read(context.Background(), sessionID)
		if err != nil {
			fail("History failed: %v", err)
		}
	}
	if err := cli.WriteTurns(os.Stdout, sessionID, turns, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = reset in the history store directly)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Println("Usage: lumi reset [flags] <session-id>")
		os.Exit(1)
	}
	sessionID := fs.Arg(0)

	if *serverURL != "" {
		if err := newAPIClient(*serverURL).do(context.Background(), "DELETE", "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil); err != nil {
			fail("Reset failed: %v", err)
		}
	} else {
		store := openHistoryOnly(*configPath)
		defer store.Close()
		if err := store.Reset(context.Background(), sessionID); err != nil {
			fail("Reset failed: %v", err)
		}
	}
	fmt.Printf("Session %s reset\n", sessionID)
}

// openHistoryOnly opens just the history store; history and reset do not need the indices.
func openHistoryOnly(configPath string) history.Store {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	store, err := openHistory(context.Background(), cfg.History)
	if err != nil {
		fail("Failed to open history store: %v", err)
	}
	return store
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: lumi index [flags] <file-or-directory>...")
		fmt.Println("Files ending in .json or .jsonl are read as crawled page records.")
		os.Exit(1)
	}

	l := openLocal(*configPath, *debug, false)
	defer l.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total, failed := 0, false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			l.Close()
			fail("Failed to stat path: %v", err)
		}
		var n int
		if info.IsDir() {
			n, err = l.components.Indexer.IndexDirectory(ctx, path, l.cfg.Indexing.Extensions)
		} else {
			// Single file: no extension filter
			n, err = l.components.Indexer.IndexFile(ctx, path, nil)
		}
		total += n
		if err != nil {
			if ctx.Err() != nil || !info.IsDir() {
				l.Close()
				fail("Indexing %s failed after %d document(s): %v", path, total, err)
			}
			// Directory walks skip files that fail and report them together.
			fmt.Fprintf(os.Stderr, "Some files in %s were skipped:\n%v\n", path, err)
			failed = true
		}
		fmt.Printf("Indexed %d document(s) from %s\n", n, path)
	}
	if len(fs.Args()) > 1 {
		fmt.Printf("Indexed %d document(s) in total\n", total)
	}
	if failed {
		l.Close()
		os.Exit(1)
	}
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents       int64                  `json:"documents"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	DiskUsage       map[string]int64       `json:"disk_usage,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status statusResponse
	if *serverURL != "" {
		if err := newAPIClient(*serverURL).do(context.Background(), "GET", "/api/v1/status", nil, &status); err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		l := openLocal(*configPath, false, false)
		defer l.Close()
		ctx := context.Background()
		docCount, err := l.components.Storage.CountDocuments(ctx)
		if err != nil {
			l.Close()
			fail("Count documents failed: %v", err)
		}
		status.Documents = docCount
		status.VectorIndexSize, _ = l.components.VectorIndex.Size(ctx)
		cfg := l.cfg
		status.Config = map[string]interface{}{
			"vector_backend":   cfg.Storage.VectorBackend,
			"history_backend":  cfg.History.Backend,
			"embedding_model":  cfg.Embedding.Model,
			"llm_model":        cfg.LLM.Model,
			"fallback_mode":    cfg.Agent.FallbackMode,
			"database_path":    cfg.Storage.DatabasePath,
			"bleve_index_path": cfg.Storage.BleveIndexPath,
		}
		usage, total, err := storage.DiskUsage(map[string]string{
			"database":     cfg.Storage.DatabasePath,
			"bleve_index":  cfg.Storage.BleveIndexPath,
			"vector_index": cfg.Storage.VectorIndexPath,
		})
		if err == nil {
			status.DiskUsageBytes = &total
			status.DiskUsage = usage
		}
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	writeStatusText(os.Stdout, &status)
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "documents:          %d   # count of indexed chunks\n", status.Documents)
	fmt.Fprintf(w, "vector_index_size:  %d   # count of vectors in the vector index\n", status.VectorIndexSize)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, k := range []string{"vector_backend", "history_backend", "embedding_model", "llm_model",
			"fallback_mode", "database_path", "bleve_index_path"} {
			if v, ok := status.Config[k]; ok && v != "" {
				fmt.Fprintf(w, "%-19s %v\n", k+":", v)
			}
		}
	}
}

func printUsage() {
	fmt.Print(`lumi - domain-restricted university assistant

Usage:
  lumi <command> [flags]

Commands:
  server    Start the HTTP API
  chat      Talk to the assistant (one-shot with a message, interactive without)
  search    Run hybrid retrieval for a query
  index     Seed documents from files, directories or crawled .json/.jsonl records
  history   Print the turns of a session
  reset     Clear a session
  status    Show index and configuration status
  version   Print the version

Run 'lumi <command> -h' for command flags.
`)
}
