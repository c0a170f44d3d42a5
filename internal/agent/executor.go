// Package agent runs the single-step tool-calling decision loop for one user message.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/history"
	"github.com/hyperjump/lumi/internal/llm"
	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/tool"
)

// DefaultFailClosedMessage is returned in fail-closed mode when retrieval is unavailable.
const DefaultFailClosedMessage = "I could not find official information about this right now. " +
	"Please contact the one-stop service office or your department office for an accurate answer."

// Config holds the decision loop settings.
type Config struct {
	SystemPrompt      string
	FallbackMode      FallbackMode
	FailClosedMessage string
	// HistoryWindow limits the turns sent to the model to the most recent ones. 0 sends all.
	HistoryWindow int
	// ModelTimeout bounds each model call.
	ModelTimeout time.Duration
	// ToolResultLimit caps the passages handed to the model. 0 keeps the retriever's top-k.
	ToolResultLimit int
}

// DefaultConfig returns the default configuration: fail-open, 60s model timeout.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:      llm.DefaultSystemPrompt,
		FallbackMode:      FallbackFailOpen,
		FailClosedMessage: DefaultFailClosedMessage,
		ModelTimeout:      60 * time.Second,
	}
}

// TurnResult is the outcome of one submitted message.
type TurnResult struct {
	SessionID string
	// Answer is the text of the persisted assistant turn.
	Answer string
	Turn   *models.Turn
	// ToolUsed is set when the model called the Search tool.
	ToolUsed bool
	// Fallback is set when retrieval was unavailable and the fallback policy answered.
	Fallback bool
	// Degraded is set when only one retrieval source answered.
	Degraded  bool
	Retrieved int
}

// Executor runs turns against a history store, a model and the Search tool.
type Executor struct {
	store  history.Store
	model  llm.Model
	search *tool.Search
	cfg    Config
	logger *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. Zero-valued config fields take DefaultConfig values.
func NewExecutor(store history.Store, model llm.Model, retriever tool.Retriever, cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.FallbackMode == "" {
		cfg.FallbackMode = def.FallbackMode
	}
	if cfg.FailClosedMessage == "" {
		cfg.FailClosedMessage = def.FailClosedMessage
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = def.ModelTimeout
	}
	e := &Executor{
		store:  store,
		model:  model,
		search: tool.NewSearch(retriever, cfg.ToolResultLimit),
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the state of one turn.
type run struct {
	sessionID string
	state     State
	prompt    []llm.Message
	result    *TurnResult
	logger    *zap.Logger
}

func (r *run) transition(to State) {
	r.logger.Debug("agent state transition",
		zap.String("from", r.state.String()),
		zap.String("to", to.String()),
	)
	r.state = to
}

// SubmitTurn processes one user message: it appends the user turn, asks the model for a
// decision, runs the Search tool at most once and persists exactly one assistant turn.
// Errors wrap models.ErrInvalidInput, models.ErrStoreUnavailable or models.ErrAgentFailure,
// or are the caller's context error.
func (e *Executor) SubmitTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	req := models.ChatRequest{SessionID: sessionID, Message: message}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := &run{
		sessionID: req.SessionID,
		state:     StateStart,
		result:    &TurnResult{SessionID: req.SessionID},
		logger:    e.logger.With(zap.String("session_id", req.SessionID)),
	}

	if _, err := e.store.Append(ctx, r.sessionID, &models.Turn{Role: models.RoleUser, Content: req.Message}); err != nil {
		return nil, err
	}
	turns, err := e.store.Read(ctx, r.sessionID)
	if err != nil {
		return nil, err
	}
	turns = windowTurns(turns, e.cfg.HistoryWindow)
	r.prompt = llm.MessagesFromTurns(turns)

	r.transition(StateAwaitDecision)
	decision, err := e.decide(ctx, r.prompt, true)
	if err != nil {
		return nil, err
	}

	if decision.Kind == llm.DecisionFinal {
		r.transition(StateDirectAnswer)
		if strings.TrimSpace(decision.Content) == "" {
			return nil, fmt.Errorf("%w: model returned an empty answer", models.ErrAgentFailure)
		}
		return e.finish(ctx, r, decision.Content)
	}

	r.transition(StateAwaitToolResult)
	query, err := e.toolQuery(decision)
	if err != nil {
		return nil, err
	}
	r.result.ToolUsed = true
	r.logger.Info("agent calling search tool", zap.String("query", query))

	res, output, err := e.search.Run(ctx, query)
	switch {
	case err == nil:
		r.result.Retrieved = res.Len()
		r.result.Degraded = res.Degraded
	case errors.Is(err, models.ErrRetrievalUnavailable):
		r.result.Fallback = true
		output = llm.NoContextMarker
		r.logger.Warn("retrieval unavailable, applying fallback",
			zap.String("mode", string(e.cfg.FallbackMode)),
			zap.Error(err),
		)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: search tool: %v", models.ErrAgentFailure, err)
	}

	toolTurn, err := e.store.Append(ctx, r.sessionID, &models.Turn{
		Role:     models.RoleTool,
		ToolCall: &models.ToolCall{Name: tool.SearchName, Input: query, Output: output},
	})
	if err != nil {
		return nil, err
	}

	if r.result.Fallback && e.cfg.FallbackMode == FallbackFailClosed {
		return e.finish(ctx, r, e.cfg.FailClosedMessage)
	}

	r.transition(StateAwaitFinalAnswer)
	r.prompt = append(r.prompt, llm.MessagesFromTurns([]*models.Turn{toolTurn})...)
	final, err := e.decide(ctx, r.prompt, false)
	if err != nil {
		return nil, err
	}
	if final.Kind == llm.DecisionToolCall {
		r.logger.Warn("model requested another tool call, using its text as the answer")
	}
	if strings.TrimSpace(final.Content) == "" {
		return nil, fmt.Errorf("%w: model returned no final answer after tool call", models.ErrAgentFailure)
	}
	return e.finish(ctx, r, final.Content)
}

// decide calls the model under the configured timeout.
func (e *Executor) decide(ctx context.Context, prompt []llm.Message, withTools bool) (*llm.Decision, error) {
	req := &llm.Request{System: e.cfg.SystemPrompt, Messages: prompt}
	if withTools {
		req.Tools = []llm.ToolDefinition{e.search.Definition()}
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	d, err := e.model.Decide(callCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrAgentFailure, e.model.Name(), err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %s returned no decision", models.ErrAgentFailure, e.model.Name())
	}
	e.logger.Debug("model decision",
		zap.String("kind", d.Kind.String()),
		zap.Bool("tools_offered", withTools),
		zap.Duration("elapsed", time.Since(start)),
	)
	return d, nil
}

func (e *Executor) toolQuery(d *llm.Decision) (string, error) {
	if d.ToolCall == nil {
		return "", fmt.Errorf("%w: tool call decision without a call", models.ErrAgentFailure)
	}
	if d.ToolCall.Name != tool.SearchName {
		return "", fmt.Errorf("%w: unknown tool %q", models.ErrAgentFailure, d.ToolCall.Name)
	}
	query, err := tool.ParseQuery(d.ToolCall.Arguments)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAgentFailure, err)
	}
	return query, nil
}

// finish persists the assistant turn and completes the run.
func (e *Executor) finish(ctx context.Context, r *run, answer string) (*TurnResult, error) {
	turn, err := e.store.Append(ctx, r.sessionID, &models.Turn{Role: models.RoleAssistant, Content: answer})
	if err != nil {
		return nil, err
	}
	r.transition(StateDone)
	r.result.Answer = turn.Content
	r.result.Turn = turn
	r.logger.Info("turn completed",
		zap.Int64("seq", turn.Seq),
		zap.Bool("tool_used", r.result.ToolUsed),
		zap.Bool("fallback", r.result.Fallback),
		zap.Int("retrieved", r.result.Retrieved),
	)
	return r.result, nil
}

// windowTurns keeps the most recent n turns. A window that would open on a
// tool turn is extended back so the tool call keeps its user turn.
func windowTurns(turns []*models.Turn, n int) []*models.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	start := len(turns) - n
	for start > 0 && turns[start].Role == models.RoleTool {
		start--
	}
	return turns[start:]
}

// History returns the stored turns of a session.
func (e *Executor) History(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	return e.store.Read(ctx, strings.TrimSpace(sessionID))
}

// Reset clears a session.
func (e *Executor) Reset(ctx context.Context, sessionID string) error {
	return e.store.Reset(ctx, strings.TrimSpace(sessionID))
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}
