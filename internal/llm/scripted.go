package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedStep is one canned reply of a ScriptedModel.
type ScriptedStep struct {
	Decision *Decision
	Err      error
	// Wait blocks the step until the request context is done.
	Wait bool
}

// ScriptedModel replays steps in order and records every request.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	requests []*Request
}

// NewScriptedModel creates a model that returns steps in order.
func NewScriptedModel(steps ...ScriptedStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Final is a step answering with text.
func Final(content string) ScriptedStep {
	return ScriptedStep{Decision: &Decision{Kind: DecisionFinal, Content: content}}
}

// CallTool is a step requesting a tool call with raw JSON arguments.
func CallTool(name, arguments string) ScriptedStep {
	return ScriptedStep{Decision: &Decision{
		Kind:     DecisionToolCall,
		ToolCall: &ToolCall{ID: "call_scripted", Name: name, Arguments: arguments},
	}}
}

// Fail is a step returning err.
func Fail(err error) ScriptedStep {
	return ScriptedStep{Err: err}
}

// Name returns "scripted".
func (s *ScriptedModel) Name() string {
	return "scripted"
}

// Decide returns the next step. Running out of steps is an error.
func (s *ScriptedModel) Decide(ctx context.Context, req *Request) (*Decision, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("scripted model: no step left")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	d := *step.Decision
	return &d, nil
}

// Requests returns the requests seen so far.
func (s *ScriptedModel) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, len(s.requests))
	copy(out, s.requests)
	return out
}
