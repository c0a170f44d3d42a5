// Package llm defines the chat model capability used by the agent and its adapters.
package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/lumi/internal/models"
)

// Message roles sent to the model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the prompt. Assistant messages may carry a ToolCall; tool
// messages answer the call named by ToolCallID.
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is one model invocation. A request without Tools must be answered in text.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// DecisionKind is the branch the model chose.
type DecisionKind int

const (
	DecisionFinal DecisionKind = iota
	DecisionToolCall
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionFinal:
		return "final"
	case DecisionToolCall:
		return "tool_call"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the model's answer: either final text or a single tool call. Content may
// accompany a tool call.
type Decision struct {
	Kind     DecisionKind
	Content  string
	ToolCall *ToolCall
}

// Model produces a Decision for a prompt.
type Model interface {
	Decide(ctx context.Context, req *Request) (*Decision, error)
	Name() string
}

// MessagesFromTurns renders stored turns as prompt messages. A tool turn becomes an
// assistant message carrying the call followed by the tool message with its output.
func MessagesFromTurns(turns []*models.Turn) []Message {
	msgs := make([]Message, 0, len(turns)+len(turns)/2)
	for _, t := range turns {
		switch t.Role {
		case models.RoleUser:
			msgs = append(msgs, Message{Role: RoleUser, Content: t.Content})
		case models.RoleAssistant:
			msgs = append(msgs, Message{Role: RoleAssistant, Content: t.Content})
		case models.RoleTool:
			if t.ToolCall == nil {
				continue
			}
			id := fmt.Sprintf("call_%d", t.Seq)
			msgs = append(msgs,
				Message{Role: RoleAssistant, ToolCall: &ToolCall{ID: id, Name: t.ToolCall.Name, Arguments: t.ToolCall.Input}},
				Message{Role: RoleTool, Content: t.ToolCall.Output, ToolCallID: id},
			)
		}
	}
	return msgs
}
