package engine

import (
	"chatflow/scenario"
	"chatflow/session"
)

// ResultType classifies the outcome of one runner invocation.
type ResultType string

const (
	// ResultScenario: stopped at an interactive node, waiting for the user.
	ResultScenario ResultType = "scenario"
	// ResultEnd: traversal reached a dead end; the session terminated.
	ResultEnd ResultType = "scenario_end"
	// ResultValidationFail: the incoming message failed the current node's
	// validation rule; nothing advanced.
	ResultValidationFail ResultType = "scenario_validation_fail"
)

// TurnInput is what the user (or UI) feeds into an awaiting session: a free
// text message, a selected reply handle, and/or submitted form values.
type TurnInput struct {
	Message    string            `json:"message"`
	Handle     string            `json:"handle"`
	FormValues map[string]string `json:"formValues"`
}

// RenderedNode is the interactive node surfaced to the caller, with all
// templated fields interpolated against the current slots. It is a copy; the
// shared scenario definition is never mutated.
type RenderedNode struct {
	ID       string                 `json:"id"`
	Type     scenario.NodeType      `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Replies  []scenario.Reply       `json:"replies,omitempty"`
	Elements []scenario.FormElement `json:"elements,omitempty"`
	URL      string                 `json:"url,omitempty"`
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	Type              ResultType        `json:"type"`
	SessionID         string            `json:"sessionId"`
	Status            session.Status    `json:"status"`
	AwaitingInput     bool              `json:"awaitingInput"`
	Node              *RenderedNode     `json:"node,omitempty"`
	Messages          []session.Message `json:"messages,omitempty"`
	Events            []Event           `json:"events,omitempty"`
	ValidationMessage string            `json:"validationMessage,omitempty"`
}
