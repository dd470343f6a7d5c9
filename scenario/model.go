package scenario

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeType discriminates the behavior of a node. Unknown values survive
// decoding so that definitions written by a newer editor don't crash the
// engine; the runner treats them as an implicit scenario end.
type NodeType string

const (
	NodeMessage     NodeType = "message"
	NodeSlotFilling NodeType = "slotfilling"
	NodeBranch      NodeType = "branch"
	NodeForm        NodeType = "form"
	NodeAPI         NodeType = "api"
	NodeLLM         NodeType = "llm"
	NodeLink        NodeType = "link"
	NodeIframe      NodeType = "iframe"
	NodeToast       NodeType = "toast"
	NodeSetSlot     NodeType = "setSlot"
	NodeDelay       NodeType = "delay"
)

// Branch evaluation modes. REPLY (or empty) waits for a user-picked reply,
// CONDITION evaluates operator conditions against slots, EXPRESSION evaluates
// expr-lang expressions against slots.
const (
	EvaluationReply      = "REPLY"
	EvaluationCondition  = "CONDITION"
	EvaluationExpression = "EXPRESSION"
)

// Handles reserved by the api and llm handlers.
const (
	HandleSuccess = "onSuccess"
	HandleError   = "onError"
	HandleDefault = "default"
)

// Scenario is an immutable conversational flow definition. It is shared
// across all sessions executing it and must never be mutated by the engine.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StartNodeID string `json:"startNodeId"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Node is one step of a scenario.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// Edge is a directed transition. An empty SourceHandle marks the
// unconditional default path out of the source node.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

// NodeData carries the type-specific payload of a node. A single struct is
// used for all node types; each handler reads only the fields it understands.
type NodeData struct {
	// message, slotfilling, branch, form: templated text shown to the user.
	Content string `json:"content"`

	// slotfilling: name of the slot the validated reply is stored in.
	Slot       string          `json:"slot"`
	Validation *ValidationRule `json:"validation"`

	// branch: quick replies and/or conditions, selected by EvaluationType.
	EvaluationType string      `json:"evaluationType"`
	Replies        []Reply     `json:"replies"`
	Conditions     []Condition `json:"conditions"`

	// link, iframe: templated URL.
	URL string `json:"url"`

	// toast.
	Message   string `json:"message"`
	ToastType string `json:"toastType"`

	// api.
	API *APIConfig `json:"api"`

	// llm. Conditions double as keyword routes out of the node.
	Prompt    string `json:"prompt"`
	OutputVar string `json:"outputVar"`
	Stream    bool   `json:"stream"`

	// form.
	Elements []FormElement `json:"elements"`

	// setSlot: ordered assignments, later ones see earlier results.
	Assignments []Assignment `json:"assignments"`

	// delay: wait duration in milliseconds.
	DurationMS int `json:"durationMs"`
}

// Reply is one selectable answer on a branch node. Value doubles as the edge
// handle chosen when the user picks it.
type Reply struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Condition guards one outgoing path of a branch or llm node. ID is the edge
// handle the condition routes to. Exactly one of the operator triple
// (Slot/Operator/Value), Expression, or Keyword is used depending on the
// owning node.
type Condition struct {
	ID         string `json:"id"`
	Slot       string `json:"slot"`
	Operator   string `json:"operator"`
	Value      string `json:"value"`
	Expression string `json:"expression"`
	Keyword    string `json:"keyword"`
}

// ValidationRule constrains slot-filling input. Type is one of "email",
// "phone number", "custom", "today after", "today before".
type ValidationRule struct {
	Type      string `json:"type"`
	Regex     string `json:"regex"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// FormElement is one field of a form node. Key is the slot the submitted
// value lands in.
type FormElement struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Type       string          `json:"type"`
	Required   bool            `json:"required"`
	Validation *ValidationRule `json:"validation"`
}

// Assignment is one setSlot entry. Value is a template interpolated against
// the current slots, then type-coerced.
type Assignment struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// APIConfig configures an api node. When Requests is non-empty the node runs
// them in parallel (fail-fast) and the top-level request fields are ignored.
type APIConfig struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers"`
	Body            any               `json:"body"`
	ResponseMapping []ResponseMapping `json:"responseMapping"`
	Requests        []APIRequest      `json:"requests"`
}

// APIRequest is one request of a multi-request api node.
type APIRequest struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers"`
	Body            any               `json:"body"`
	ResponseMapping []ResponseMapping `json:"responseMapping"`
}

// ResponseMapping copies a dotted-path field of an API response body into a
// slot, e.g. {slot: "city", path: "address.city"}.
type ResponseMapping struct {
	Slot string `json:"slot"`
	Path string `json:"path"`
}

// Node returns the node with the given id, or nil.
func (s *Scenario) Node(id string) *Node {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns all edges leaving the given node, in declaration order.
func (s *Scenario) EdgesFrom(source string) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the entry node: the declared StartNodeID if present,
// otherwise the first node that is never the target of any edge.
func (s *Scenario) StartNode() *Node {
	if s.StartNodeID != "" {
		if n := s.Node(s.StartNodeID); n != nil {
			return n
		}
	}
	targets := make(map[string]bool, len(s.Edges))
	for _, e := range s.Edges {
		targets[e.Target] = true
	}
	for i := range s.Nodes {
		if !targets[s.Nodes[i].ID] {
			return &s.Nodes[i]
		}
	}
	return nil
}

// DecodeNodeData converts a loosely typed payload (as produced by YAML/JSON
// parsing) into NodeData. Input is weakly typed so "5000" decodes into an int
// field and scalar mismatches coerce rather than fail.
func DecodeNodeData(raw map[string]any, out *NodeData) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode node data: %w", err)
	}
	return nil
}
