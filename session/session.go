package session

import (
	"time"
)

// Status is the lifecycle state of a scenario session. Terminal statuses are
// final: a terminated session can still be read but never resumed.
type Status string

const (
	StatusActive     Status = "active"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	NodeID    string    `json:"nodeId,omitempty"`
	NodeType  string    `json:"nodeType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is one running instance of a scenario. A conversation may hold many
// concurrent sessions; each owns its slots and position exclusively.
type Session struct {
	ID             string         `json:"id"`
	ScenarioID     string         `json:"scenarioId"`
	ConversationID string         `json:"conversationId"`
	Language       string         `json:"language"`
	CurrentNodeID  string         `json:"currentNodeId"`
	AwaitingInput  bool           `json:"awaitingInput"`
	Slots          map[string]any `json:"slots"`
	Messages       []Message      `json:"messages"`
	Status         Status         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID            string    `json:"id"`
	ScenarioID    string    `json:"scenarioId"`
	Status        Status    `json:"status"`
	CurrentNodeID string    `json:"currentNodeId"`
	AwaitingInput bool      `json:"awaitingInput"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Summary derives the listing view from a full record.
func (s *Session) Summary() Summary {
	return Summary{
		ID:            s.ID,
		ScenarioID:    s.ScenarioID,
		Status:        s.Status,
		CurrentNodeID: s.CurrentNodeID,
		AwaitingInput: s.AwaitingInput,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// Clone deep-copies a session so that a turn can work on its own copy and
// concurrent readers never observe partial mutation.
func (s *Session) Clone() *Session {
	out := *s
	out.Slots = CloneSlots(s.Slots)
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// CloneSlots deep-copies a slot mapping. A nil input yields an empty, usable
// map.
func CloneSlots(slots map[string]any) map[string]any {
	if slots == nil {
		return map[string]any{}
	}
	return cloneValue(slots).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, vv := range t {
			a[i] = cloneValue(vv)
		}
		return a
	default:
		return v
	}
}
