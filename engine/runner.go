package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatflow/scenario"
	"chatflow/session"
)

// Run executes one turn of a session against its scenario. sess is the
// caller's working copy and is mutated in place (position, slots,
// transcript); the scenario definition is never touched. input is nil for the
// launch turn.
//
// The turn stops at the first interactive node (ResultScenario), at a dead
// end (ResultEnd), or immediately on a validation failure
// (ResultValidationFail, nothing advanced).
func (e *Engine) Run(ctx context.Context, sc *scenario.Scenario, sess *session.Session, input *TurnInput) (*TurnResult, error) {
	if sess.Slots == nil {
		sess.Slots = map[string]any{}
	}
	res := &TurnResult{SessionID: sess.ID, Status: sess.Status}

	handle := ""
	if input != nil {
		if stop := e.consumeInput(sc, sess, input, res); stop {
			return res, nil
		}
		handle = input.Handle
	}

	node := e.NextNode(sc, sess.CurrentNodeID, handle, sess.Slots)
	steps := 0
	for {
		if node == nil {
			res.Type = ResultEnd
			sess.AwaitingInput = false
			return res, nil
		}

		steps++
		if steps > e.maxSteps {
			return res, fmt.Errorf("%w: scenario %s exceeded %d steps in one turn",
				ErrStepBudgetExceeded, sc.ID, e.maxSteps)
		}

		hr, err := e.executeNode(ctx, sc, node, sess)
		res.Events = append(res.Events, hr.events...)
		for _, m := range hr.messages {
			sess.Messages = append(sess.Messages, m)
			res.Messages = append(res.Messages, m)
		}
		sess.CurrentNodeID = node.ID
		if err != nil {
			return res, err
		}

		if hr.interactive {
			rendered := e.render(node, sess)
			if rendered.Content != "" {
				m := botMessage(node, rendered.Content)
				sess.Messages = append(sess.Messages, m)
				res.Messages = append(res.Messages, m)
			}
			res.Node = rendered

			if len(sc.EdgesFrom(node.ID)) == 0 {
				// Nothing to wait for: an interactive node with no way out
				// ends the scenario after surfacing its content.
				res.Type = ResultEnd
				sess.AwaitingInput = false
				return res, nil
			}

			res.Type = ResultScenario
			sess.AwaitingInput = node.Type == scenario.NodeSlotFilling
			res.AwaitingInput = sess.AwaitingInput
			return res, nil
		}

		node = hr.next
	}
}

// consumeInput applies the user's turn input to the session before edge
// resolution: slot-filling validation and capture, form submission, and the
// transcript entry for the user message. Returns true when the turn must stop
// here (validation failure), leaving the session exactly as it was.
func (e *Engine) consumeInput(sc *scenario.Scenario, sess *session.Session, input *TurnInput, res *TurnResult) bool {
	current := sc.Node(sess.CurrentNodeID)

	if sess.AwaitingInput && current != nil && current.Type == scenario.NodeSlotFilling {
		vr := ValidateInput(input.Message, current.Data.Validation, sess.Language)
		if !vr.Valid {
			res.Type = ResultValidationFail
			res.AwaitingInput = true
			res.ValidationMessage = vr.Message
			return true
		}
		appendUserMessage(sess, res, input.Message)
		if current.Data.Slot != "" {
			sess.Slots[current.Data.Slot] = input.Message
		}
		sess.AwaitingInput = false
		return false
	}

	if current != nil && current.Type == scenario.NodeForm && len(input.FormValues) > 0 {
		for _, element := range current.Data.Elements {
			value, present := input.FormValues[element.Key]
			if !present || value == "" {
				if element.Required {
					res.Type = ResultValidationFail
					res.ValidationMessage = validationMessage(sess.Language, msgInvalidFormat)
					return true
				}
				continue
			}
			vr := ValidateInput(value, element.Validation, sess.Language)
			if !vr.Valid {
				res.Type = ResultValidationFail
				res.ValidationMessage = vr.Message
				return true
			}
		}
		for _, element := range current.Data.Elements {
			if value, present := input.FormValues[element.Key]; present && value != "" {
				sess.Slots[element.Key] = value
			}
		}
	}

	if input.Message != "" {
		appendUserMessage(sess, res, input.Message)
	}
	return false
}

// render produces the interactive node copy surfaced to the caller, with
// templated fields interpolated against the current slots.
func (e *Engine) render(node *scenario.Node, sess *session.Session) *RenderedNode {
	r := &RenderedNode{
		ID:      node.ID,
		Type:    node.Type,
		Content: Interpolate(node.Data.Content, sess.Slots),
	}
	switch node.Type {
	case scenario.NodeBranch:
		r.Replies = node.Data.Replies
	case scenario.NodeForm:
		r.Elements = node.Data.Elements
	case scenario.NodeIframe:
		r.URL = appendSessionParam(Interpolate(node.Data.URL, sess.Slots), sess.ID)
	}
	return r
}

func appendUserMessage(sess *session.Session, res *TurnResult, content string) {
	m := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	sess.Messages = append(sess.Messages, m)
	res.Messages = append(res.Messages, m)
}

func botMessage(node *scenario.Node, content string) session.Message {
	return session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleBot,
		Content:   content,
		NodeID:    node.ID,
		NodeType:  string(node.Type),
		CreatedAt: time.Now(),
	}
}
