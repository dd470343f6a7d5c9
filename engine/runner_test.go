package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/scenario"
	"chatflow/session"
)

// greetingScenario: message -> slotfilling(name) -> message with the captured
// slot interpolated.
func greetingScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID: "greeting",
		Nodes: []scenario.Node{
			msgNode("hi", "Hi"),
			{ID: "ask", Type: scenario.NodeSlotFilling, Data: scenario.NodeData{
				Content: "What is your name?",
				Slot:    "name",
			}},
			msgNode("bye", "Bye {name}"),
		},
		Edges: []scenario.Edge{
			edge("hi", "ask", ""),
			edge("ask", "bye", ""),
		},
	}
}

func TestRunGreetingEndToEnd(t *testing.T) {
	sc := greetingScenario()
	e := testEngine(nil, nil)
	sess := testSession("greeting")

	// Launch turn: stops at the first interactive node.
	res, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultScenario, res.Type)
	require.NotNil(t, res.Node)
	assert.Equal(t, "hi", res.Node.ID)
	assert.Equal(t, "Hi", res.Node.Content)
	assert.False(t, res.AwaitingInput)
	assert.Equal(t, "hi", sess.CurrentNodeID)

	// Any user message advances past a plain message node to the question.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ResultScenario, res.Type)
	assert.Equal(t, "ask", res.Node.ID)
	assert.True(t, res.AwaitingInput)
	assert.True(t, sess.AwaitingInput)

	// The answer fills the slot and the final message interpolates it.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, ResultEnd, res.Type)
	require.NotNil(t, res.Node)
	assert.Equal(t, "bye", res.Node.ID)
	assert.Equal(t, "Bye Ann", res.Node.Content)
	assert.Equal(t, "Ann", sess.Slots["name"])
	assert.False(t, sess.AwaitingInput)
}

func TestRunValidationFailDoesNotAdvance(t *testing.T) {
	sc := &scenario.Scenario{
		ID: "v",
		Nodes: []scenario.Node{
			{ID: "ask", Type: scenario.NodeSlotFilling, Data: scenario.NodeData{
				Content:    "Email?",
				Slot:       "email",
				Validation: &scenario.ValidationRule{Type: RuleEmail},
			}},
			msgNode("done", "ok"),
		},
		Edges: []scenario.Edge{edge("ask", "done", "")},
	}
	e := testEngine(nil, nil)
	sess := testSession("v")

	_, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	require.True(t, sess.AwaitingInput)
	priorMessages := len(sess.Messages)

	res, err := e.Run(context.Background(), sc, sess, &TurnInput{Message: "not-an-email"})
	require.NoError(t, err)
	assert.Equal(t, ResultValidationFail, res.Type)
	assert.NotEmpty(t, res.ValidationMessage)
	assert.True(t, res.AwaitingInput)

	// Position, slots and transcript are untouched; the question stands.
	assert.Equal(t, "ask", sess.CurrentNodeID)
	assert.True(t, sess.AwaitingInput)
	_, captured := sess.Slots["email"]
	assert.False(t, captured)
	assert.Len(t, sess.Messages, priorMessages)

	// A valid retry proceeds normally.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ResultEnd, res.Type)
	assert.Equal(t, "ann@example.com", sess.Slots["email"])
}

func TestRunBranchReplyHandle(t *testing.T) {
	sc := &scenario.Scenario{
		ID: "b",
		Nodes: []scenario.Node{
			{ID: "choose", Type: scenario.NodeBranch, Data: scenario.NodeData{
				EvaluationType: scenario.EvaluationReply,
				Content:        "Pick one",
				Replies: []scenario.Reply{
					{Value: "yes", Label: "Yes"},
					{Value: "no", Label: "No"},
				},
			}},
			msgNode("y", "you said yes"),
			msgNode("n", "you said no"),
		},
		Edges: []scenario.Edge{
			edge("choose", "y", "yes"),
			edge("choose", "n", "no"),
		},
	}
	e := testEngine(nil, nil)
	sess := testSession("b")

	res, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultScenario, res.Type)
	require.Len(t, res.Node.Replies, 2)
	assert.Equal(t, "yes", res.Node.Replies[0].Value)
	assert.False(t, res.AwaitingInput)

	res, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "yes", Handle: "yes"})
	require.NoError(t, err)
	assert.Equal(t, ResultEnd, res.Type)
	assert.Equal(t, "y", res.Node.ID)
}

func TestRunFormSubmission(t *testing.T) {
	sc := &scenario.Scenario{
		ID: "f",
		Nodes: []scenario.Node{
			{ID: "form", Type: scenario.NodeForm, Data: scenario.NodeData{
				Content: "Fill this in",
				Elements: []scenario.FormElement{
					{Key: "email", Label: "Email", Required: true,
						Validation: &scenario.ValidationRule{Type: RuleEmail}},
					{Key: "nickname", Label: "Nickname"},
				},
			}},
			msgNode("done", "thanks {email}"),
		},
		Edges: []scenario.Edge{edge("form", "done", "")},
	}
	e := testEngine(nil, nil)
	sess := testSession("f")

	res, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, "form", res.Node.ID)
	require.Len(t, res.Node.Elements, 2)

	// Missing required field fails without advancing.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{
		FormValues: map[string]string{"nickname": "annie"},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultValidationFail, res.Type)
	assert.Equal(t, "form", sess.CurrentNodeID)

	// Invalid field value fails too.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{
		FormValues: map[string]string{"email": "nope"},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultValidationFail, res.Type)

	// A valid submission fills every slot. The optional empty field is skipped.
	res, err = e.Run(context.Background(), sc, sess, &TurnInput{
		FormValues: map[string]string{"email": "ann@example.com", "nickname": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultEnd, res.Type)
	assert.Equal(t, "thanks ann@example.com", res.Node.Content)
	assert.Equal(t, "ann@example.com", sess.Slots["email"])
	_, present := sess.Slots["nickname"]
	assert.False(t, present)
}

func TestRunIframeRendersSessionURL(t *testing.T) {
	sc := &scenario.Scenario{
		ID: "i",
		Nodes: []scenario.Node{
			{ID: "frame", Type: scenario.NodeIframe, Data: scenario.NodeData{
				URL: "https://example.com/pay/{orderId}",
			}},
		},
	}
	e := testEngine(nil, nil)
	sess := testSession("i")
	sess.Slots["orderId"] = "o-9"

	res, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pay/o-9?scenario_session_id=sess-1", res.Node.URL)
}

func TestRunStepBudget(t *testing.T) {
	// Two setSlot nodes in a cycle never reach an interactive node.
	sc := &scenario.Scenario{
		ID:          "loop",
		StartNodeID: "a",
		Nodes: []scenario.Node{
			{ID: "a", Type: scenario.NodeSetSlot, Data: scenario.NodeData{
				Assignments: []scenario.Assignment{{Key: "x", Value: "1"}},
			}},
			{ID: "b", Type: scenario.NodeSetSlot, Data: scenario.NodeData{
				Assignments: []scenario.Assignment{{Key: "y", Value: "2"}},
			}},
		},
		Edges: []scenario.Edge{
			edge("a", "b", ""),
			edge("b", "a", ""),
		},
	}
	e := testEngine(nil, nil, WithMaxSteps(10))
	sess := testSession("loop")

	_, err := e.Run(context.Background(), sc, sess, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
}

func TestRunTranscriptAccumulates(t *testing.T) {
	sc := greetingScenario()
	e := testEngine(nil, nil)
	sess := testSession("greeting")

	_, err := e.Run(context.Background(), sc, sess, nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "hello"})
	require.NoError(t, err)
	_, err = e.Run(context.Background(), sc, sess, &TurnInput{Message: "Ann"})
	require.NoError(t, err)

	var contents []string
	var roles []session.Role
	for _, m := range sess.Messages {
		contents = append(contents, m.Content)
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"Hi", "hello", "What is your name?", "Ann", "Bye Ann"}, contents)
	assert.Equal(t, []session.Role{
		session.RoleBot, session.RoleUser, session.RoleBot,
		session.RoleUser, session.RoleBot,
	}, roles)
}

func TestRunConcurrentSessionsIsolated(t *testing.T) {
	sc := greetingScenario()
	e := testEngine(nil, nil)

	names := []string{"Ann", "Ben", "Cho", "Dee"}
	var wg sync.WaitGroup
	sessions := make([]*session.Session, len(names))
	for i := range names {
		sessions[i] = testSession("greeting")
		sessions[i].ID = names[i]
	}

	for i, name := range names {
		wg.Add(1)
		go func(sess *session.Session, name string) {
			defer wg.Done()
			if _, err := e.Run(context.Background(), sc, sess, nil); err != nil {
				t.Error(err)
				return
			}
			if _, err := e.Run(context.Background(), sc, sess, &TurnInput{Message: "hello"}); err != nil {
				t.Error(err)
				return
			}
			if _, err := e.Run(context.Background(), sc, sess, &TurnInput{Message: name}); err != nil {
				t.Error(err)
			}
		}(sessions[i], name)
	}
	wg.Wait()

	for i, name := range names {
		assert.Equal(t, name, sessions[i].Slots["name"])
	}
	// The shared definition stays pristine.
	assert.Equal(t, "Bye {name}", sc.Nodes[2].Data.Content)
}
