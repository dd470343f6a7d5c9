package engine

import (
	"strings"

	"chatflow/scenario"
)

// NextNode resolves the node to execute after currentNodeID.
//
// An empty currentNodeID means the session has not entered the graph yet and
// resolves to the start node. Otherwise strategies apply in fixed precedence,
// first success wins:
//
//  1. llm nodes with keyword conditions: first condition whose keyword is a
//     case-insensitive substring of the node's output slot;
//  2. branch nodes with CONDITION/EXPRESSION evaluation: first condition that
//     evaluates true, falling back to a "default" handle edge;
//  3. the edge matching the explicit sourceHandle;
//  4. when no sourceHandle was supplied, the edge with no handle at all.
//
// Conditions are scanned in declaration order; the first match wins even if a
// later one would also match. Returns nil when nothing resolves (scenario
// end).
func (e *Engine) NextNode(sc *scenario.Scenario, currentNodeID, sourceHandle string, slots map[string]any) *scenario.Node {
	if currentNodeID == "" {
		return sc.StartNode()
	}

	current := sc.Node(currentNodeID)
	if current == nil {
		e.l.Warn("current node missing from scenario", "scenario", sc.ID, "node", currentNodeID)
		return nil
	}
	edges := sc.EdgesFrom(currentNodeID)

	if current.Type == scenario.NodeLLM && len(current.Data.Conditions) > 0 {
		if n := e.resolveLLMConditions(sc, current, edges, slots); n != nil {
			return n
		}
	}

	if current.Type == scenario.NodeBranch {
		switch current.Data.EvaluationType {
		case scenario.EvaluationCondition, scenario.EvaluationExpression:
			if n := e.resolveBranchConditions(sc, current, edges, slots); n != nil {
				return n
			}
		}
	}

	if sourceHandle != "" {
		for _, edge := range edges {
			if edge.SourceHandle == sourceHandle {
				return sc.Node(edge.Target)
			}
		}
		return nil
	}

	for _, edge := range edges {
		if edge.SourceHandle == "" {
			return sc.Node(edge.Target)
		}
	}
	return nil
}

func (e *Engine) resolveLLMConditions(sc *scenario.Scenario, node *scenario.Node, edges []scenario.Edge, slots map[string]any) *scenario.Node {
	output := strings.ToLower(Stringify(slots[node.Data.OutputVar]))
	for _, c := range node.Data.Conditions {
		if c.Keyword == "" {
			continue
		}
		if strings.Contains(output, strings.ToLower(c.Keyword)) {
			if n := targetFor(sc, edges, c.ID); n != nil {
				return n
			}
		}
	}
	return nil
}

func (e *Engine) resolveBranchConditions(sc *scenario.Scenario, node *scenario.Node, edges []scenario.Edge, slots map[string]any) *scenario.Node {
	for _, c := range node.Data.Conditions {
		matched := false
		if node.Data.EvaluationType == scenario.EvaluationExpression {
			ok, err := e.expr.EvalBool(c.Expression, slots)
			if err != nil {
				e.l.Warn("branch expression failed", "scenario", sc.ID, "node", node.ID,
					"expression", c.Expression, "error", err)
				continue
			}
			matched = ok
		} else {
			matched = EvaluateCondition(slots[c.Slot], c.Operator, c.Value)
		}
		if matched {
			if n := targetFor(sc, edges, c.ID); n != nil {
				return n
			}
		}
	}
	return targetFor(sc, edges, scenario.HandleDefault)
}

func targetFor(sc *scenario.Scenario, edges []scenario.Edge, handle string) *scenario.Node {
	for _, edge := range edges {
		if edge.SourceHandle == handle {
			return sc.Node(edge.Target)
		}
	}
	return nil
}
