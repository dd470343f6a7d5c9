package scenario

import (
	"errors"
	"fmt"
)

// Lint checks the graph shape of a scenario definition. It is meant to run at
// load time so authoring mistakes fail the boot instead of surfacing halfway
// through a conversation.
func Lint(s *Scenario) error {
	var errs []error

	if len(s.Nodes) == 0 {
		errs = append(errs, errors.New("scenario has no nodes"))
	}

	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			errs = append(errs, errors.New("node with empty id"))
			continue
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Errorf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}

	for i, e := range s.Edges {
		if !seen[e.Source] {
			errs = append(errs, fmt.Errorf("edge %d references unknown source %q", i, e.Source))
		}
		if !seen[e.Target] {
			errs = append(errs, fmt.Errorf("edge %d references unknown target %q", i, e.Target))
		}
	}

	if s.StartNodeID != "" && !seen[s.StartNodeID] {
		errs = append(errs, fmt.Errorf("startNodeId %q does not exist", s.StartNodeID))
	}
	if len(errs) == 0 && s.StartNode() == nil {
		errs = append(errs, errors.New("no start node: every node is the target of an edge"))
	}

	// Conditions must route somewhere: each condition id needs a matching
	// edge handle (or the node needs a default edge to fall back to).
	for _, n := range s.Nodes {
		if len(n.Data.Conditions) == 0 {
			continue
		}
		handles := make(map[string]bool)
		hasDefault := false
		for _, e := range s.EdgesFrom(n.ID) {
			handles[e.SourceHandle] = true
			if e.SourceHandle == HandleDefault || e.SourceHandle == "" {
				hasDefault = true
			}
		}
		for _, c := range n.Data.Conditions {
			if c.ID != "" && !handles[c.ID] && !hasDefault {
				errs = append(errs, fmt.Errorf("node %s: condition %q has no matching edge handle", n.ID, c.ID))
			}
		}
	}

	return errors.Join(errs...)
}
