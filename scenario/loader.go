package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds the scenarios known to the server. It is populated once at
// boot and read-only afterwards, so no locking is needed.
type Registry struct {
	scenarios map[string]*Scenario
}

func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]*Scenario)}
}

func (r *Registry) Register(s *Scenario) {
	r.scenarios[s.ID] = s
}

// Get returns the scenario with the given id, or nil.
func (r *Registry) Get(id string) *Scenario {
	return r.scenarios[id]
}

// IDs returns all registered scenario ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.scenarios))
	for id := range r.scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDir reads every *.yaml, *.yml and *.json file in dir as a scenario
// definition, lints it, and returns a registry. JSON is parsed by the YAML
// decoder (YAML is a superset).
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario directory: %w", err)
	}

	registry := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		s, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		registry.Register(s)
	}
	return registry, nil
}

// LoadFile reads and lints a single scenario definition.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := Lint(s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// rawScenario mirrors Scenario with node payloads left as loose maps, so the
// typed NodeData decoding can go through DecodeNodeData.
type rawScenario struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	StartNodeID string    `yaml:"startNodeId"`
	Nodes       []rawNode `yaml:"nodes"`
	Edges       []rawEdge `yaml:"edges"`
}

type rawNode struct {
	ID   string         `yaml:"id"`
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

type rawEdge struct {
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"sourceHandle"`
}

// Parse unmarshals a scenario definition from YAML or JSON bytes.
func Parse(data []byte) (*Scenario, error) {
	var raw rawScenario
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling scenario: %w", err)
	}

	s := &Scenario{
		ID:          raw.ID,
		Name:        raw.Name,
		StartNodeID: raw.StartNodeID,
		Nodes:       make([]Node, 0, len(raw.Nodes)),
		Edges:       make([]Edge, 0, len(raw.Edges)),
	}
	for _, rn := range raw.Nodes {
		node := Node{ID: rn.ID, Type: NodeType(rn.Type)}
		if rn.Data != nil {
			if err := DecodeNodeData(rn.Data, &node.Data); err != nil {
				return nil, fmt.Errorf("node %s: %w", rn.ID, err)
			}
		}
		s.Nodes = append(s.Nodes, node)
	}
	for _, re := range raw.Edges {
		s.Edges = append(s.Edges, Edge(re))
	}
	return s, nil
}
