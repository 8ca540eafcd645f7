// Package kinematic describes the robot structure the display needs: which
// links exist, which carry geometry, how they are grouped and which link is
// the root of the tree.
package kinematic

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNoDescription is returned when a description parameter is not set.
var ErrNoDescription = errors.New("robot description not found")

// Link is a rigid body of the robot.
type Link struct {
	Name      string `yaml:"name"`
	Visual    bool   `yaml:"visual,omitempty"`
	Collision bool   `yaml:"collision,omitempty"`
}

// Joint connects a parent link to a child link.
type Joint struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type,omitempty"`
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// Model is an immutable, validated robot description.
type Model struct {
	name   string
	links  []Link
	joints []Joint
	groups map[string][]string
	root   string
	index  map[string]int
}

type document struct {
	Name   string              `yaml:"name"`
	Links  []Link              `yaml:"links"`
	Joints []Joint             `yaml:"joints,omitempty"`
	Groups map[string][]string `yaml:"groups,omitempty"`
}

// Parse decodes and validates a YAML robot description.
func Parse(data []byte) (*Model, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse robot description: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Model, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("robot description has no name")
	}
	if len(doc.Links) == 0 {
		return nil, fmt.Errorf("robot %q has no links", doc.Name)
	}

	m := &Model{
		name:   doc.Name,
		links:  doc.Links,
		joints: doc.Joints,
		groups: make(map[string][]string, len(doc.Groups)),
		index:  make(map[string]int, len(doc.Links)),
	}
	for i, l := range doc.Links {
		if l.Name == "" {
			return nil, fmt.Errorf("robot %q: link %d has no name", doc.Name, i)
		}
		if _, dup := m.index[l.Name]; dup {
			return nil, fmt.Errorf("robot %q: duplicate link %q", doc.Name, l.Name)
		}
		m.index[l.Name] = i
	}

	hasParent := make(map[string]string, len(doc.Joints))
	for _, j := range doc.Joints {
		for _, end := range []string{j.Parent, j.Child} {
			if _, ok := m.index[end]; !ok {
				return nil, fmt.Errorf("robot %q: joint %q references unknown link %q", doc.Name, j.Name, end)
			}
		}
		if prev, ok := hasParent[j.Child]; ok {
			return nil, fmt.Errorf("robot %q: link %q has two parent joints (%q, %q)", doc.Name, j.Child, prev, j.Name)
		}
		hasParent[j.Child] = j.Name
	}

	var roots []string
	for _, l := range doc.Links {
		if _, ok := hasParent[l.Name]; !ok {
			roots = append(roots, l.Name)
		}
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("robot %q: expected one root link, found %d %v", doc.Name, len(roots), roots)
	}
	m.root = roots[0]

	for g, members := range doc.Groups {
		for _, l := range members {
			if _, ok := m.index[l]; !ok {
				return nil, fmt.Errorf("robot %q: group %q references unknown link %q", doc.Name, g, l)
			}
		}
		m.groups[g] = append([]string(nil), members...)
	}
	return m, nil
}

// Name returns the robot name.
func (m *Model) Name() string { return m.name }

// RootLinkName returns the link that has no parent joint.
func (m *Model) RootLinkName() string { return m.root }

// HasLink reports whether the model defines the link.
func (m *Model) HasLink(name string) bool {
	_, ok := m.index[name]
	return ok
}

// LinkNames returns every link name in declaration order.
func (m *Model) LinkNames() []string {
	out := make([]string, len(m.links))
	for i, l := range m.links {
		out[i] = l.Name
	}
	return out
}

// LinkNamesWithCollisionGeometry returns the links that carry collision or
// visual geometry, in declaration order.
func (m *Model) LinkNamesWithCollisionGeometry() []string {
	var out []string
	for _, l := range m.links {
		if l.Collision || l.Visual {
			out = append(out, l.Name)
		}
	}
	return out
}

// Group returns the member links of a named group.
func (m *Model) Group(name string) ([]string, bool) {
	members, ok := m.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), members...), true
}

// GroupNames returns the sorted group names.
func (m *Model) GroupNames() []string {
	out := make([]string, 0, len(m.groups))
	for g := range m.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Links returns a copy of the link table.
func (m *Model) Links() []Link {
	return append([]Link(nil), m.links...)
}

// Joints returns a copy of the joint table.
func (m *Model) Joints() []Joint {
	return append([]Joint(nil), m.joints...)
}

// Description re-encodes the model as a YAML robot description.
func (m *Model) Description() ([]byte, error) {
	return yaml.Marshal(document{
		Name:   m.name,
		Links:  m.links,
		Joints: m.joints,
		Groups: m.groups,
	})
}
