// Package render is an in-memory scene graph with a robot model and a
// planning scene renderer. It records what would be drawn as a Frame and
// can plot a frame top-down to PNG.
package render

import (
	"sync"

	"github.com/banshee-data/sceneview/internal/geom"
)

// Node is a scene graph node with a pose relative to its parent.
type Node struct {
	name   string
	parent *Node

	mu       sync.RWMutex
	pose     geom.Pose
	visible  bool
	children []*Node
}

// NewNode returns a visible root node at the identity pose.
func NewNode(name string) *Node {
	return &Node{name: name, pose: geom.Identity(), visible: true}
}

// NewChild attaches a new visible child node.
func (n *Node) NewChild(name string) *Node {
	c := NewNode(name)
	c.parent = n
	n.mu.Lock()
	n.children = append(n.children, c)
	n.mu.Unlock()
	return c
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// SetPose sets the pose relative to the parent.
func (n *Node) SetPose(p geom.Pose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pose = p
}

// Pose returns the pose relative to the parent.
func (n *Node) Pose() geom.Pose {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pose
}

// SetVisible shows or hides the node and its subtree.
func (n *Node) SetVisible(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = v
}

// Visible reports the node's own flag.
func (n *Node) Visible() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.visible
}

// Shown reports whether the node and all its ancestors are visible.
func (n *Node) Shown() bool {
	for c := n; c != nil; c = c.parent {
		if !c.Visible() {
			return false
		}
	}
	return true
}

// WorldPose composes poses from the root down to n.
func (n *Node) WorldPose() geom.Pose {
	p := n.Pose()
	for c := n.parent; c != nil; c = c.parent {
		p = c.Pose().Compose(p)
	}
	return p
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*Node(nil), n.children...)
}
