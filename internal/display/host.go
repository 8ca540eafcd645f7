// Package display coordinates a live planning scene display: it decides
// when to redraw, guards the shared scene while drawing, keeps the scene
// anchored in the host's fixed frame and tracks per-link colour overrides.
//
// Rendering itself is delegated to the collaborators declared here.
package display

import (
	"time"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/scene"
	"github.com/banshee-data/sceneview/internal/tf"
)

// SceneSource is the lockable view of the update source used by the gate.
type SceneSource interface {
	Lock()
	Unlock()
	Scene() *scene.Scene
}

// UpdateSource is the update feed the display drives. *scene.Monitor
// satisfies it.
type UpdateSource interface {
	SceneSource
	Model() *kinematic.Model
	AddUpdateCallback(fn func(scene.UpdateKind))
	StartSceneMonitor(topic string) error
	StopSceneMonitor()
	Close()
}

// SourceFactory builds a fresh update source for a robot description
// parameter. name identifies the source in logs.
type SourceFactory func(robotDescription, name string) (UpdateSource, error)

// SceneRenderer draws a scene snapshot. It is only called with the scene
// lock held.
type SceneRenderer interface {
	RenderScene(s *scene.Scene, envColor, attachedColor geom.Color, sceneAlpha, robotAlpha float64) error
}

// RendererFactory builds a renderer drawing into the geometry node and robot.
type RendererFactory func(geometry SceneNode, robot Robot) SceneRenderer

// SceneNode is a node of the host's scene graph.
type SceneNode interface {
	SetPose(p geom.Pose)
	SetVisible(visible bool)
}

// Link is a renderable robot link.
type Link interface {
	SetColor(c geom.Color)
	UnsetColor()
}

// Robot is the host's renderable robot model.
type Robot interface {
	Load(model *kinematic.Model) error
	Update(state scene.RobotState)
	Clear()
	SetAlpha(alpha float64)
	SetVisible(visible bool)
	Link(name string) (Link, bool)
}

// TransformService answers frame queries for the anchor. *tf.Buffer
// satisfies it.
type TransformService interface {
	LatestCommonTime(target, source string) (time.Time, error)
	CanTransform(target, source string, at time.Time) bool
	TransformPose(target string, p tf.StampedPose) (tf.StampedPose, error)
}

// Host bundles the collaborators a Display is attached to.
type Host struct {
	// SceneNode carries the frame offset of everything the display draws.
	SceneNode SceneNode
	// GeometryNode is the child of SceneNode holding world geometry.
	GeometryNode SceneNode
	Robot        Robot
	Transforms   TransformService
	NewSource    SourceFactory
	NewRenderer  RendererFactory
	// FixedFrame is the host's initial reference frame.
	FixedFrame string
}
