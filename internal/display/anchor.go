package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/tf"
)

var (
	// ErrNoCommonTime means the two frames have no shared timestamp yet.
	ErrNoCommonTime = errors.New("no common time between frames")
	// ErrTransformFailed means a transform exists in principle but could
	// not be applied at the common time.
	ErrTransformFailed = errors.New("transform failed")
)

// FrameAnchor places the scene root node at the scene frame's pose in the
// host's fixed frame. A failed recomputation leaves the previous offset in
// effect; the node never snaps back to the origin.
type FrameAnchor struct {
	transforms TransformService
	node       SceneNode

	mu     sync.Mutex
	offset *geom.Pose // last good value, nil until the first success
}

// NewFrameAnchor returns an anchor driving node.
func NewFrameAnchor(transforms TransformService, node SceneNode) *FrameAnchor {
	return &FrameAnchor{transforms: transforms, node: node}
}

// Recompute looks up the scene frame in the fixed frame and applies it.
// The returned error is informational: the anchor state is unchanged on
// failure.
func (a *FrameAnchor) Recompute(fixedFrame, sceneFrame string) error {
	if a.transforms == nil {
		return fmt.Errorf("%w: no transform service", ErrTransformFailed)
	}

	stamp, err := a.transforms.LatestCommonTime(fixedFrame, sceneFrame)
	if err != nil {
		return fmt.Errorf("%w: %q and %q: %v", ErrNoCommonTime, fixedFrame, sceneFrame, err)
	}

	pose := tf.StampedPose{Frame: sceneFrame, Stamp: stamp, Pose: geom.Identity()}
	if !a.transforms.CanTransform(fixedFrame, sceneFrame, stamp) {
		return fmt.Errorf("%w: from frame %q to frame %q", ErrTransformFailed, sceneFrame, fixedFrame)
	}
	out, err := a.transforms.TransformPose(fixedFrame, pose)
	if err != nil {
		return fmt.Errorf("%w: from frame %q to frame %q: %v", ErrTransformFailed, sceneFrame, fixedFrame, err)
	}

	a.mu.Lock()
	p := out.Pose
	a.offset = &p
	a.mu.Unlock()

	if a.node != nil {
		a.node.SetPose(p)
	}
	return nil
}

// Offset returns the last successfully computed offset.
func (a *FrameAnchor) Offset() (geom.Pose, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offset == nil {
		return geom.Pose{}, false
	}
	return *a.offset, true
}
