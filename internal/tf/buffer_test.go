package tf

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func translate(x, y, z float64) geom.Pose {
	return geom.NewPose(x, y, z, r3.Vec{}, 0)
}

// world <- odom <- base_link, world <- map (static)
func newTree(t *testing.T) *Buffer {
	t.Helper()
	b := NewBuffer(0)
	require.NoError(t, b.SetTransform(StampedTransform{Parent: "world", Child: "odom", Stamp: t0, Transform: translate(1, 0, 0)}))
	require.NoError(t, b.SetTransform(StampedTransform{Parent: "world", Child: "odom", Stamp: t0.Add(time.Second), Transform: translate(3, 0, 0)}))
	require.NoError(t, b.SetTransform(StampedTransform{Parent: "odom", Child: "base_link", Stamp: t0.Add(500 * time.Millisecond), Transform: translate(0, 2, 0)}))
	require.NoError(t, b.SetStaticTransform(StampedTransform{Parent: "world", Child: "map", Transform: translate(0, 0, 5)}))
	return b
}

func TestLatestCommonTime(t *testing.T) {
	b := newTree(t)

	tests := []struct {
		name           string
		target, source string
		want           time.Time
	}{
		{"same frame", "odom", "odom", time.Time{}},
		{"single dynamic link", "world", "odom", t0.Add(time.Second)},
		{"chain takes the oldest latest", "world", "base_link", t0.Add(500 * time.Millisecond)},
		{"static branch does not constrain", "map", "odom", t0.Add(time.Second)},
		{"all static", "world", "map", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.LatestCommonTime(tt.target, tt.source)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestLatestCommonTime_Errors(t *testing.T) {
	b := newTree(t)
	require.NoError(t, b.SetStaticTransform(StampedTransform{Parent: "island", Child: "rock", Transform: geom.Identity()}))

	_, err := b.LatestCommonTime("world", "nowhere")
	assert.True(t, errors.Is(err, ErrUnknownFrame))

	_, err = b.LatestCommonTime("world", "rock")
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestTransformPose_Interpolates(t *testing.T) {
	b := newTree(t)

	in := StampedPose{Frame: "odom", Stamp: t0.Add(500 * time.Millisecond), Pose: geom.Identity()}
	out, err := b.TransformPose("world", in)
	require.NoError(t, err)

	assert.Equal(t, "world", out.Frame)
	assert.InDelta(t, 2.0, out.Pose.Position.X, 1e-9)
}

func TestTransformPose_AcrossBranches(t *testing.T) {
	b := newTree(t)

	in := StampedPose{Frame: "base_link", Stamp: t0.Add(500 * time.Millisecond), Pose: geom.Identity()}
	out, err := b.TransformPose("map", in)
	require.NoError(t, err)

	// base_link in world is (2, 2, 0); map sits at z=5
	assert.InDelta(t, 2.0, out.Pose.Position.X, 1e-9)
	assert.InDelta(t, 2.0, out.Pose.Position.Y, 1e-9)
	assert.InDelta(t, -5.0, out.Pose.Position.Z, 1e-9)
}

func TestTransformPose_Rotation(t *testing.T) {
	b := NewBuffer(time.Second)
	require.NoError(t, b.SetStaticTransform(StampedTransform{
		Parent:    "fixed",
		Child:     "scene",
		Transform: geom.NewPose(1, 0, 0, r3.Vec{Z: 1}, math.Pi/2),
	}))

	p := StampedPose{Frame: "scene", Pose: translate(1, 0, 0)}
	out, err := b.TransformPose("fixed", p)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.Pose.Position.X, 1e-9)
	assert.InDelta(t, 1.0, out.Pose.Position.Y, 1e-9)
}

func TestCanTransform_Extrapolation(t *testing.T) {
	b := newTree(t)

	assert.True(t, b.CanTransform("world", "odom", t0.Add(200*time.Millisecond)))
	assert.False(t, b.CanTransform("world", "odom", t0.Add(2*time.Second)))
	assert.False(t, b.CanTransform("world", "base_link", t0))

	_, err := b.LookupTransform("world", "odom", t0.Add(-time.Second))
	assert.True(t, errors.Is(err, ErrExtrapolation))
}

func TestSetTransform_Validation(t *testing.T) {
	b := NewBuffer(0)

	assert.Error(t, b.SetTransform(StampedTransform{Child: "a", Stamp: t0, Transform: geom.Identity()}))
	assert.Error(t, b.SetTransform(StampedTransform{Parent: "a", Child: "a", Stamp: t0, Transform: geom.Identity()}))
	assert.Error(t, b.SetTransform(StampedTransform{Parent: "a", Child: "b", Transform: geom.Identity()}))
	assert.Error(t, b.SetTransform(StampedTransform{Parent: "a", Child: "b", Stamp: t0}))
}

func TestSetTransform_PrunesHistory(t *testing.T) {
	b := NewBuffer(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.SetTransform(StampedTransform{
			Parent: "world", Child: "odom",
			Stamp:     t0.Add(time.Duration(i) * time.Second),
			Transform: translate(float64(i), 0, 0),
		}))
	}

	assert.False(t, b.CanTransform("world", "odom", t0.Add(2*time.Second)))
	assert.True(t, b.CanTransform("world", "odom", t0.Add(3*time.Second)))
}

func TestSetTransform_Reparent(t *testing.T) {
	b := newTree(t)
	require.NoError(t, b.SetStaticTransform(StampedTransform{Parent: "map", Child: "odom", Transform: translate(0, 0, 1)}))

	out, err := b.LookupTransform("world", "odom", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, out.Position.Z, 1e-9)
	assert.InDelta(t, 0.0, out.Position.X, 1e-9)
}

func TestFrames(t *testing.T) {
	b := newTree(t)
	assert.Equal(t, []string{"base_link", "map", "odom", "world"}, b.Frames())
}
