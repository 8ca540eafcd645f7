package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
)

const armDescription = `
name: arm
links:
  - {name: base_link, visual: true, collision: true}
  - {name: link1, visual: true, collision: true}
  - {name: link2, visual: true}
joints:
  - {name: j1, parent: base_link, child: link1}
  - {name: j2, parent: link1, child: link2}
groups:
  manipulator: [link1, link2]
`

func testModel(t *testing.T) *kinematic.Model {
	t.Helper()
	m, err := kinematic.Parse([]byte(armDescription))
	require.NoError(t, err)
	return m
}

func strPtr(s string) *string { return &s }

func box(id string) Object {
	return Object{ID: id, Pose: geom.Identity(), Shape: Shape{Kind: "box", Dimensions: []float64{1, 1, 1}}}
}

func TestNew_Defaults(t *testing.T) {
	s := New("(noname)", testModel(t))

	assert.True(t, s.IsConfigured())
	assert.Equal(t, "base_link", s.PlanningFrame())
	p, ok := s.CurrentState().LinkPose("link2")
	assert.True(t, ok)
	assert.True(t, p.IsIdentity())

	unconfigured := New("empty", nil)
	assert.False(t, unconfigured.IsConfigured())
	_, err := unconfigured.Apply(Update{Name: strPtr("x")})
	assert.Error(t, err)
}

func TestApply_Incremental(t *testing.T) {
	s := New("scene", testModel(t))

	kind, err := s.Apply(Update{AddObjects: []Object{box("b"), box("a")}})
	require.NoError(t, err)
	assert.Equal(t, UpdateGeometry, kind)
	assert.Equal(t, "a", s.Objects()[0].ID)

	moved := geom.Identity()
	moved.Position.X = 1
	kind, err = s.Apply(Update{LinkPoses: map[string]geom.Pose{"link1": moved}, RemoveObjects: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, UpdateState|UpdateGeometry, kind)
	assert.Len(t, s.Objects(), 1)
	p, _ := s.CurrentState().LinkPose("link1")
	assert.Equal(t, 1.0, p.Position.X)
	assert.Equal(t, uint64(2), s.Version())
}

func TestApply_FullReplacesWorld(t *testing.T) {
	s := New("scene", testModel(t))
	_, err := s.Apply(Update{AddObjects: []Object{box("old")}, Attach: []AttachedBody{{ID: "tool", Link: "link2", Pose: geom.Identity(), Shape: Shape{Kind: "sphere", Dimensions: []float64{0.1}}}}})
	require.NoError(t, err)

	kind, err := s.Apply(Update{Full: true, Name: strPtr("kitchen"), PlanningFrame: strPtr("world"), AddObjects: []Object{box("new")}})
	require.NoError(t, err)

	assert.Equal(t, UpdateScene, kind)
	assert.Equal(t, "kitchen", s.Name())
	assert.Equal(t, "world", s.PlanningFrame())
	require.Len(t, s.Objects(), 1)
	assert.Equal(t, "new", s.Objects()[0].ID)
	assert.Empty(t, s.AttachedBodies())
}

func TestApply_RejectsInvalidAtomically(t *testing.T) {
	bad := geom.Identity()
	bad.Orientation.Real = 0

	tests := []struct {
		name string
		u    Update
	}{
		{"unknown link pose", Update{LinkPoses: map[string]geom.Pose{"wheel": geom.Identity()}}},
		{"bad link pose", Update{LinkPoses: map[string]geom.Pose{"link1": bad}}},
		{"empty frame", Update{PlanningFrame: strPtr("")}},
		{"object without id", Update{AddObjects: []Object{{Pose: geom.Identity(), Shape: Shape{Kind: "sphere", Dimensions: []float64{1}}}}}},
		{"bad shape", Update{AddObjects: []Object{{ID: "x", Pose: geom.Identity(), Shape: Shape{Kind: "box", Dimensions: []float64{1}}}}}},
		{"unknown shape", Update{AddObjects: []Object{{ID: "x", Pose: geom.Identity(), Shape: Shape{Kind: "torus"}}}}},
		{"mesh without resource", Update{AddObjects: []Object{{ID: "x", Pose: geom.Identity(), Shape: Shape{Kind: "mesh"}}}}},
		{"bad color", Update{AddObjects: []Object{{ID: "x", Pose: geom.Identity(), Shape: Shape{Kind: "sphere", Dimensions: []float64{1}}, Color: &geom.Color{R: 3}}}}},
		{"attach to unknown link", Update{Attach: []AttachedBody{{ID: "t", Link: "nope", Pose: geom.Identity(), Shape: Shape{Kind: "sphere", Dimensions: []float64{1}}}}}},
		{"transform without child", Update{Transforms: []FrameTransform{{Parent: "map", Pose: geom.Identity()}}}},
		{"transform to itself", Update{Transforms: []FrameTransform{{Parent: "map", Child: "map", Pose: geom.Identity()}}}},
		{"bad transform pose", Update{Transforms: []FrameTransform{{Parent: "map", Child: "world", Pose: bad}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("scene", testModel(t))
			tt.u.Name = strPtr("renamed")

			_, err := s.Apply(tt.u)
			assert.Error(t, err)
			assert.Equal(t, "scene", s.Name())
			assert.Equal(t, uint64(0), s.Version())
		})
	}
}

func TestUpdateKind_String(t *testing.T) {
	assert.Equal(t, "none", UpdateNone.String())
	assert.Equal(t, "scene", UpdateScene.String())
	assert.Equal(t, "state|geometry", (UpdateState | UpdateGeometry).String())
}

func TestApply_TransformsAreForwardedNotStored(t *testing.T) {
	s := New("scene", testModel(t))
	u := Update{Transforms: []FrameTransform{{Parent: "map", Child: "base_link", Pose: geom.Identity()}}}
	assert.Equal(t, UpdateTransforms, u.Kind())

	kind, err := s.Apply(u)
	require.NoError(t, err)
	assert.Equal(t, UpdateTransforms, kind)
	assert.Equal(t, "base_link", s.PlanningFrame())
	assert.Equal(t, uint64(1), s.Version())
}
