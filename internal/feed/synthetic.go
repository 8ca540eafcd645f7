package feed

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/scene"
)

// SyntheticGenerator produces a plausible stream of scene updates for a
// robot model: one full update, then link motion with a payload that is
// periodically attached to and detached from the last link.
type SyntheticGenerator struct {
	model *kinematic.Model
	step  int

	// Configuration
	SceneName     string
	PlanningFrame string
	ObjectCount   int     // world boxes placed on a ring
	RingRadius    float64 // metres
	LinkSpacing   float64 // metres between consecutive links
	AngleStep     float64 // radians of joint motion per update
	AttachEvery   int     // updates between payload attach/detach toggles

	rng *rand.Rand
}

// NewSyntheticGenerator returns a generator for model. seed fixes the
// object layout.
func NewSyntheticGenerator(model *kinematic.Model, seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		model:         model,
		SceneName:     "synthetic",
		PlanningFrame: "world",
		ObjectCount:   4,
		RingRadius:    1.5,
		LinkSpacing:   0.3,
		AngleStep:     0.05,
		AttachEvery:   50,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Step returns how many updates have been produced.
func (g *SyntheticGenerator) Step() int { return g.step }

// Next returns the next update.
func (g *SyntheticGenerator) Next() scene.Update {
	defer func() { g.step++ }()
	if g.step == 0 {
		return g.full()
	}

	u := scene.Update{LinkPoses: g.linkPoses()}
	if g.AttachEvery > 0 && g.step%g.AttachEvery == 0 {
		if (g.step/g.AttachEvery)%2 == 1 {
			u.Attach = []scene.AttachedBody{g.payload()}
		} else {
			u.Detach = []string{"payload"}
		}
	}
	return u
}

func (g *SyntheticGenerator) full() scene.Update {
	name := g.SceneName
	frame := g.PlanningFrame
	u := scene.Update{
		Full:          true,
		Name:          &name,
		PlanningFrame: &frame,
		LinkPoses:     g.linkPoses(),
	}
	for i := 0; i < g.ObjectCount; i++ {
		theta := 2 * math.Pi * float64(i) / float64(g.ObjectCount)
		size := 0.2 + 0.3*g.rng.Float64()
		u.AddObjects = append(u.AddObjects, scene.Object{
			ID:    fmt.Sprintf("box_%d", i),
			Pose:  geom.NewPose(g.RingRadius*math.Cos(theta), g.RingRadius*math.Sin(theta), size/2, r3.Vec{Z: 1}, theta),
			Shape: scene.Shape{Kind: "box", Dimensions: []float64{size, size, size}},
		})
	}
	return u
}

// linkPoses stacks the links along a slowly swinging arm.
func (g *SyntheticGenerator) linkPoses() map[string]geom.Pose {
	links := g.model.LinkNames()
	angle := math.Sin(float64(g.step)*g.AngleStep) * math.Pi / 2
	poses := make(map[string]geom.Pose, len(links))
	for i, link := range links {
		reach := float64(i) * g.LinkSpacing
		poses[link] = geom.NewPose(reach*math.Cos(angle), reach*math.Sin(angle), 0.1*float64(i), r3.Vec{Z: 1}, angle)
	}
	return poses
}

func (g *SyntheticGenerator) payload() scene.AttachedBody {
	links := g.model.LinkNames()
	return scene.AttachedBody{
		ID:    "payload",
		Link:  links[len(links)-1],
		Pose:  geom.NewPose(0, 0, 0.05, r3.Vec{Z: 1}, 0),
		Shape: scene.Shape{Kind: "cylinder", Dimensions: []float64{0.1, 0.04}},
	}
}
