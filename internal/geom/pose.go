// Package geom holds the rigid-transform and colour types shared by the
// transform buffer, the scene model and the display core.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform: a rotation followed by a translation.
// Orientation is kept as a unit quaternion.
type Pose struct {
	Position    r3.Vec      `json:"position"`
	Orientation quat.Number `json:"orientation"`
}

// Identity returns the pose with no translation and no rotation.
func Identity() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// NewPose builds a pose from a translation and a rotation of angle radians
// about axis.
func NewPose(x, y, z float64, axis r3.Vec, angle float64) Pose {
	q := quat.Number{Real: 1}
	if angle != 0 && r3.Norm(axis) > 0 {
		q = quat.Number(r3.NewRotation(angle, axis))
	}
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Orientation: q}
}

// IsIdentity reports whether p is exactly the identity pose.
func (p Pose) IsIdentity() bool {
	return p == Identity()
}

// Apply maps point v from the pose's child frame into its parent frame.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(r3.Rotation(p.Orientation).Rotate(v), p.Position)
}

// Compose returns p∘q: the transform that applies q first, then p.
func (p Pose) Compose(q Pose) Pose {
	return Pose{
		Position:    p.Apply(q.Position),
		Orientation: normalize(quat.Mul(p.Orientation, q.Orientation)),
	}
}

// Inverse returns the transform undoing p.
func (p Pose) Inverse() Pose {
	inv := quat.Conj(p.Orientation)
	return Pose{
		Position:    r3.Scale(-1, r3.Rotation(inv).Rotate(p.Position)),
		Orientation: inv,
	}
}

// Validate rejects poses with non-finite components or a degenerate rotation.
func (p Pose) Validate() error {
	for _, v := range []float64{p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("pose has non-finite component")
		}
	}
	if n := quat.Abs(p.Orientation); math.Abs(n-1) > 1e-3 {
		return fmt.Errorf("orientation is not a unit quaternion (norm %.4f)", n)
	}
	return nil
}

// Interpolate blends a and b: linear in position, spherical in orientation.
// t=0 yields a, t=1 yields b.
func Interpolate(a, b Pose, t float64) Pose {
	return Pose{
		Position:    r3.Add(a.Position, r3.Scale(t, r3.Sub(b.Position, a.Position))),
		Orientation: slerp(a.Orientation, b.Orientation, t),
	}
}

func slerp(a, b quat.Number, t float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		// take the short way round
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}
	theta := math.Acos(dot)
	sin := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sin
	wb := math.Sin(t*theta) / sin
	return normalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
