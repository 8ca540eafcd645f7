package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sceneview/internal/geom"
)

const (
	snapshotWidth  = 8 * vg.Inch
	snapshotHeight = 8 * vg.Inch
	circleSegments = 24
)

// PlotSnapshot draws a frame top-down (XY plane of the planning frame).
// Boxes, spheres and cylinders are drawn as filled footprints, meshes and
// robot links as points.
func PlotSnapshot(f Frame) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s #%d", f.Scene, f.Seq)
	p.X.Label.Text = fmt.Sprintf("x [%s] (m)", f.PlanningFrame)
	p.Y.Label.Text = fmt.Sprintf("y [%s] (m)", f.PlanningFrame)
	p.Add(plotter.NewGrid())

	var linkPts plotter.XYs
	var linkColors []color.Color
	for _, it := range f.Items {
		if it.Kind == ItemLink || it.Shape.Kind == "mesh" || it.Shape.Kind == "" {
			linkPts = append(linkPts, plotter.XY{X: it.Pose.Position.X, Y: it.Pose.Position.Y})
			linkColors = append(linkColors, toNRGBA(it.Color, it.Alpha))
			continue
		}

		poly, err := plotter.NewPolygon(footprint(it))
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", it.Kind, it.ID, err)
		}
		poly.Color = toNRGBA(it.Color, it.Alpha)
		poly.LineStyle.Width = vg.Points(0.5)
		poly.LineStyle.Color = toNRGBA(it.Color, 1)
		p.Add(poly)
	}

	if len(linkPts) > 0 {
		sc, err := plotter.NewScatter(linkPts)
		if err != nil {
			return nil, fmt.Errorf("robot links: %w", err)
		}
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{Color: linkColors[i], Radius: vg.Points(3), Shape: draw.CircleGlyph{}}
		}
		p.Add(sc)
	}
	return p, nil
}

// WritePNG writes the snapshot of f as PNG.
func WritePNG(f Frame, w io.Writer) error {
	p, err := PlotSnapshot(f)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(snapshotWidth, snapshotHeight, "png")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// SavePNG writes the snapshot of f to path.
func SavePNG(f Frame, path string) error {
	p, err := PlotSnapshot(f)
	if err != nil {
		return err
	}
	if err := p.Save(snapshotWidth, snapshotHeight, path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// footprint returns the outline of an item projected onto the XY plane.
func footprint(it Item) plotter.XYs {
	var local []r3.Vec
	switch it.Shape.Kind {
	case "box":
		hx, hy := it.Shape.Dimensions[0]/2, it.Shape.Dimensions[1]/2
		local = []r3.Vec{{X: -hx, Y: -hy}, {X: hx, Y: -hy}, {X: hx, Y: hy}, {X: -hx, Y: hy}}
	default:
		// sphere [r], cylinder [h r]
		radius := it.Shape.Dimensions[len(it.Shape.Dimensions)-1]
		for i := 0; i < circleSegments; i++ {
			a := 2 * math.Pi * float64(i) / circleSegments
			local = append(local, r3.Vec{X: radius * math.Cos(a), Y: radius * math.Sin(a)})
		}
	}

	pts := make(plotter.XYs, len(local))
	for i, v := range local {
		w := it.Pose.Apply(v)
		pts[i] = plotter.XY{X: w.X, Y: w.Y}
	}
	return pts
}

func toNRGBA(c geom.Color, alpha float64) color.NRGBA {
	return color.NRGBA{
		R: channel(c.R),
		G: channel(c.G),
		B: channel(c.B),
		A: channel(alpha),
	}
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
