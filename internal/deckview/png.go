package deckview

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var kindColors = map[Kind]color.RGBA{
	KindFrame:     {R: 120, G: 120, B: 120, A: 255},
	KindSlot:      {R: 31, G: 119, B: 180, A: 255},
	KindContainer: {R: 255, G: 127, B: 14, A: 255},
	KindWell:      {R: 44, G: 160, B: 44, A: 255},
	KindPipette:   {R: 214, G: 39, B: 40, A: 255},
}

var kindShapes = map[Kind]draw.GlyphDrawer{
	KindFrame:     draw.CrossGlyph{},
	KindSlot:      draw.BoxGlyph{},
	KindContainer: draw.SquareGlyph{},
	KindWell:      draw.CircleGlyph{},
	KindPipette:   draw.TriangleGlyph{},
}

const (
	pngWidth  = 10 * vg.Inch
	pngHeight = 8 * vg.Inch
)

func newPlot(nodes []Node) (*plot.Plot, error) {
	lo, hi := zRange(nodes)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Deck Map (%d nodes, z %.1f to %.1f mm)", len(nodes), lo, hi)
	p.X.Label.Text = "X (mm)"
	p.Y.Label.Text = "Y (mm)"
	p.Add(plotter.NewGrid())

	groups := byKind(nodes)
	for _, k := range Kinds {
		group := groups[k]
		if len(group) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(group))
		for _, n := range group {
			pts = append(pts, plotter.XY{X: n.X, Y: n.Y})
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = kindColors[k]
		s.GlyphStyle.Shape = kindShapes[k]
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(string(k), s)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePNG saves a top-down scatter of nodes to path.
func WritePNG(path string, nodes []Node) error {
	p, err := newPlot(nodes)
	if err != nil {
		return err
	}
	if err := p.Save(pngWidth, pngHeight, path); err != nil {
		return fmt.Errorf("failed to save deck map: %w", err)
	}
	return nil
}

// EncodePNG writes the same picture as WritePNG to w.
func EncodePNG(w io.Writer, nodes []Node) error {
	p, err := newPlot(nodes)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(pngWidth, pngHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
