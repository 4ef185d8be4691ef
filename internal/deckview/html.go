package deckview

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func seriesOpts(k Kind) charts.SeriesOpts {
	switch k {
	case KindWell:
		return charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4})
	case KindContainer:
		return charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10})
	case KindSlot:
		return charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14})
	default:
		return charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12})
	}
}

// RenderHTML writes a go-echarts page with a top-down scatter of nodes,
// one series per kind, coloured by Z. assetsHost may be empty for the
// go-echarts default.
func RenderHTML(w io.Writer, nodes []Node, assetsHost string) error {
	lo, hi := zRange(nodes)

	scatter := charts.NewScatter()
	init := opts.Initialization{PageTitle: "Deck Map", Theme: "dark", Width: "900px", Height: "700px"}
	if assetsHost != "" {
		init.AssetsHost = assetsHost
	}
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: "Deck Map", Subtitle: fmt.Sprintf("nodes=%d z=[%.1f, %.1f] mm", len(nodes), lo, hi)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (mm)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	groups := byKind(nodes)
	for _, k := range Kinds {
		group := groups[k]
		if len(group) == 0 {
			continue
		}
		data := make([]opts.ScatterData, 0, len(group))
		for _, n := range group {
			data = append(data, opts.ScatterData{Name: n.Label, Value: []interface{}{n.X, n.Y, n.Z}})
		}
		scatter.AddSeries(string(k), data, seriesOpts(k))
	}

	return scatter.Render(w)
}
