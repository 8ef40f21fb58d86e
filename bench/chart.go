package bench

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders an HTML line chart of per-iteration phase timings.
func WriteChart(w io.Writer, res *Result) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "benchrunner: " + filepath.Base(res.Path),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s (%s)", filepath.Base(res.Path), res.Mode),
			Subtitle: fmt.Sprintf("%s, %s, %d iterations", res.Engine, res.Compiler, res.Iterations),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)

	x := make([]string, len(res.Samples))
	for i, s := range res.Samples {
		x[i] = strconv.Itoa(s.Iteration)
	}
	symbols := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)})
	line.SetXAxis(x).
		AddSeries("compile", lineData(res.Samples, func(s Sample) time.Duration { return s.Compile }), symbols)
	if res.Mode == ModeExecute {
		line.AddSeries("instantiate", lineData(res.Samples, func(s Sample) time.Duration { return s.Instantiate }), symbols).
			AddSeries("execute", lineData(res.Samples, func(s Sample) time.Duration { return s.Execute }), symbols)
	}

	return line.Render(w)
}

func lineData(samples []Sample, pick func(Sample) time.Duration) []opts.LineData {
	out := make([]opts.LineData, len(samples))
	for i, v := range phase(samples, pick) {
		out[i] = opts.LineData{Value: v}
	}
	return out
}
