package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/wippyai/wasm-bench/errors"
)

// SuiteFile is the binary each benchmark directory of a suite holds, as in
// sightglass's benchmarks-next layout.
const SuiteFile = "benchmark.wasm"

// Benchmark is one member of a suite.
type Benchmark struct {
	Name string // directory name
	Path string // path of its SuiteFile
}

// FindSuite lists the immediate subdirectories of dir that hold a regular
// SuiteFile, sorted by name. An empty list means dir is not a suite.
func FindSuite(dir string) ([]Benchmark, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.File(dir, err)
	}
	var suite []Benchmark
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), SuiteFile)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		suite = append(suite, Benchmark{Name: entry.Name(), Path: path})
	}
	return suite, nil
}

// ID identifies a result as "<mode>:<name>/<size> bytes". Results of runs
// without a name use the binary's file name.
func (r *Result) ID() string {
	name := r.Name
	if name == "" {
		name = filepath.Base(r.Path)
	}
	return fmt.Sprintf("%s:%s/%d bytes", r.Mode, name, r.Size)
}

// WriteSuiteText writes one text report per result, each headed by its ID.
func WriteSuiteText(w io.Writer, results []*Result) error {
	for i, res := range results {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "Benchmark: %s\n", res.ID()); err != nil {
			return err
		}
		if err := WriteText(w, res); err != nil {
			return err
		}
	}
	return nil
}

// WriteSuiteJSON writes results as one JSON array.
func WriteSuiteJSON(w io.Writer, results []*Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// WriteSuiteChart renders an HTML bar chart of mean phase timings per
// benchmark.
func WriteSuiteChart(w io.Writer, results []*Result) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "benchrunner suite"}),
		charts.WithTitleOpts(opts.Title{Title: "mean time per benchmark"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)

	names := make([]string, len(results))
	compile := make([]opts.BarData, len(results))
	execute := make([]opts.BarData, len(results))
	var executed bool
	for i, res := range results {
		names[i] = res.Name
		if names[i] == "" {
			names[i] = filepath.Base(res.Path)
		}
		compile[i] = opts.BarData{Value: res.Compile.Mean}
		if res.Execute != nil {
			executed = true
			execute[i] = opts.BarData{Value: res.Execute.Mean}
		}
	}
	bar.SetXAxis(names).AddSeries("compile", compile)
	if executed {
		bar.AddSeries("execute", execute)
	}
	return bar.Render(w)
}
