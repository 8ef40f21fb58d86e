package bench_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/internal/testwasm"
)

func writeSuite(t *testing.T, members map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range members {
		dir := filepath.Join(root, name)
		require.NoError(t, os.Mkdir(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, bench.SuiteFile), data, 0o644))
	}
	return root
}

func TestFindSuite(t *testing.T) {
	root := writeSuite(t, map[string][]byte{
		"shootout-fib2": testwasm.Empty,
		"bz2":           testwasm.Add,
	})
	// ignored: no benchmark.wasm, a stray file, a benchmark.wasm directory
	require.NoError(t, os.Mkdir(filepath.Join(root, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "odd", bench.SuiteFile), 0o755))

	suite, err := bench.FindSuite(root)
	require.NoError(t, err)
	require.Len(t, suite, 2)
	assert.Equal(t, "bz2", suite[0].Name)
	assert.Equal(t, filepath.Join(root, "bz2", bench.SuiteFile), suite[0].Path)
	assert.Equal(t, "shootout-fib2", suite[1].Name)
}

func TestFindSuite_NotASuite(t *testing.T) {
	suite, err := bench.FindSuite(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, suite)

	_, err = bench.FindSuite(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFile)
}

func TestResult_ID(t *testing.T) {
	res := sampleResult(bench.ModeCompile)
	assert.Equal(t, "compile:add.wasm/41 bytes", res.ID())

	res.Name = "pulldown-cmark"
	assert.Equal(t, "compile:pulldown-cmark/41 bytes", res.ID())
}

func TestWriteSuiteText(t *testing.T) {
	a := sampleResult(bench.ModeExecute)
	a.Name = "bz2"
	b := sampleResult(bench.ModeExecute)
	b.Name = "shootout-fib2"

	var buf bytes.Buffer
	require.NoError(t, bench.WriteSuiteText(&buf, []*bench.Result{a, b}))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Execution took: "))
	assert.Contains(t, out, "Benchmark: execute:bz2/41 bytes\nCompiler: compiler\n")
	assert.Contains(t, out, "\n\nBenchmark: execute:shootout-fib2/41 bytes\n")
}

func TestWriteSuiteJSON(t *testing.T) {
	a := sampleResult(bench.ModeCompile)
	a.Name = "bz2"

	var buf bytes.Buffer
	require.NoError(t, bench.WriteSuiteJSON(&buf, []*bench.Result{a, sampleResult(bench.ModeCompile)}))

	var doc []struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc, 2)
	assert.Equal(t, "bz2", doc[0].Name)
	assert.Empty(t, doc[1].Name)
}

func TestWriteSuiteChart(t *testing.T) {
	a := sampleResult(bench.ModeExecute)
	a.Name = "bz2"

	var buf bytes.Buffer
	require.NoError(t, bench.WriteSuiteChart(&buf, []*bench.Result{a}))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "bz2")
	assert.Contains(t, html, "execute")
}
