package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/engine"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type sampleMsg bench.Sample

type finishedMsg struct {
	res *bench.Result
	err error
}

type progressModel struct {
	bar      progress.Model
	title    string
	mode     bench.Mode
	total    int
	last     bench.Sample
	done     int
	cancel   context.CancelFunc
	finished bool
}

func newProgressModel(cfg bench.Config, e engine.Engine, cancel context.CancelFunc) *progressModel {
	return &progressModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		title:  fmt.Sprintf("%s %s (%s, %s)", cfg.Mode, filepath.Base(cfg.BinaryPath), e.Name(), e.TierName()),
		mode:   cfg.Mode,
		total:  cfg.Iterations,
		cancel: cancel,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 10), 60)

	case sampleMsg:
		m.last = bench.Sample(msg)
		m.done = m.last.Iteration

	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("benchrunner"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.done) / float64(m.total)))
	fmt.Fprintf(&b, " %d/%d\n", m.done, m.total)
	if m.done > 0 {
		b.WriteString(funcStyle.Render("compile"))
		b.WriteString(" ")
		b.WriteString(typeStyle.Render(fmt.Sprintf("%.3fms", bench.Millis(m.last.Compile))))
		if m.mode == bench.ModeExecute {
			b.WriteString("  ")
			b.WriteString(funcStyle.Render("execute"))
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(fmt.Sprintf("%.3fms", bench.Millis(m.last.Execute))))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q cancel"))
	b.WriteString("\n")
	return b.String()
}

// runWithProgress runs the benchmark on its own goroutine and renders each
// sample on w as it completes.
func runWithProgress(ctx context.Context, w io.Writer, e engine.Engine, cfg bench.Config, opts ...bench.Option) (*bench.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newProgressModel(cfg, e, cancel)
	p := tea.NewProgram(m, tea.WithOutput(w), tea.WithContext(ctx))

	opts = append(opts, bench.WithObserver(func(s bench.Sample) {
		p.Send(sampleMsg(s))
	}))
	finished := make(chan finishedMsg, 1)
	go func() {
		res, err := bench.NewRunner(e, opts...).Run(ctx, cfg)
		finished <- finishedMsg{res: res, err: err}
		p.Send(finishedMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		// killed by ctx; the runner result below decides the outcome
		cancel()
	}
	msg := <-finished
	return msg.res, msg.err
}
