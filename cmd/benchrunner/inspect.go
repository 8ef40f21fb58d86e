package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/wasm"
)

// Import states shown by inspect.
const (
	importResolved   = "resolved"
	importMissing    = "missing"
	importMismatched = "mismatched"
)

func (a *app) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [path]",
		Short: "Describe a WebAssembly binary and check its imports against the host",
		Args:  pathArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.binaryPath(args)
			if err != nil {
				return err
			}
			data, err := bench.LoadBytecode(path)
			if err != nil {
				return err
			}
			m, err := wasm.Parse(data)
			if err != nil {
				kind := errors.KindValidationFailed
				if wasm.IsMalformed(err) {
					kind = errors.KindMalformed
				}
				e := errors.Compile(kind, err)
				e.Path = path
				return e
			}
			if err := writeInspect(cmd.OutOrStdout(), path, m); err != nil {
				return outputError("write inspection", err)
			}
			return nil
		},
	}
}

func writeInspect(w io.Writer, path string, m *wasm.Module) error {
	tree := treeprint.NewWithRoot(filepath.Base(path))

	sections := tree.AddBranch(fmt.Sprintf("sections (%d)", len(m.Sections)))
	custom := 0
	for _, s := range m.Sections {
		name := wasm.SectionName(s.ID)
		if s.ID == wasm.SectionCustom && custom < len(m.CustomSections) {
			name = fmt.Sprintf("custom %q", m.CustomSections[custom])
			custom++
		}
		sections.AddNode(fmt.Sprintf("%s @%d, %d bytes", name, s.Offset, s.Size))
	}

	unresolved := 0
	imports := tree.AddBranch(fmt.Sprintf("imports (%d)", len(m.Imports)))
	modules := map[string]treeprint.Tree{}
	for _, imp := range m.Imports {
		branch, ok := modules[imp.Module]
		if !ok {
			branch = imports.AddBranch(imp.Module)
			modules[imp.Module] = branch
		}
		state, reason := importState(m, imp)
		if state != importResolved {
			unresolved++
		}
		label := imp.Name + " " + wasm.KindName(imp.Kind)
		if sig := importSignature(m, imp); sig != "" {
			label += " " + sig
		}
		if reason != "" {
			label += ": " + reason
		}
		branch.AddMetaNode(state, label)
	}

	exports := tree.AddBranch(fmt.Sprintf("exports (%d)", len(m.Exports)))
	for _, exp := range m.Exports {
		label := exp.Name + " " + wasm.KindName(exp.Kind)
		if exp.Kind == wasm.KindFunc {
			if sig, ok := m.FuncSignature(exp.Idx); ok {
				label += " " + sig.String()
			}
		}
		exports.AddNode(label)
	}

	summary := resultStyle.Render("all imports resolved")
	if unresolved > 0 {
		summary = errorStyle.Render(fmt.Sprintf("%d unresolved import(s)", unresolved))
	}
	entry := errorStyle.Render("no " + engine.DefaultEntry)
	if _, ok := m.ExportedFunc(engine.DefaultEntry); ok {
		entry = funcStyle.Render(engine.DefaultEntry)
	}
	abi := "no WASI imports"
	if m.ImportsFrom(engine.WASIModule) {
		abi = "WASI preview1"
	}

	_, err := fmt.Fprintf(w, "%s %s (%d bytes)\n%s%s, entry %s, %s\n",
		titleStyle.Render("inspect"), path, m.Size, tree.String(), summary, entry, typeStyle.Render(abi))
	return err
}

func importState(m *wasm.Module, imp wasm.Import) (state, reason string) {
	unresolved, ok := engine.ResolveImport(m, imp)
	switch {
	case ok:
		return importResolved, ""
	case unresolved.Reason == "":
		return importMissing, ""
	default:
		return importMismatched, unresolved.Reason
	}
}

func importSignature(m *wasm.Module, imp wasm.Import) string {
	if imp.Kind != wasm.KindFunc || m.TypesIncomplete || int(imp.TypeIdx) >= len(m.Types) {
		return ""
	}
	return m.Types[imp.TypeIdx].String()
}
