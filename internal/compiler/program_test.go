package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/pathtree"
)

const themedSource = `
class: Base: [{content: {color: "red", size: 1}}]
class: Button: [
	{inherit: ["Base"], content: label: "ok"},
	{qualifier: theme: "dark", content: color: "black"},
	{qualifier: theme: "light", content: color: "white"},
]
context: {theme: "dark"}
domain: {theme: ["dark", "light"]}
`

func TestCompileSource(t *testing.T) {
	prog, errs := CompileSource("themed.cue", themedSource)
	require.Empty(t, errs)
	require.Len(t, prog.Classes, 2)
	assert.Equal(t, []map[string]ir.Value{{"theme": ir.String("dark")}}, prog.Context)
	assert.Equal(t, pathtree.Domains{"theme": {ir.String("dark"), ir.String("light")}}, prog.Domains)
	assert.Empty(t, Validate(prog))
}

func TestProgramBuildOptimized(t *testing.T) {
	prog, errs := CompileSource("themed.cue", themedSource)
	require.Empty(t, errs)

	tree, report := prog.Build("Button", true)
	assert.Empty(t, report.Errors)

	color, ok := tree.Lookup([]string{"color"})
	require.True(t, ok)
	infos := tree.Node(color).Infos
	require.Len(t, infos, 1, "the dark variant shadows the base color")
	assert.Equal(t, pathtree.Const{Value: ir.String("black")}, infos[0].Expr)
	assert.Empty(t, infos[0].Qualifiers)
	assert.Equal(t, `{theme@0:"dark"}`, infos[0].Eliminated.String())
}

func TestProgramBuildUnoptimized(t *testing.T) {
	prog, _ := CompileSource("themed.cue", themedSource)
	tree, _ := prog.Build("Button", false)
	color, _ := tree.Lookup([]string{"color"})
	assert.Len(t, tree.Node(color).Infos, 3)
}

func TestContextLevels(t *testing.T) {
	prog, errs := CompileSource("ctx.cue", `
		class: A: [{content: x: 1}]
		context: {"m@1": 2, n: "x"}
	`)
	require.Empty(t, errs)
	require.Len(t, prog.Context, 2)

	stack := prog.ContextStack()
	v, ok := stack.Lookup("m", 1)
	require.True(t, ok)
	assert.Equal(t, ir.Number(2), v)
	v, ok = stack.Lookup("n", 0)
	require.True(t, ok)
	assert.Equal(t, ir.String("x"), v)
	_, ok = stack.Lookup("m", 0)
	assert.False(t, ok)
}

func TestCompileSourceCollectsErrors(t *testing.T) {
	prog, errs := CompileSource("bad.cue", `
		class: Good: [{content: x: 1}]
		class: Bad: [{nope: 1}]
		domain: {m: 3}
	`)
	require.Len(t, errs, 2)
	assert.Len(t, prog.Classes, 1)
	assert.Contains(t, errs[0].Error(), "class Bad")
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, errs := CompileSource("broken.cue", `class: A: [`)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken.cue")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ui.cue"), []byte("package ui\n"+themedSource), 0o644))

	prog, errs := LoadDir(dir)
	require.Empty(t, errs)
	assert.Equal(t, 1, prog.FileCount)
	assert.Len(t, prog.Classes, 2)
}

func TestLoadDirErrors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)

	_, errs = LoadDir(t.TempDir())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}
