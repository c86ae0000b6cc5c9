package compiler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/pathtree"
	"github.com/roach88/cdlcore/internal/qualifier"
)

// Program is everything read from one CUE package: class definitions, the
// constant context and the value domains of qualifier attributes.
type Program struct {
	Classes []*pathtree.Class
	// Context holds known constants per level; Context[0] is level 0.
	Context []map[string]ir.Value
	Domains pathtree.Domains
	// FileCount is the number of CUE files loaded (0 for in-memory source).
	FileCount int
}

// Load error codes (E001-E099).
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
)

// LoadError is a failure to read or build CUE input.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads the CUE package in dir and compiles it. Compilation errors
// are collected rather than returned on the first one.
func LoadDir(dir string) (*Program, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	prog, errs := CompileValue(value)
	prog.FileCount = len(cueFiles)
	slog.Debug("loaded CUE package", "dir", dir, "files", len(cueFiles), "classes", len(prog.Classes))
	return prog, errs
}

// CompileSource compiles CUE source held in memory. filename is used in
// error positions.
func CompileSource(filename, src string) (*Program, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return CompileValue(v)
}

// CompileValue extracts classes, context and domains from a built CUE
// value. A failing class is reported and skipped.
func CompileValue(v cue.Value) (*Program, []error) {
	prog := &Program{Domains: pathtree.Domains{}}
	var errs []error

	if classes := v.LookupPath(cue.ParsePath("class")); classes.Exists() {
		iter, err := classes.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				c, err := CompileClass(iter.Value())
				if err != nil {
					errs = append(errs, fmt.Errorf("class %s: %w", iter.Label(), err))
					continue
				}
				prog.Classes = append(prog.Classes, c)
			}
		}
	}

	if cv := v.LookupPath(cue.ParsePath("context")); cv.Exists() {
		ctx, err := CompileContext(cv)
		if err != nil {
			errs = append(errs, err)
		} else {
			prog.Context = ctx
		}
	}

	if dv := v.LookupPath(cue.ParsePath("domain")); dv.Exists() {
		domains, err := CompileDomains(dv)
		if err != nil {
			errs = append(errs, err)
		} else {
			prog.Domains = domains
		}
	}

	if len(prog.Classes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no classes found"})
	}
	return prog, errs
}

// CompileContext reads the constant context: a struct of "attr" or
// "attr@level" labels to concrete values.
func CompileContext(v cue.Value) ([]map[string]ir.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var frames []map[string]ir.Value
	for iter.Next() {
		attr, level, err := ParseSlot(iter.Label())
		if err != nil {
			return nil, &CompileError{Field: "context", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		val, err := ValueOf(iter.Value())
		if err != nil {
			return nil, err
		}
		for len(frames) <= level {
			frames = append(frames, map[string]ir.Value{})
		}
		frames[level][attr] = val
	}
	return frames, nil
}

// CompileDomains reads attribute domains: a struct of attribute names to
// lists of every value the attribute can take.
func CompileDomains(v cue.Value) (pathtree.Domains, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	domains := pathtree.Domains{}
	for iter.Next() {
		list, err := iter.Value().List()
		if err != nil {
			return nil, &CompileError{Field: "domain." + iter.Label(), Message: "domain must be a list of values", Pos: iter.Value().Pos()}
		}
		var values []ir.Value
		for list.Next() {
			val, err := ValueOf(list.Value())
			if err != nil {
				return nil, err
			}
			values = append(values, val)
		}
		slices.SortFunc(values, ir.Compare)
		domains[iter.Label()] = slices.CompactFunc(values, ir.Equal)
	}
	return domains, nil
}

// ContextStack builds the constant context stack, innermost level last.
func (p *Program) ContextStack() *qualifier.ContextStack {
	var s qualifier.ContextStack
	for level := len(p.Context) - 1; level >= 0; level-- {
		s.Push(p.Context[level])
	}
	return &s
}

// SetConstant records a known constant at level, replacing any constant
// the CUE context gave the same attribute there.
func (p *Program) SetConstant(attr string, level int, v ir.Value) {
	for len(p.Context) <= level {
		p.Context = append(p.Context, map[string]ir.Value{})
	}
	p.Context[level][attr] = v
}

// Build compiles root into a path tree. When optimize is set the tree is
// optimized against the program's context and domains.
func (p *Program) Build(root string, optimize bool) (*pathtree.Tree, *pathtree.Report) {
	session := pathtree.NewSession()
	for _, c := range p.Classes {
		session.AddClass(c)
	}
	tree := session.Compile(root)
	if optimize {
		tree.Optimize(p.ContextStack(), p.Domains)
	}
	return tree, session.Finalize()
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
