package extractor

import (
	"fmt"
	"log"

	"github.com/dshills/classindex-mcp/internal/classfile"
	"github.com/dshills/classindex-mcp/pkg/types"
)

// Options configures reference extraction.
type Options struct {
	// IndexStringConstants records StringConstantKey entries for string literals.
	IndexStringConstants bool

	// Logf receives diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Extractor turns class files into per-file reference indexes. It is safe for
// concurrent use; each call works on its own visitor state.
type Extractor struct {
	opts Options
}

// Stats summarizes one extraction.
type Stats struct {
	Instructions      int
	References        int
	AccessorsInlined  int
	LambdasPropagated int
	LambdasDropped    int
}

// Result is the outcome of indexing one class file.
type Result struct {
	ClassName  string
	SuperName  string
	Interfaces []string
	Index      types.Index
	Stats      Stats
}

// Supertypes returns the superclass and interfaces.
func (r *Result) Supertypes() []string {
	out := make([]string, 0, len(r.Interfaces)+1)
	if r.SuperName != "" {
		out = append(out, r.SuperName)
	}
	return append(out, r.Interfaces...)
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Extractor{opts: opts}
}

// Extract parses data as a class file and indexes it.
func (e *Extractor) Extract(data []byte) (*Result, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse class file: %w", err)
	}
	return e.Visit(cf), nil
}

// Visit indexes an already parsed class file.
func (e *Extractor) Visit(cf *classfile.ClassFile) *Result {
	v := newClassVisitor(e.opts)
	v.visitClass(cf)
	v.stats.References = v.index.References()
	return &Result{
		ClassName:  cf.Name,
		SuperName:  cf.SuperName,
		Interfaces: cf.Interfaces,
		Index:      v.index,
		Stats:      v.stats,
	}
}
