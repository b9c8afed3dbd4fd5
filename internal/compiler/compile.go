package compiler

import (
	"fmt"
	"os"

	"github.com/roach88/banish/internal/ir"
)

// Compile parses, validates and links banish source. The returned program
// is ready for the engine. Errors are *SyntaxError or ValidationErrors.
func Compile(file, src string) (*ir.Program, error) {
	prog, err := Parse(file, src)
	if err != nil {
		return nil, err
	}
	if err := Link(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// CompileFile reads and compiles a program from disk. It also returns the
// source text so callers can record exactly what was run.
func CompileFile(path string) (*ir.Program, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read program: %w", err)
	}
	src := string(data)
	prog, err := Compile(path, src)
	if err != nil {
		return nil, src, err
	}
	return prog, src, nil
}
