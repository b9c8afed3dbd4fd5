// Package script is the JavaScript host for banish programs.
//
// An Env wraps one goja runtime. Conditions, statements and return values
// are compiled once when a program is bound and then run against the
// runtime's global object, which is the program's environment.
//
// Thread-safety: a goja runtime is not safe for concurrent use, and
// neither is Env. One Env serves one run at a time.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dop251/goja"

	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
)

// ErrInterrupted is returned when a running fragment is stopped because
// its context ended.
var ErrInterrupted = errors.New("script: interrupted")

// Env is a goja-backed engine.Host.
type Env struct {
	vm      *goja.Runtime
	out     io.Writer
	logger  *slog.Logger
	globals map[string]any
	seeded  []string
}

var _ engine.Host = (*Env)(nil)

// Option configures an Env.
type Option func(*Env)

// WithGlobals seeds the global object. Keys become global variables.
func WithGlobals(globals map[string]any) Option {
	return func(e *Env) {
		for k, v := range globals {
			e.globals[k] = v
		}
	}
}

// WithOutput directs print(...) output. Default: io.Discard.
func WithOutput(w io.Writer) Option {
	return func(e *Env) {
		if w != nil {
			e.out = w
		}
	}
}

// WithLogger sets the logger behind log(...). Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Env) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an environment with its built-ins and seeded globals.
func New(opts ...Option) (*Env, error) {
	e := &Env{
		vm:      goja.New(),
		out:     io.Discard,
		logger:  slog.Default(),
		globals: map[string]any{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.installBuiltins(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(e.globals))
	for name := range e.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.vm.Set(name, e.globals[name]); err != nil {
			return nil, fmt.Errorf("set global %q: %w", name, err)
		}
	}
	e.seeded = names
	return e, nil
}

// Condition compiles a boolean expression.
func (e *Env) Condition(src ir.Source) (engine.Condition, error) {
	p, err := compile("condition", src, "("+src.Text+")")
	if err != nil {
		return nil, err
	}
	return engine.ConditionFunc(func(ctx context.Context) (bool, error) {
		v, err := e.run(ctx, p)
		if err != nil {
			return false, err
		}
		return v.ToBoolean(), nil
	}), nil
}

// Statement compiles host statements. The text runs inside its own block
// so that let and const declarations do not collide between passes.
func (e *Env) Statement(src ir.Source) (engine.Statement, error) {
	p, err := compile("statement", src, "{\n"+src.Text+"\n}")
	if err != nil {
		return nil, err
	}
	return engine.StatementFunc(func(ctx context.Context) error {
		_, err := e.run(ctx, p)
		return err
	}), nil
}

// Expression compiles a return value.
func (e *Env) Expression(src ir.Source) (engine.Expression, error) {
	p, err := compile("return", src, "("+src.Text+")")
	if err != nil {
		return nil, err
	}
	return engine.ExpressionFunc(func(ctx context.Context) (any, error) {
		v, err := e.run(ctx, p)
		if err != nil {
			return nil, err
		}
		return export(v), nil
	}), nil
}

// Eval runs a standalone script against the environment and returns its
// completion value.
func (e *Env) Eval(ctx context.Context, code string) (any, error) {
	p, err := goja.Compile("eval", code, false)
	if err != nil {
		return nil, err
	}
	v, err := e.run(ctx, p)
	if err != nil {
		return nil, err
	}
	return export(v), nil
}

// Get returns the exported value of a global. ok is false when the global
// is undefined.
func (e *Env) Get(name string) (v any, ok bool) {
	val := e.vm.Get(name)
	if val == nil || goja.IsUndefined(val) {
		return nil, false
	}
	return export(val), true
}

// Set assigns a global.
func (e *Env) Set(name string, v any) error {
	return e.vm.Set(name, v)
}

// Snapshot exports the named globals. With no names it exports every
// seeded global. Undefined globals are omitted.
func (e *Env) Snapshot(names ...string) map[string]any {
	if len(names) == 0 {
		names = e.seeded
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := e.Get(name); ok {
			out[name] = v
		}
	}
	return out
}

func compile(kind string, src ir.Source, code string) (*goja.Program, error) {
	name := kind
	if src.Pos.IsValid() {
		name = fmt.Sprintf("%s@%s", kind, src.Pos)
	}
	p, err := goja.Compile(name, code, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s %q: %w", kind, src.Text, err)
	}
	return p, nil
}

// run executes a compiled fragment, interrupting it if ctx ends first.
func (e *Env) run(ctx context.Context, p *goja.Program) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		e.vm.Interrupt(ErrInterrupted)
		close(fired)
	})

	v, err := e.vm.RunProgram(p)

	if !stop() {
		// The interrupt may land after RunProgram returned; it must not
		// leak into the next fragment.
		<-fired
		e.vm.ClearInterrupt()
	}

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
		return nil, err
	}
	return v, nil
}

// export converts a goja value to plain Go values. undefined and null
// both become nil.
func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
