package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/ir"
)

// fakeHost is a tiny integer-only host for engine tests.
//
// Conditions:  "true", "false", "explode" (fails at eval), "<var> <op> <int>".
// Statements:  "<var> = <int>", "<var> += <int>", "<var>++", "mark <label>",
// "boom" (fails at exec), "cancel" (calls onCancel).
// Expressions: an integer literal, a variable name, or "fail".
// Anything else fails to compile.
type fakeHost struct {
	vars     map[string]int
	marks    []string
	compiled []string
	execs    int
	onCancel func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{vars: map[string]int{}}
}

var comparisons = map[string]func(a, b int) bool{
	"<":  func(a, b int) bool { return a < b },
	"<=": func(a, b int) bool { return a <= b },
	">":  func(a, b int) bool { return a > b },
	">=": func(a, b int) bool { return a >= b },
	"==": func(a, b int) bool { return a == b },
	"!=": func(a, b int) bool { return a != b },
}

func (h *fakeHost) Condition(src ir.Source) (Condition, error) {
	text := strings.TrimSpace(src.Text)
	switch text {
	case "true", "false":
		v := text == "true"
		return ConditionFunc(func(context.Context) (bool, error) { return v, nil }), nil
	case "explode":
		return ConditionFunc(func(context.Context) (bool, error) {
			return false, errors.New("condition exploded")
		}), nil
	}

	f := strings.Fields(text)
	if len(f) != 3 {
		return nil, fmt.Errorf("cannot compile condition %q", text)
	}
	cmp, ok := comparisons[f[1]]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", f[1])
	}
	n, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, err
	}
	name := f[0]
	return ConditionFunc(func(context.Context) (bool, error) {
		return cmp(h.vars[name], n), nil
	}), nil
}

func (h *fakeHost) Statement(src ir.Source) (Statement, error) {
	h.compiled = append(h.compiled, src.Text)

	var ops []func() error
	for _, line := range strings.Split(src.Text, "\n") {
		op, err := h.compileStatement(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return StatementFunc(func(context.Context) error {
		h.execs++
		for _, op := range ops {
			if err := op(); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (h *fakeHost) compileStatement(s string) (func() error, error) {
	switch {
	case s == "boom":
		return func() error { return errors.New("boom") }, nil
	case s == "cancel":
		return func() error {
			if h.onCancel != nil {
				h.onCancel()
			}
			return nil
		}, nil
	case strings.HasPrefix(s, "mark "):
		label := strings.TrimPrefix(s, "mark ")
		return func() error {
			h.marks = append(h.marks, label)
			return nil
		}, nil
	case strings.HasSuffix(s, "++"):
		name := strings.TrimSuffix(s, "++")
		return func() error {
			h.vars[name]++
			return nil
		}, nil
	}

	f := strings.Fields(s)
	if len(f) != 3 {
		return nil, fmt.Errorf("cannot compile statement %q", s)
	}
	n, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, err
	}
	name := f[0]
	switch f[1] {
	case "=":
		return func() error { h.vars[name] = n; return nil }, nil
	case "+=":
		return func() error { h.vars[name] += n; return nil }, nil
	}
	return nil, fmt.Errorf("unknown assignment %q", f[1])
}

func (h *fakeHost) Expression(src ir.Source) (Expression, error) {
	text := strings.TrimSpace(src.Text)
	if text == "fail" {
		return ExpressionFunc(func(context.Context) (any, error) {
			return nil, errors.New("value unavailable")
		}), nil
	}
	if n, err := strconv.Atoi(text); err == nil {
		return ExpressionFunc(func(context.Context) (any, error) { return int64(n), nil }), nil
	}
	if strings.ContainsAny(text, " ()") {
		return nil, fmt.Errorf("cannot compile expression %q", text)
	}
	return ExpressionFunc(func(context.Context) (any, error) {
		return int64(h.vars[text]), nil
	}), nil
}

func mustCompile(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := compiler.Compile("test.banish", src)
	require.NoError(t, err)
	return prog
}

func mustEngine(t *testing.T, src string, host Host, opts ...EngineOption) *Engine {
	t.Helper()
	eng, err := New(mustCompile(t, src), host, opts...)
	require.NoError(t, err)
	return eng
}
