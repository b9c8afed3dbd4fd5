package engine

import (
	"context"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// Host compiles opaque program fragments into executable capabilities.
// The engine never interprets fragment text itself.
type Host interface {
	// Condition compiles a rule or branch condition.
	Condition(src ir.Source) (Condition, error)

	// Statement compiles one or more consecutive host statements.
	// Consecutive statements in a block are joined with newlines and
	// bound as a single unit.
	Statement(src ir.Source) (Statement, error)

	// Expression compiles a return value.
	Expression(src ir.Source) (Expression, error)
}

// Condition is a compiled boolean expression.
type Condition interface {
	Eval(ctx context.Context) (bool, error)
}

// Statement is a compiled side-effecting operation.
type Statement interface {
	Exec(ctx context.Context) error
}

// Expression is a compiled value-producing expression.
type Expression interface {
	Value(ctx context.Context) (any, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context) (bool, error)

func (f ConditionFunc) Eval(ctx context.Context) (bool, error) { return f(ctx) }

// StatementFunc adapts a function to Statement.
type StatementFunc func(ctx context.Context) error

func (f StatementFunc) Exec(ctx context.Context) error { return f(ctx) }

// ExpressionFunc adapts a function to Expression.
type ExpressionFunc func(ctx context.Context) (any, error)

func (f ExpressionFunc) Value(ctx context.Context) (any, error) { return f(ctx) }

// BindError reports a host fragment that failed to compile. It is a static
// error: the engine was never constructed and nothing ran.
type BindError struct {
	State  string
	Rule   string
	Pos    ir.Pos
	Source string
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind state %q rule %q at %s: %v", e.State, e.Rule, e.Pos, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
