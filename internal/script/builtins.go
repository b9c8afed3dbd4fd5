package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// installBuiltins defines print and log on the global object.
//
//	print(a, b, ...)  writes the arguments, space separated, to the output
//	log(a, b, ...)    logs the same line through slog at info level
//
// Both return undefined.
func (e *Env) installBuiltins() error {
	printFn := func(call goja.FunctionCall) goja.Value {
		fmt.Fprintln(e.out, formatArgs(call.Arguments))
		return goja.Undefined()
	}
	if err := e.vm.Set("print", printFn); err != nil {
		return fmt.Errorf("install print: %w", err)
	}

	logFn := func(call goja.FunctionCall) goja.Value {
		e.logger.Info("script log", "args", formatArgs(call.Arguments))
		return goja.Undefined()
	}
	if err := e.vm.Set("log", logFn); err != nil {
		return fmt.Errorf("install log: %w", err)
	}
	return nil
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	return strings.Join(parts, " ")
}

// formatValue renders strings bare and everything structured as JSON.
func formatValue(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}

	switch x := v.Export().(type) {
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return v.String()
		}
		return string(b)
	default:
		return v.String()
	}
}
