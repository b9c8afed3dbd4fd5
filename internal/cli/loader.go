package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeEnvFormat   = "E006" // Unsupported or malformed env file
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Run database error
	ErrCodeSyntax      = "E100" // Program syntax error
	ErrCodeBind        = "E110" // Host fragment failed to compile
)

// LoadError represents an error that occurred while loading a program or
// an environment file.
type LoadError struct {
	Code    string
	Message string
	File    string
	Line    int // 1-based; zero when unknown
	Column  int
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadProgram reads and compiles a program file. Syntax errors come back
// as a *LoadError; validation failures keep their compiler.ValidationErrors
// type so callers can list every violation.
func LoadProgram(path string) (*ir.Program, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path)}
	}

	prog, src, err := compiler.CompileFile(path)
	if err != nil {
		var syn *compiler.SyntaxError
		if errors.As(err, &syn) {
			return nil, src, &LoadError{Code: ErrCodeSyntax, Message: syn.Msg, File: path, Line: syn.Line, Column: syn.Column}
		}
		return nil, src, err
	}
	return prog, src, nil
}

// LoadEnv reads an initial environment from a YAML, JSON or CUE file.
// The top level must be an object; its keys become host globals.
func LoadEnv(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("env file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading env file: %v", err)}
	}

	var env map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &env)
	case ".json":
		env, err = store.UnmarshalEnv(string(data))
	case ".cue":
		env, err = decodeCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeEnvFormat, Message: fmt.Sprintf("unsupported env file %q (want .yaml, .yml, .json or .cue)", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeEnvFormat, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if env == nil {
		env = map[string]any{}
	}
	return env, nil
}

// decodeCUE evaluates a CUE file and exports it as JSON. Every value must
// be concrete, so constraints such as `int & >0` need a default.
func decodeCUE(path string, data []byte) (map[string]any, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, err
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	if value.IncompleteKind() != cue.StructKind {
		return nil, fmt.Errorf("top level must be a struct, got %v", value.IncompleteKind())
	}
	js, err := value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return store.UnmarshalEnv(string(js))
}

// ParseVars parses --var name=value pairs. Values use YAML scalar syntax,
// so `n=3` is a number and `s="3"` a string.
func ParseVars(vars []string) (map[string]any, error) {
	out := make(map[string]any, len(vars))
	for _, kv := range vars {
		name, raw, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, &LoadError{Code: ErrCodeEnvFormat, Message: fmt.Sprintf("invalid --var %q (want name=value)", kv)}
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, &LoadError{Code: ErrCodeEnvFormat, Message: fmt.Sprintf("invalid --var %q: %v", kv, err)}
		}
		out[name] = v
	}
	return out, nil
}

// mergeEnv overlays vars on env. Neither input is modified.
func mergeEnv(env, vars map[string]any) map[string]any {
	out := make(map[string]any, len(env)+len(vars))
	for k, v := range env {
		out[k] = v
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// loadRunEnv combines an optional env file with --var overrides.
func loadRunEnv(path string, vars []string) (map[string]any, error) {
	env := map[string]any{}
	if path != "" {
		var err error
		if env, err = LoadEnv(path); err != nil {
			return nil, err
		}
	}
	overrides, err := ParseVars(vars)
	if err != nil {
		return nil, err
	}
	return mergeEnv(env, overrides), nil
}

// sortedKeys returns map keys in order for deterministic output.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// staticErrorCode maps a load, validation or bind failure to the code and
// message reported by the CLI.
func staticErrorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Error()
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs.First().Code, verrs.Error()
	}
	var bindErr *engine.BindError
	if errors.As(err, &bindErr) {
		return ErrCodeBind, bindErr.Error()
	}
	return ErrCodeGeneric, err.Error()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
