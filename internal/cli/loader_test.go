package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/testutil"
)

func TestLoadProgram(t *testing.T) {
	path := testutil.WriteFile(t, "light.banish", testutil.TrafficLight)

	prog, src, err := LoadProgram(path)
	require.NoError(t, err)
	assert.Equal(t, testutil.TrafficLight, src)
	assert.Len(t, prog.States, 3)
	assert.True(t, prog.Linked)
}

func TestLoadProgram_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, _, err := LoadProgram("/nonexistent/light.banish")
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, ErrCodeNotFound, loadErr.Code)
	})

	t.Run("syntax", func(t *testing.T) {
		path := testutil.WriteFile(t, "bad.banish", "@a r ? n > 1")
		_, _, err := LoadProgram(path)
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, ErrCodeSyntax, loadErr.Code)
		assert.Equal(t, 1, loadErr.Line)
		assert.Contains(t, loadErr.Error(), path+":1:")
	})

	t.Run("validation", func(t *testing.T) {
		path := testutil.WriteFile(t, "bad.banish", "@a r ? { => @b; }")
		_, _, err := LoadProgram(path)
		var verrs compiler.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, compiler.ErrInvalidTarget, verrs.First().Code)
	})
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    map[string]any
	}{
		{
			name:    "yaml",
			file:    "env.yaml",
			content: "ticks: 0\nname: light\ncolors: [red, green]\n",
			want:    map[string]any{"ticks": 0, "name": "light", "colors": []any{"red", "green"}},
		},
		{
			name:    "yml",
			file:    "env.yml",
			content: "ok: true\n",
			want:    map[string]any{"ok": true},
		},
		{
			name:    "json",
			file:    "env.json",
			content: `{"ticks": 0, "ratio": 0.5, "nested": {"n": 2}}`,
			want:    map[string]any{"ticks": int64(0), "ratio": 0.5, "nested": map[string]any{"n": int64(2)}},
		},
		{
			name:    "cue",
			file:    "env.cue",
			content: "ticks: 0\nloop_count: ticks + 1\nname: \"light\"\n",
			want:    map[string]any{"ticks": int64(0), "loop_count": int64(1), "name": "light"},
		},
		{
			name:    "empty yaml",
			file:    "empty.yaml",
			content: "",
			want:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := LoadEnv(testutil.WriteFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, env)
		})
	}
}

func TestLoadEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    string
	}{
		{name: "unsupported extension", file: "env.toml", content: "a = 1", code: ErrCodeEnvFormat},
		{name: "malformed yaml", file: "env.yaml", content: "a: [1,", code: ErrCodeEnvFormat},
		{name: "top level list", file: "env.yaml", content: "- 1\n- 2\n", code: ErrCodeEnvFormat},
		{name: "malformed json", file: "env.json", content: `{"a":`, code: ErrCodeEnvFormat},
		{name: "incomplete cue", file: "env.cue", content: "n: int\n", code: ErrCodeEnvFormat},
		{name: "cue conflict", file: "env.cue", content: "n: 1\nn: 2\n", code: ErrCodeEnvFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(testutil.WriteFile(t, tt.file, tt.content))
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}

	_, err := LoadEnv("/nonexistent/env.yaml")
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestParseVars(t *testing.T) {
	vars, err := ParseVars([]string{"n=3", `s="3"`, "flag=true", "list=[1, 2]", " spaced = x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":      3,
		"s":      "3",
		"flag":   true,
		"list":   []any{1, 2},
		"spaced": "x",
	}, vars)

	for _, bad := range []string{"novalue", "=3", "n=[1,"} {
		_, err := ParseVars([]string{bad})
		assert.Error(t, err, "var %q", bad)
	}
}

func TestLoadRunEnv_VarsOverrideFile(t *testing.T) {
	path := testutil.WriteFile(t, "env.yaml", "ticks: 0\nloop_count: 0\n")

	env, err := loadRunEnv(path, []string{"loop_count=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ticks": 0, "loop_count": 2}, env)

	env, err = loadRunEnv("", nil)
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestStaticErrorCode(t *testing.T) {
	code, _ := staticErrorCode(&LoadError{Code: ErrCodeSyntax, Message: "unexpected end"})
	assert.Equal(t, ErrCodeSyntax, code)

	code, msg := staticErrorCode(compiler.ValidationErrors{{Code: compiler.ErrDuplicateState, Message: "dup"}})
	assert.Equal(t, compiler.ErrDuplicateState, code)
	assert.Contains(t, msg, "dup")

	code, _ = staticErrorCode(&engine.BindError{State: "a", Rule: "r", Err: errors.New("SyntaxError")})
	assert.Equal(t, ErrCodeBind, code)

	code, msg = staticErrorCode(errors.New("other"))
	assert.Equal(t, ErrCodeGeneric, code)
	assert.Equal(t, "other", msg)
}
