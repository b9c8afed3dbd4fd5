// Package testutil holds deterministic helpers and shared program fixtures
// for tests across packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TrafficLight is the canonical example program. Run with
// {ticks: 0, loop_count: 0} it prints "red" three times, ticks to three on
// every visit to @red, and returns with no value from @yellow once
// loop_count reaches 2.
const TrafficLight = `// traffic light
@red
    announce ? { print("red"); }
    timer ? ticks < 3 { ticks += 1; }

@green
    go ? { ticks = 0; => @yellow; }

@yellow
    stop ? loop_count == 2 { return; }
    count ? {
        loop_count += 1;
        => @red;
    }
`

// TrafficLightEnv is the initial environment for TrafficLight.
func TrafficLightEnv() map[string]any {
	return map[string]any{"ticks": 0, "loop_count": 0}
}

// WriteFile writes content to name inside a fresh temp directory and
// returns the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
