package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/buildout/types"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseOperationType(t *testing.T) {
	tests := []struct {
		in   string
		want OperationType
	}{
		{"initial", Initial},
		{"APPEND", Append},
		{"Transform", Transform},
	}
	for _, tt := range tests {
		got, err := ParseOperationType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOperationType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseOperationType("replace"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestPlan_Apply(t *testing.T) {
	plan, err := LoadPlan(writePlan(t, `steps:
  - task: compileDebugJava
    type: JAVAC
  - republish:
      from: JAVAC
      to: ALL_CLASSES
  - task: instrumentClasses
    type: JAVAC
    operation: transform
  - task: mergeDebugResources
    type: MERGED_RES
`))
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}

	h := newTestHolder()
	slots, err := plan.Apply(h)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}

	got, err := h.FinalProduct(types.AllClasses).Get()
	if err != nil {
		t.Fatalf("FinalProduct(ALL_CLASSES) failed: %v", err)
	}
	want := filepath.Join(testBuildDir, "intermediates", "javac", "debug", "instrumentClasses", "out")
	if got != want {
		t.Errorf("ALL_CLASSES = %s, want %s", got, want)
	}
	if slot := slots["instrumentClasses/JAVAC"]; slot == nil || !slot.Observed() {
		t.Error("transform slot should be the one read through the alias")
	}
}

func TestPlan_ApplyStopsAtFirstFailure(t *testing.T) {
	plan, err := LoadPlan(writePlan(t, `steps:
  - task: a
    type: APK
  - task: b
    type: APK
    operation: initial
  - task: c
    type: BUNDLE
`))
	if err != nil {
		t.Fatal(err)
	}

	h := newTestHolder()
	_, err = plan.Apply(h)
	if !errors.Is(err, ErrDuplicateInitialProducer) {
		t.Fatalf("expected ErrDuplicateInitialProducer, got %v", err)
	}
	if !strings.Contains(err.Error(), "step 2") {
		t.Errorf("error should name the failing step: %v", err)
	}
	if h.HasProducer(types.Bundle) {
		t.Error("steps after the failure must not be applied")
	}
}

func TestPlan_ApplyRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		plan string
	}{
		{"missing task", "steps:\n  - type: APK\n"},
		{"unknown type", "steps:\n  - task: a\n    type: NOPE\n"},
		{"unknown operation", "steps:\n  - task: a\n    type: APK\n    operation: merge\n"},
		{"unknown republish type", "steps:\n  - republish:\n      from: APK\n      to: NOPE\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := LoadPlan(writePlan(t, tt.plan))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := plan.Apply(newTestHolder()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
