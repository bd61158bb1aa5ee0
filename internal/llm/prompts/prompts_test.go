package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coursepipe/coursepipe/internal/model"
)

func TestRubricResolutionOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cs101"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cs101", "essay.txt"), []byte("course rubric\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "essay.txt"), []byte("shared rubric"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := model.Assignment{Key: "essay", Type: model.TypeAssignment}

	if got := Rubric(dir, "cs101", a); got != "course rubric" {
		t.Fatalf("expected course-specific rubric, got %q", got)
	}
	if got := Rubric(dir, "cs999", a); got != "shared rubric" {
		t.Fatalf("expected shared rubric, got %q", got)
	}

	a.Key = "other"
	if got := Rubric(dir, "cs101", a); got != defaultRubrics[model.TypeAssignment] {
		t.Fatalf("expected default rubric, got %q", got)
	}
}

func TestRubricDefaultsByType(t *testing.T) {
	for _, typ := range []model.AssignmentType{model.TypeReflection, model.TypeQuiz, model.TypeAssignment} {
		r := Rubric("", "", model.Assignment{Key: "k", Type: typ})
		if r == "" {
			t.Errorf("no default rubric for type %s", typ)
		}
	}
	// Unknown types fall back to the general rubric.
	if Rubric("", "", model.Assignment{Key: "k", Type: model.TypeBridge}) != defaultRubrics[model.TypeAssignment] {
		t.Error("unknown type did not fall back to general rubric")
	}
}

func TestBuildQuality(t *testing.T) {
	a := model.Assignment{Key: "r1", Title: "Week 1 Reflection", Type: model.TypeReflection}
	system, user := BuildQuality("the rubric text", a, "my submission")

	if !strings.Contains(system, "the rubric text") {
		t.Fatal("rubric missing from system prompt")
	}
	if !strings.Contains(system, `"quality"`) {
		t.Fatal("JSON contract missing from system prompt")
	}
	if !strings.Contains(user, "Week 1 Reflection") || !strings.Contains(user, "my submission") {
		t.Fatalf("user prompt incomplete: %q", user)
	}
}

func TestBuildDiscussion(t *testing.T) {
	src := model.DiscussionSource{
		AnonID:      "cs101-01",
		Writing:     "The partner-entered essay.",
		Summary:     "We debated the main claim.",
		AIQuestions: []string{"What evidence supports this?"},
		Iterations:  3,
		Takeaway:    "Cite sources earlier.",
	}
	system, user := BuildDiscussion(src)

	if !strings.Contains(system, "writingScore") || !strings.Contains(system, "discussionScore") {
		t.Fatal("JSON contract missing from system prompt")
	}
	for _, want := range []string{
		"The partner-entered essay.",
		"We debated the main claim.",
		"What evidence supports this?",
		"DISCUSSION ITERATIONS: 3",
		"Cite sources earlier.",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestBuildDiscussionMissingWriting(t *testing.T) {
	_, user := BuildDiscussion(model.DiscussionSource{AnonID: "cs101-02", Summary: "short"})
	if !strings.Contains(user, "not recovered") {
		t.Fatalf("missing-writing marker absent: %q", user)
	}
}
