package writeback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
)

func score(v float64) *float64 { return &v }

// fakeLMS records grade writes and serves one submissions listing.
type fakeLMS struct {
	submissionsJSON string
	listCalls       int
	puts            []string
}

func (f *fakeLMS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/4242/assignments/1003/submissions", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls++
		fmt.Fprint(w, f.submissionsJSON)
	})
	mux.HandleFunc("/courses/4242/assignments/1003/submissions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			f.puts = append(f.puts, r.URL.Path)
		}
		fmt.Fprint(w, `{}`)
	})
	return mux
}

func newTestPoster(t *testing.T, f *fakeLMS) *Poster {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	client := lms.New(server.URL, "tok")
	client.WriteDelay = 0
	course := &config.Course{
		Code: "cs101", CourseID: 4242,
		Assignments: []model.Assignment{{Key: "disc1", LMSID: 1003, Title: "AI Discussion"}},
	}
	return &Poster{LMS: client, Course: course}
}

// A grade file exported for one assignment must not post to another.
func TestPostRejectsMismatchedAssignmentKey(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Course:        "cs101",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", LMSUserID: 42, Score: score(8)},
		},
	}

	_, err := p.Post(context.Background(), grades, Options{AssignmentKey: "disc2"})
	if err == nil {
		t.Fatal("expected error for mismatched assignment key")
	}
	if f.listCalls != 0 || len(f.puts) != 0 {
		t.Fatalf("LMS touched despite mismatch: reads %d, writes %v", f.listCalls, f.puts)
	}
}

// A grade already present in the LMS costs one read and zero writes.
func TestPostIdempotent(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[{"user_id":42,"score":8}]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Course:        "cs101",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", LMSUserID: 42, Score: score(8)},
		},
	}

	sum, err := p.Post(context.Background(), grades, Options{DryRun: false})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sum.Unchanged != 1 || sum.Posted != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if f.listCalls != 1 {
		t.Fatalf("expected 1 submissions read, got %d", f.listCalls)
	}
	if len(f.puts) != 0 {
		t.Fatalf("expected no writes, got %v", f.puts)
	}
}

func TestPostWritesChangedGrade(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[{"user_id":42,"score":6}]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", LMSUserID: 42, Score: score(9),
				WritingFeedback: "Strong essay.", DiscussionFeedback: "Good probing."},
		},
	}

	sum, err := p.Post(context.Background(), grades, Options{DryRun: false})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sum.Posted != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(f.puts) != 1 || f.puts[0] != "/courses/4242/assignments/1003/submissions/42" {
		t.Fatalf("puts = %v", f.puts)
	}
}

func TestPostSkipsIncompleteDecisions(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", Score: score(8)},  // no user id
			{AnonID: "cs101-02", LMSUserID: 43},    // no score
		},
	}

	sum, err := p.Post(context.Background(), grades, Options{DryRun: false})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sum.Skipped != 2 || sum.Posted != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(f.puts) != 0 {
		t.Fatalf("expected no writes, got %v", f.puts)
	}
}

func TestPostDryRunWritesNothing(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", LMSUserID: 42, Score: score(9)},
		},
	}

	sum, err := p.Post(context.Background(), grades, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sum.Posted != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(f.puts) != 0 {
		t.Fatalf("dry run wrote to the LMS: %v", f.puts)
	}
}

func TestPostHonorsLimit(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[]`}
	p := newTestPoster(t, f)

	grades := model.GradeFile{
		AssignmentKey: "disc1",
		Decisions: []model.GradeDecision{
			{AnonID: "cs101-01", LMSUserID: 41, Score: score(7)},
			{AnonID: "cs101-02", LMSUserID: 42, Score: score(8)},
			{AnonID: "cs101-03", LMSUserID: 43, Score: score(9)},
		},
	}

	sum, err := p.Post(context.Background(), grades, Options{DryRun: false, Limit: 2})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sum.Posted != 2 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(f.puts) != 2 {
		t.Fatalf("puts = %v", f.puts)
	}
}

func TestPostUnknownAssignment(t *testing.T) {
	f := &fakeLMS{submissionsJSON: `[]`}
	p := newTestPoster(t, f)

	_, err := p.Post(context.Background(), model.GradeFile{AssignmentKey: "ghost"}, Options{})
	if err == nil {
		t.Fatal("expected error for unknown assignment key")
	}
}

func TestBuildComment(t *testing.T) {
	d := model.GradeDecision{
		WritingFeedback:    "Clear thesis.",
		DiscussionFeedback: "Pushed back well.",
		OverallNote:        "Keep it up.",
	}
	got := buildComment(d)
	want := "Writing: Clear thesis.\n\nDiscussion: Pushed back well.\n\nKeep it up."
	if got != want {
		t.Fatalf("buildComment = %q, want %q", got, want)
	}
	if buildComment(model.GradeDecision{}) != "" {
		t.Fatal("empty decision should produce empty comment")
	}
}
