package anonymize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/model"
)

func setupCourseData(t *testing.T) (datadir.Layout, *identity.Map) {
	t.Helper()
	layout := datadir.New(t.TempDir())

	idmap := identity.NewMap("cs101")
	idmap.Sync([]identity.RosterEntry{
		{LMSUserID: 1, Name: "Smith-Jones, Alice"},
		{LMSUserID: 2, Name: "Chen, Dora"},
	})
	if err := idmap.Save(layout.IdentityMap("cs101")); err != nil {
		t.Fatalf("save idmap: %v", err)
	}

	shard := map[string]model.Submission{
		"cs101-02": {
			AnonID: "cs101-02",
			Payload: model.Payload{
				Type: model.ContentAIDiscussion,
				ActivityData: &model.ActivityData{
					ActivityID: "disc-1",
					AuthorName: "Smith-Jones, Alice",
					Responses:  []model.ActivityResponse{{QuestionType: "ai-discussion", Entry: "essay text"}},
				},
			},
		},
	}
	if err := datadir.WriteJSON(layout.Submissions("cs101", "disc1"), shard); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	analysis := model.Analysis{
		Assignments: map[string]model.AssignmentAnalysis{
			"disc1": {Title: "AI Discussion", Students: map[string]model.StudentAnalysis{
				"cs101-01": {Participation: 5},
			}},
		},
	}
	if err := datadir.WriteJSON(layout.Analysis("cs101"), analysis); err != nil {
		t.Fatalf("write analysis: %v", err)
	}
	return layout, idmap
}

func TestMirrorStripsDisplayNames(t *testing.T) {
	layout, idmap := setupCourseData(t)

	if err := Mirror(layout, "cs101", "cs101"); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	dst := layout.AnonymousDir("cs101")

	// The raw identity map must not be copied.
	if datadir.Exists(filepath.Join(dst, "id-mapping.json")) {
		t.Fatal("id-mapping.json copied into the anonymous mirror")
	}

	var roster []string
	if err := datadir.ReadJSON(filepath.Join(dst, "roster.json"), &roster); err != nil {
		t.Fatalf("read roster: %v", err)
	}
	if len(roster) != 2 || roster[0] != "cs101-01" {
		t.Fatalf("roster = %v", roster)
	}

	// The author name in the submission shard must be rewritten to the
	// resolved anonymous id.
	shard := make(map[string]model.Submission)
	if err := datadir.ReadJSON(filepath.Join(dst, "submissions", "disc1.json"), &shard); err != nil {
		t.Fatalf("read mirrored shard: %v", err)
	}
	if got := shard["cs101-02"].Payload.ActivityData.AuthorName; got != "cs101-01" {
		t.Fatalf("authorName = %q, want cs101-01", got)
	}

	leaks, err := Verify(dst, idmap)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(leaks) != 0 {
		t.Fatalf("mirror leaks names: %+v", leaks)
	}
}

func TestMirrorRebuildsFromScratch(t *testing.T) {
	layout, _ := setupCourseData(t)

	if err := Mirror(layout, "cs101", "cs101"); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	stale := filepath.Join(layout.AnonymousDir("cs101"), "stale.json")
	if err := os.WriteFile(stale, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Mirror(layout, "cs101", "cs101"); err != nil {
		t.Fatalf("Mirror (rerun): %v", err)
	}
	if datadir.Exists(stale) {
		t.Fatal("stale file survived the rebuild")
	}
}

func TestVerifyFindsLeakedNames(t *testing.T) {
	layout, idmap := setupCourseData(t)
	dir := layout.AnonymousDir("cs101")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	leaky := filepath.Join(dir, "notes.json")
	if err := os.WriteFile(leaky, []byte(`{"text":"I spoke with smith-jones, alice about this"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	leaks, err := Verify(dir, idmap)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(leaks) != 1 || !strings.HasSuffix(leaks[0].File, "notes.json") {
		t.Fatalf("leaks = %+v", leaks)
	}
	if leaks[0].Name != "Smith-Jones, Alice" {
		t.Fatalf("leaked name = %q", leaks[0].Name)
	}
}
