package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/content"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
)

func TestParticipation(t *testing.T) {
	when := time.Now()
	sub := func(workflow model.WorkflowState, late, missing bool, p model.Payload) model.Submission {
		return model.Submission{
			Workflow: workflow, Late: late, Missing: missing,
			SubmittedAt: &when, Payload: p,
		}
	}
	longText := strings.Repeat("thoughtful writing ", 10) // > 100 chars

	tests := []struct {
		name string
		s    model.Submission
		want int
	}{
		{"missing", sub(model.WorkflowSubmitted, false, true, model.Payload{}), 1},
		{"unsubmitted", sub(model.WorkflowUnsubmitted, false, false, model.Payload{}), 1},
		{"no workflow state", sub("", false, false, model.Payload{}), 1},
		{"substantive on time", sub(model.WorkflowSubmitted, false, false,
			model.Payload{Type: model.ContentText, Content: longText}), 5},
		{"short text on time", sub(model.WorkflowSubmitted, false, false,
			model.Payload{Type: model.ContentText, Content: "Hello world"}), 4},
		{"substantive but late", sub(model.WorkflowSubmitted, true, false,
			model.Payload{Type: model.ContentText, Content: longText}), 3},
		{"late", sub(model.WorkflowGraded, true, false,
			model.Payload{Type: model.ContentText, Content: "hi"}), 3},
		{"chatty conversation on time", sub(model.WorkflowSubmitted, false, false,
			model.Payload{Type: model.ContentConversation, Content: "t",
				Conversation: &model.ConversationMeta{UserWords: 51}}), 5},
		{"quiet conversation on time", sub(model.WorkflowSubmitted, false, false,
			model.Payload{Type: model.ContentConversation, Content: "t",
				Conversation: &model.ConversationMeta{UserWords: 50}}), 4},
		{"exactly 100 chars counts", sub(model.WorkflowSubmitted, false, false,
			model.Payload{Type: model.ContentText, Content: strings.Repeat("a", 100)}), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Participation(tt.s); got != tt.want {
				t.Fatalf("Participation = %d, want %d", got, tt.want)
			}
		})
	}
}

// End-to-end download of one assignment: roster of three, one text
// entry, one conversation upload, one non-submission.
func TestDownloadAssignment(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/courses/4242/enrollments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"user":{"id":11,"name":"Ben Adams","sortable_name":"Adams, Ben"}},
			{"user":{"id":12,"name":"Dora Chen","sortable_name":"Chen, Dora"}},
			{"user":{"id":13,"name":"Finn Evans","sortable_name":"Evans, Finn"}}]`)
	})
	mux.HandleFunc("/courses/4242/assignments/1001/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"user_id":11,"workflow_state":"submitted","submission_type":"online_text_entry","body":"Hello world","submitted_at":"2026-01-19T10:00:00Z"},
			{"user_id":12,"workflow_state":"submitted","submission_type":"online_upload","submitted_at":"2026-01-19T11:00:00Z",
			 "attachments":[{"id":1,"filename":"chat.json","content-type":"application/json","url":"%s/files/1"}]},
			{"user_id":13,"workflow_state":"unsubmitted"}]`, server.URL)
	})
	mux.HandleFunc("/files/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"role":"user","content":"I learned X"},{"role":"assistant","content":"Why?"}]`)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := lms.New(server.URL, "tok")
	course := &config.Course{
		Code: "cs101", Prefix: "cs101", CourseID: 4242,
		Assignments: []model.Assignment{
			{Key: "intro", LMSID: 1001, Title: "Introduction", LMSType: "assignment"},
		},
	}
	layout := datadir.New(t.TempDir())
	d := &Downloader{
		LMS:       client,
		Extractor: content.NewExtractor(client),
		Course:    course,
		Layout:    layout,
	}

	if err := d.Download(context.Background(), ""); err != nil {
		t.Fatalf("Download: %v", err)
	}

	idmap, err := identity.Load(layout.IdentityMap("cs101"), "cs101")
	if err != nil {
		t.Fatalf("load identity map: %v", err)
	}
	if idmap.Len() != 3 {
		t.Fatalf("expected 3 roster entries, got %d", idmap.Len())
	}

	shard := make(map[string]model.Submission)
	if err := datadir.ReadJSON(layout.Submissions("cs101", "intro"), &shard); err != nil {
		t.Fatalf("read shard: %v", err)
	}
	if len(shard) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(shard))
	}

	byUser := func(userID int64) model.Submission {
		t.Helper()
		anon, ok := idmap.AnonFor(userID)
		if !ok {
			t.Fatalf("user %d not in identity map", userID)
		}
		s, ok := shard[anon]
		if !ok {
			t.Fatalf("no shard entry for user %d (%s)", userID, anon)
		}
		return s
	}

	s1 := byUser(11)
	if s1.Payload.Type != model.ContentText || s1.Payload.Content != "Hello world" {
		t.Fatalf("student 1 payload = %+v", s1.Payload)
	}
	if s1.Participation != 4 {
		t.Fatalf("student 1 participation = %d, want 4", s1.Participation)
	}

	s2 := byUser(12)
	if s2.Payload.Type != model.ContentConversation {
		t.Fatalf("student 2 payload = %+v", s2.Payload)
	}
	if s2.Participation != 4 {
		t.Fatalf("student 2 participation = %d, want 4", s2.Participation)
	}

	s3 := byUser(13)
	if s3.Payload.Type != model.ContentNone || s3.Participation != 1 {
		t.Fatalf("student 3 = %+v", s3)
	}

	index := make(map[string]model.IndexEntry)
	if err := datadir.ReadJSON(layout.SubmissionIndex("cs101"), &index); err != nil {
		t.Fatalf("read index: %v", err)
	}
	entry, ok := index["intro"]
	if !ok {
		t.Fatal("intro missing from submission index")
	}
	if entry.TotalSubmissions != 3 || entry.HasAIDiscussion {
		t.Fatalf("index entry = %+v", entry)
	}
	if entry.DownloadedAt == "" {
		t.Fatal("index entry missing download timestamp")
	}
}

// Quiz answers that never surface through the submissions API are
// recovered from the student-analysis report: generation fires only
// because no submission carried content, answers join on the LMS user
// id, and participation is recomputed from the filled payload.
func TestDownloadAssignmentQuizFallback(t *testing.T) {
	var reportRequests int
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/courses/4242/quizzes/2001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":2001,"assignment_id":3001}`)
	})
	mux.HandleFunc("/courses/4242/assignments/3001/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"user_id":11,"workflow_state":"submitted","submission_type":"online_quiz","submitted_at":"2026-01-19T10:00:00Z"},
			{"user_id":12,"workflow_state":"unsubmitted"},
			{"user_id":13,"workflow_state":"submitted","submission_type":"online_quiz","submitted_at":"2026-01-19T11:00:00Z"}]`)
	})
	mux.HandleFunc("/courses/4242/quizzes/2001/reports", func(w http.ResponseWriter, r *http.Request) {
		reportRequests++
		fmt.Fprintf(w, `{"id":9,"workflow_state":"complete","file":{"url":"%s/report.csv"}}`, server.URL)
	})
	mux.HandleFunc("/report.csv", func(w http.ResponseWriter, r *http.Request) {
		longAnswer := strings.Repeat("a detailed answer ", 8) // > 100 chars
		fmt.Fprint(w, "name,id,sis_id,root_account,section,section_id,section_sis_id,submitted,attempt,Q1,Q2,n correct,n incorrect,score\n"+
			`"Adams, Ben",11,a11,acct,S1,1,s1,2026-01-19,1,"Because <b>deadlines</b>","I tried harder",2,0,10`+"\n"+
			`"Evans, Finn",13,a13,acct,S1,1,s1,2026-01-19,1,"`+longAnswer+`","",2,0,10`+"\n")
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := lms.New(server.URL, "tok")
	course := &config.Course{Code: "cs101", Prefix: "cs101", CourseID: 4242}
	layout := datadir.New(t.TempDir())
	d := &Downloader{
		LMS:        client,
		Extractor:  content.NewExtractor(client),
		Course:     course,
		Layout:     layout,
		ReportOpts: lms.ReportOptions{PollInterval: time.Millisecond, MaxWait: time.Second},
	}

	idmap := identity.NewMap("cs101")
	idmap.Sync([]identity.RosterEntry{
		{LMSUserID: 11, Name: "Adams, Ben"},
		{LMSUserID: 12, Name: "Chen, Dora"},
		{LMSUserID: 13, Name: "Evans, Finn"},
	})

	a := model.Assignment{Key: "quiz1", LMSID: 2001, Title: "Quiz 1", LMSType: "quiz"}
	shard, err := d.DownloadAssignment(context.Background(), idmap, a)
	if err != nil {
		t.Fatalf("DownloadAssignment: %v", err)
	}
	if reportRequests != 1 {
		t.Fatalf("expected 1 report generation, got %d", reportRequests)
	}

	anon11, _ := idmap.AnonFor(11)
	filled := shard[anon11]
	if filled.Payload.Type != model.ContentText {
		t.Fatalf("filled payload = %+v", filled.Payload)
	}
	if filled.Payload.Content != "Because deadlines\n\nI tried harder" {
		t.Fatalf("filled content = %q", filled.Payload.Content)
	}
	if filled.Participation != 4 {
		t.Fatalf("participation = %d, want 4", filled.Participation)
	}

	// A substantive on-time answer set scores 5 after the refill.
	anon13, _ := idmap.AnonFor(13)
	if got := shard[anon13].Participation; got != 5 {
		t.Fatalf("substantive participation = %d, want 5", got)
	}

	// The absent student has no report row and stays empty.
	anon12, _ := idmap.AnonFor(12)
	if s := shard[anon12]; s.Payload.Type != model.ContentNone || s.Participation != 1 {
		t.Fatalf("unsubmitted student = %+v", s)
	}
}

// The report fallback must not fire when a quiz submission already
// carried content through the submissions API.
func TestDownloadAssignmentQuizSkipsReportWhenContentPresent(t *testing.T) {
	var reportRequests int
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/4242/quizzes/2001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":2001,"assignment_id":3001}`)
	})
	mux.HandleFunc("/courses/4242/assignments/3001/submissions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"user_id":11,"workflow_state":"submitted","submission_type":"online_quiz","body":"inline quiz essay"}]`)
	})
	mux.HandleFunc("/courses/4242/quizzes/2001/reports", func(w http.ResponseWriter, r *http.Request) {
		reportRequests++
		fmt.Fprint(w, `{"id":9,"workflow_state":"failed"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := lms.New(server.URL, "tok")
	course := &config.Course{Code: "cs101", Prefix: "cs101", CourseID: 4242}
	d := &Downloader{
		LMS:       client,
		Extractor: content.NewExtractor(client),
		Course:    course,
		Layout:    datadir.New(t.TempDir()),
	}

	idmap := identity.NewMap("cs101")
	idmap.Sync([]identity.RosterEntry{{LMSUserID: 11, Name: "Adams, Ben"}})

	a := model.Assignment{Key: "quiz1", LMSID: 2001, Title: "Quiz 1", LMSType: "quiz"}
	shard, err := d.DownloadAssignment(context.Background(), idmap, a)
	if err != nil {
		t.Fatalf("DownloadAssignment: %v", err)
	}
	if reportRequests != 0 {
		t.Fatalf("report requested despite present content: %d", reportRequests)
	}

	anon, _ := idmap.AnonFor(11)
	if got := shard[anon].Payload.Content; got != "inline quiz essay" {
		t.Fatalf("payload content = %q", got)
	}
}

// A second sync against the same roster must keep every assigned id.
func TestDownloadRosterStability(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/4242/enrollments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"user":{"id":11,"sortable_name":"Adams, Ben"}}]`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := lms.New(server.URL, "tok")
	course := &config.Course{Code: "cs101", Prefix: "cs101", CourseID: 4242}
	layout := datadir.New(t.TempDir())
	d := &Downloader{LMS: client, Extractor: content.NewExtractor(client), Course: course, Layout: layout}

	idmap := identity.NewMap("cs101")
	if err := d.SyncRoster(context.Background(), idmap); err != nil {
		t.Fatalf("SyncRoster: %v", err)
	}
	first, _ := idmap.AnonFor(11)

	if err := d.SyncRoster(context.Background(), idmap); err != nil {
		t.Fatalf("SyncRoster (repeat): %v", err)
	}
	second, _ := idmap.AnonFor(11)
	if first != second {
		t.Fatalf("anon id changed across syncs: %q -> %q", first, second)
	}
}
