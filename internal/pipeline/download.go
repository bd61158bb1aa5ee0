// Package pipeline orchestrates the per-course batch actions:
// download, analyze, grade, dashboard, and writeback sequencing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/content"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
)

// Downloader joins LMS submissions with identity, normalizes content,
// and writes per-assignment shards plus the course index.
type Downloader struct {
	LMS       *lms.Client
	Extractor *content.Extractor
	Course    *config.Course
	Layout    datadir.Layout

	// ReportOpts is overridable for tests.
	ReportOpts lms.ReportOptions
}

// SyncRoster lists student enrollments and appends unseen students to
// the identity map, saving it when it grew.
func (d *Downloader) SyncRoster(ctx context.Context, idmap *identity.Map) error {
	enrollments, err := d.LMS.ListEnrollments(ctx, d.Course.CourseID, "StudentEnrollment")
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	roster := make([]identity.RosterEntry, 0, len(enrollments))
	for _, e := range enrollments {
		name := e.User.SortableName
		if name == "" {
			name = e.User.Name
		}
		roster = append(roster, identity.RosterEntry{LMSUserID: e.User.ID, Name: name})
	}
	if added := idmap.Sync(roster); added > 0 {
		return idmap.Save(d.Layout.IdentityMap(d.Course.Code))
	}
	return nil
}

// resolveSubmissionAssignment maps a quiz to the assignment id that
// holds its submissions. Classic quizzes point at a shadow assignment;
// a not-found quiz fetch means a new-style quiz whose id already is
// the assignment id.
func (d *Downloader) resolveSubmissionAssignment(ctx context.Context, a model.Assignment) (int64, error) {
	if !a.IsQuiz() {
		return a.LMSID, nil
	}
	quiz, err := d.LMS.GetQuiz(ctx, d.Course.CourseID, a.LMSID)
	if err != nil {
		var apiErr *lms.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return a.LMSID, nil
		}
		return 0, fmt.Errorf("resolve quiz %s: %w", a.Key, err)
	}
	if quiz.AssignmentID != 0 {
		return quiz.AssignmentID, nil
	}
	return a.LMSID, nil
}

// DownloadAssignment fetches, extracts, and persists one assignment's
// submissions. Returns the written shard.
func (d *Downloader) DownloadAssignment(ctx context.Context, idmap *identity.Map, a model.Assignment) (map[string]model.Submission, error) {
	assignmentID, err := d.resolveSubmissionAssignment(ctx, a)
	if err != nil {
		return nil, err
	}

	subs, err := d.LMS.ListSubmissions(ctx, d.Course.CourseID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions for %s: %w", a.Key, err)
	}

	shard := make(map[string]model.Submission)
	hasDiscussion := false
	needQuizFallback := a.IsQuiz()

	for _, sub := range subs {
		anon, known := idmap.AnonFor(sub.UserID)
		if !known {
			slog.Debug("submission from unknown user", "user", sub.UserID, "assignment", a.Key)
			continue
		}

		payload := d.Extractor.Extract(ctx, sub)
		if payload.Type == model.ContentAIDiscussion {
			hasDiscussion = true
		}
		if payload.Type != model.ContentNone {
			needQuizFallback = false
		}

		s := model.Submission{
			AnonID:         anon,
			AssignmentKey:  a.Key,
			Workflow:       model.WorkflowState(sub.WorkflowState),
			SubmittedAt:    sub.SubmittedAt,
			Late:           sub.Late,
			Missing:        sub.Missing,
			Score:          sub.Score,
			SubmissionType: sub.SubmissionType,
			Payload:        payload,
		}
		s.Participation = Participation(s)
		shard[anon] = s
	}

	// Quiz answers often never surface through the submissions API;
	// the student-analysis report is the fallback source.
	if needQuizFallback && len(shard) > 0 {
		if err := d.fillFromQuizReport(ctx, idmap, a, shard); err != nil {
			slog.Warn("quiz report fallback skipped", "assignment", a.Key, "error", err)
		}
	}

	if err := datadir.WriteJSON(d.Layout.Submissions(d.Course.Code, a.Key), shard); err != nil {
		return nil, err
	}
	if err := d.updateIndex(a, len(shard), hasDiscussion); err != nil {
		return nil, err
	}
	return shard, nil
}

// fillFromQuizReport generates the student-analysis CSV and fills
// empty submissions with each student's concatenated answers.
func (d *Downloader) fillFromQuizReport(ctx context.Context, idmap *identity.Map, a model.Assignment, shard map[string]model.Submission) error {
	csvText, err := d.LMS.GenerateQuizReport(ctx, d.Course.CourseID, a.LMSID, d.ReportOpts)
	if err != nil {
		return err
	}
	answers, err := content.ParseQuizReport(csvText)
	if err != nil {
		return err
	}
	for anon, s := range shard {
		if s.Payload.Type != model.ContentNone {
			continue
		}
		userID, ok := idmap.LMSUserFor(anon)
		if !ok {
			continue
		}
		text, ok := answers[strconv.FormatInt(userID, 10)]
		if !ok || text == "" {
			continue
		}
		s.Payload = model.Payload{Type: model.ContentText, Content: text}
		s.Participation = Participation(s)
		shard[anon] = s
	}
	return nil
}

func (d *Downloader) updateIndex(a model.Assignment, total int, hasDiscussion bool) error {
	indexPath := d.Layout.SubmissionIndex(d.Course.Code)
	index := make(map[string]model.IndexEntry)
	if datadir.Exists(indexPath) {
		if err := datadir.ReadJSON(indexPath, &index); err != nil {
			return err
		}
	}
	index[a.Key] = model.IndexEntry{
		Title:            a.Title,
		Points:           a.Points,
		Sprint:           a.Sprint,
		Week:             a.Week,
		HasAIDiscussion:  hasDiscussion,
		TotalSubmissions: total,
		DownloadedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	return datadir.WriteJSON(indexPath, index)
}

// Participation computes the initial participation score. Text of
// at least 100 chars or a conversation with more than 50 user words
// counts as substantive.
func Participation(s model.Submission) int {
	if s.Missing || s.Workflow == model.WorkflowUnsubmitted || s.Workflow == "" {
		return 1
	}
	if substantive(s.Payload) && !s.Late {
		return 5
	}
	if s.Late {
		return 3
	}
	return 4
}

func substantive(p model.Payload) bool {
	switch p.Type {
	case model.ContentText, model.ContentAIDiscussion:
		return len(p.Content) >= 100
	case model.ContentConversation:
		return p.Conversation != nil && p.Conversation.UserWords > 50
	}
	return false
}

// Download runs the full download action for the course, continuing
// past per-assignment failures.
func (d *Downloader) Download(ctx context.Context, only string) error {
	idmap, err := identity.Load(d.Layout.IdentityMap(d.Course.Code), d.Course.Prefix)
	if err != nil {
		return err
	}
	if err := d.SyncRoster(ctx, idmap); err != nil {
		return err
	}

	var failed int
	for _, a := range d.Course.Assignments {
		if only != "" && a.Key != only {
			continue
		}
		shard, err := d.DownloadAssignment(ctx, idmap, a)
		if err != nil {
			failed++
			color.Red("  ✗ %s: %v", a.Key, err)
			continue
		}
		color.Green("  ✓ %s: %d submissions", a.Key, len(shard))
	}
	if failed > 0 {
		return fmt.Errorf("%d assignment(s) failed to download", failed)
	}
	return nil
}
