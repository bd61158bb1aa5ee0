// Package writeback posts instructor-confirmed grades from a dashboard
// export back to the LMS. Posting is idempotent: a decision whose score
// already matches the LMS is skipped, so a rerun after a partial
// failure only touches what is left.
package writeback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
)

// Options controls one posting run.
type Options struct {
	// AssignmentKey is the assignment the caller intends to post to.
	// Posting fails when it does not match the grade file, so a file
	// exported for one assignment cannot land on another.
	AssignmentKey string
	// DryRun logs every decision without writing to the LMS.
	DryRun bool
	// Limit caps the number of grades posted this run; 0 means all.
	Limit int
}

// Summary counts what happened to each decision.
type Summary struct {
	Posted    int
	Unchanged int
	Skipped   int
	Errored   int
}

// Poster posts one grade file against one course.
type Poster struct {
	LMS    *lms.Client
	Course *config.Course
}

// Post applies every decision in the grade file. It reads the current
// LMS scores once up front so already-correct grades cost no writes.
func (p *Poster) Post(ctx context.Context, grades model.GradeFile, opts Options) (Summary, error) {
	var sum Summary

	if opts.AssignmentKey != "" && opts.AssignmentKey != grades.AssignmentKey {
		return sum, fmt.Errorf("grade file is for assignment %s, not %s",
			grades.AssignmentKey, opts.AssignmentKey)
	}

	a, ok := p.Course.Find(grades.AssignmentKey)
	if !ok {
		return sum, fmt.Errorf("assignment %q not in course %s", grades.AssignmentKey, p.Course.Code)
	}

	current, err := p.currentScores(ctx, a.LMSID)
	if err != nil {
		return sum, fmt.Errorf("read current scores: %w", err)
	}

	for _, d := range grades.Decisions {
		if d.LMSUserID == 0 {
			slog.Warn("decision without LMS user id, skipping", "student", d.AnonID)
			sum.Skipped++
			continue
		}
		if d.Score == nil {
			slog.Info("decision without score, skipping", "student", d.AnonID)
			sum.Skipped++
			continue
		}
		if have, ok := current[d.LMSUserID]; ok && have != nil && *have == *d.Score {
			sum.Unchanged++
			continue
		}
		if opts.Limit > 0 && sum.Posted >= opts.Limit {
			sum.Skipped++
			continue
		}

		comment := buildComment(d)
		if opts.DryRun {
			color.Yellow("dry-run: would post %s = %.1f", d.AnonID, *d.Score)
			sum.Posted++
			continue
		}
		if err := p.LMS.GradeSubmission(ctx, p.Course.CourseID, a.LMSID, d.LMSUserID, *d.Score, comment); err != nil {
			slog.Error("grade post failed", "student", d.AnonID, "error", err)
			sum.Errored++
			continue
		}
		color.Green("posted %s = %.1f", d.AnonID, *d.Score)
		sum.Posted++
	}

	p.report(grades.AssignmentKey, sum)
	if sum.Errored > 0 {
		return sum, fmt.Errorf("%d grade(s) failed to post", sum.Errored)
	}
	return sum, nil
}

func (p *Poster) currentScores(ctx context.Context, assignmentID int64) (map[int64]*float64, error) {
	subs, err := p.LMS.ListSubmissions(ctx, p.Course.CourseID, assignmentID)
	if err != nil {
		return nil, err
	}
	scores := make(map[int64]*float64, len(subs))
	for _, s := range subs {
		scores[s.UserID] = s.Score
	}
	return scores, nil
}

// buildComment assembles the feedback comment posted alongside the
// grade. Empty sections are dropped.
func buildComment(d model.GradeDecision) string {
	var parts []string
	if d.WritingFeedback != "" {
		parts = append(parts, "Writing: "+d.WritingFeedback)
	}
	if d.DiscussionFeedback != "" {
		parts = append(parts, "Discussion: "+d.DiscussionFeedback)
	}
	if d.OverallNote != "" {
		parts = append(parts, d.OverallNote)
	}
	return strings.Join(parts, "\n\n")
}

func (p *Poster) report(key string, sum Summary) {
	fmt.Printf("\n%s grade posting for %s:\n", p.Course.Code, key)
	color.Green("  Posted:    %d", sum.Posted)
	fmt.Printf("  Unchanged: %d\n", sum.Unchanged)
	fmt.Printf("  Skipped:   %d\n", sum.Skipped)
	if sum.Errored > 0 {
		color.Red("  Errored:   %d", sum.Errored)
	}
}
