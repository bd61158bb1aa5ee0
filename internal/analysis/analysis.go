// Package analysis runs the per-submission quality pass and the
// per-student summary pass, producing analysis.json.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/content"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/llm"
	"github.com/coursepipe/coursepipe/internal/llm/prompts"
	"github.com/coursepipe/coursepipe/internal/model"
	"github.com/coursepipe/coursepipe/internal/store"
)

// minAnalyzableLen is the shortest content worth sending to the model.
const minAnalyzableLen = 20

// Engine scores submission quality and writes course analysis
// snapshots.
type Engine struct {
	LLM    *llm.Client
	Cache  *store.Cache
	Course *config.Course
	Layout datadir.Layout
}

// Run executes the quality pass and the summary pass over every
// downloaded assignment, then writes analysis.json.
func (e *Engine) Run(ctx context.Context, only string) error {
	idmap, err := identity.Load(e.Layout.IdentityMap(e.Course.Code), e.Course.Prefix)
	if err != nil {
		return err
	}

	index := make(map[string]model.IndexEntry)
	if err := datadir.ReadJSON(e.Layout.SubmissionIndex(e.Course.Code), &index); err != nil {
		return fmt.Errorf("no submission index (run download first): %w", err)
	}

	analysis := model.Analysis{
		Assignments:      make(map[string]model.AssignmentAnalysis),
		StudentSummaries: make(map[string]string),
	}
	// A scoped run merges into the existing snapshot so every other
	// assignment's rows and the student summaries survive.
	if only != "" && datadir.Exists(e.Layout.Analysis(e.Course.Code)) {
		if err := datadir.ReadJSON(e.Layout.Analysis(e.Course.Code), &analysis); err != nil {
			return fmt.Errorf("read existing analysis: %w", err)
		}
		if analysis.Assignments == nil {
			analysis.Assignments = make(map[string]model.AssignmentAnalysis)
		}
		if analysis.StudentSummaries == nil {
			analysis.StudentSummaries = make(map[string]string)
		}
	}
	analysis.RunID = uuid.NewString()

	for _, a := range e.Course.Assignments {
		if only != "" && a.Key != only {
			continue
		}
		entry, downloaded := index[a.Key]
		if !downloaded {
			continue
		}
		if entry.HasAIDiscussion && !slices.Contains(analysis.Discussions, a.Key) {
			analysis.Discussions = append(analysis.Discussions, a.Key)
		}

		aa, err := e.analyzeAssignment(ctx, a)
		if err != nil {
			slog.Error("assignment analysis failed", "assignment", a.Key, "error", err)
			continue
		}
		analysis.Assignments[a.Key] = aa
	}

	if only == "" {
		e.summarizeStudents(ctx, idmap, &analysis)
	}

	analysis.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return datadir.WriteJSON(e.Layout.Analysis(e.Course.Code), analysis)
}

// analyzeAssignment runs the quality pass for one assignment's shard.
func (e *Engine) analyzeAssignment(ctx context.Context, a model.Assignment) (model.AssignmentAnalysis, error) {
	aa := model.AssignmentAnalysis{
		Title:    a.Title,
		Sprint:   a.Sprint,
		Week:     a.Week,
		Due:      a.Due,
		Students: make(map[string]model.StudentAnalysis),
	}

	shard := make(map[string]model.Submission)
	if err := datadir.ReadJSON(e.Layout.Submissions(e.Course.Code, a.Key), &shard); err != nil {
		return aa, err
	}

	rubric := prompts.Rubric(e.Course.RubricDir, e.Course.Code, a)

	for anon, sub := range shard {
		row := model.StudentAnalysis{
			Participation: sub.Participation,
			ContentType:   string(sub.Payload.Type),
			AnalyzedAt:    time.Now().UTC().Format(time.RFC3339),
		}

		if reason, scorable := scorable(sub.Payload); !scorable {
			row.QualityNotes = reason
		} else {
			quality, notes := e.scoreQuality(ctx, rubric, a, sub.Payload.Content)
			row.Quality = quality
			row.QualityNotes = notes
		}
		aa.Students[anon] = row
	}
	return aa, nil
}

// scorable reports whether a payload can be quality-scored, and the
// notes reason when it cannot.
func scorable(p model.Payload) (string, bool) {
	switch p.Type {
	case model.ContentText, model.ContentConversation:
		if len(p.Content) < minAnalyzableLen {
			return "content too short to score", false
		}
		return "", true
	case model.ContentImage:
		return "image submission, not scored", false
	case model.ContentPDF:
		return "PDF submission, not scored", false
	case model.ContentURL:
		return "URL submission, not scored", false
	case model.ContentAIDiscussion:
		return "graded by the discussion pass", false
	case model.ContentNone:
		return "no submission content", false
	}
	return "unscorable content type", false
}

// scoreQuality asks the model for a 1-5 quality score, consulting the
// cache first. A failed call records a null score with the error in
// notes; a malformed score clamps around a default of 3.
func (e *Engine) scoreQuality(ctx context.Context, rubric string, a model.Assignment, text string) (*int, string) {
	system, user := prompts.BuildQuality(rubric, a, text)
	raw, err := e.cachedComplete(ctx, e.LLM.AnalysisModel, system, user, llm.MaxTokensGrading, true)
	if err != nil {
		slog.Warn("quality call failed", "assignment", a.Key, "error", err)
		return nil, fmt.Sprintf("analysis failed: %v", err)
	}

	var result prompts.QualityResult
	if err := llm.ParseJSON(raw, &result); err != nil {
		q := 3
		return &q, "score defaulted: model response was not parseable"
	}
	q := llm.Clamp(result.Quality, 1, 5)
	return &q, content.Truncate(result.Notes, 500)
}

// summarizeStudents generates the 3-4 sentence per-student narrative
// from that student's full assignment history.
func (e *Engine) summarizeStudents(ctx context.Context, idmap *identity.Map, analysis *model.Analysis) {
	keys := make([]string, 0, len(analysis.Assignments))
	for k := range analysis.Assignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, anon := range idmap.AnonIDs() {
		var lines []string
		for _, key := range keys {
			aa := analysis.Assignments[key]
			row, ok := aa.Students[anon]
			if !ok {
				continue
			}
			q := "-"
			if row.Quality != nil {
				q = fmt.Sprintf("%d", *row.Quality)
			}
			lines = append(lines, fmt.Sprintf("%s: participation %d, quality %s (%s)",
				aa.Title, row.Participation, q, row.ContentType))
		}
		if len(lines) == 0 {
			continue
		}

		system, user := prompts.BuildSummary(anon, lines)
		raw, err := e.cachedComplete(ctx, e.LLM.AnalysisModel, system, user, llm.MaxTokensSummary, false)
		if err != nil {
			slog.Warn("summary call failed", "student", anon, "error", err)
			continue
		}
		analysis.StudentSummaries[anon] = content.Truncate(strings.TrimSpace(raw), 400)
	}
}

// cachedComplete is Complete with a sqlite cache in front, so re-runs
// over unchanged content are free.
func (e *Engine) cachedComplete(ctx context.Context, mdl, system, user string, maxTokens int, jsonMode bool) (string, error) {
	key := store.Key(mdl, system, user)
	if e.Cache != nil {
		if cached, err := e.Cache.Get(key); err == nil && cached != "" {
			return cached, nil
		}
	}
	raw, err := e.LLM.Complete(ctx, mdl, system, user, maxTokens, jsonMode)
	if err != nil {
		return "", err
	}
	if e.Cache != nil {
		if err := e.Cache.Put(key, mdl, raw); err != nil {
			slog.Warn("cache write failed", "error", err)
		}
	}
	return raw, nil
}
