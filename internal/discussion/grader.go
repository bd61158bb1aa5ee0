package discussion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/llm"
	"github.com/coursepipe/coursepipe/internal/llm/prompts"
	"github.com/coursepipe/coursepipe/internal/model"
	"github.com/coursepipe/coursepipe/internal/store"
)

// Grader grades every ai-discussion assignment flagged in the
// submission index.
type Grader struct {
	LLM    *llm.Client
	Cache  *store.Cache
	Course *config.Course
	Layout datadir.Layout
}

// Run grades each assignment the index flags as hasAiDiscussion.
func (g *Grader) Run(ctx context.Context, only string) error {
	index := make(map[string]model.IndexEntry)
	if err := datadir.ReadJSON(g.Layout.SubmissionIndex(g.Course.Code), &index); err != nil {
		return fmt.Errorf("no submission index (run download first): %w", err)
	}

	idmap, err := identity.Load(g.Layout.IdentityMap(g.Course.Code), g.Course.Prefix)
	if err != nil {
		return err
	}

	var failed int
	for _, a := range g.Course.Assignments {
		if only != "" && a.Key != only {
			continue
		}
		entry, ok := index[a.Key]
		if !ok || !entry.HasAIDiscussion {
			continue
		}
		if err := g.gradeAssignment(ctx, idmap, a); err != nil {
			slog.Error("discussion grading failed", "assignment", a.Key, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d discussion assignment(s) failed to grade", failed)
	}
	return nil
}

func (g *Grader) gradeAssignment(ctx context.Context, idmap *identity.Map, a model.Assignment) error {
	shard := make(map[string]model.Submission)
	if err := datadir.ReadJSON(g.Layout.Submissions(g.Course.Code, a.Key), &shard); err != nil {
		return err
	}

	graph := BuildPartnerGraph(idmap, shard)
	grading := model.DiscussionGrading{
		AssignmentKey: a.Key,
		Title:         a.Title,
		Results:       make(map[string]model.DiscussionResult),
		Sources:       make(map[string]model.DiscussionSource),
	}

	for _, anon := range graph.Students() {
		src := assembleSource(anon, graph, shard)
		grading.Sources[anon] = src
		grading.Results[anon] = g.gradeStudent(ctx, anon, src)
	}

	grading.GradedAt = time.Now().UTC().Format(time.RFC3339)
	return datadir.WriteJSON(g.Layout.Grading(g.Course.Code, a.Key), grading)
}

// assembleSource gathers one student's primary material. Their writing
// comes from their partner's submission; their discussion leadership
// comes from their own.
func assembleSource(anon string, graph PartnerGraph, shard map[string]model.Submission) model.DiscussionSource {
	src := model.DiscussionSource{AnonID: anon}

	if partner, ok := graph.PartnerOf[anon]; ok {
		src.Partner = partner
	}

	// The submitter who discussed this student's writing holds it.
	if discusser, ok := graph.DiscussedBy[anon]; ok {
		if sub, ok := shard[discusser]; ok && sub.Payload.ActivityData != nil {
			src.Writing = collectWriting(sub.Payload.ActivityData)
		}
	}

	// Discussion leadership lives in the student's own submission.
	if sub, ok := shard[anon]; ok && sub.Payload.ActivityData != nil {
		for _, r := range sub.Payload.ActivityData.Responses {
			switch r.QuestionType {
			case "ai-discussion":
				if r.Summary != "" {
					src.Summary = r.Summary
				}
				if len(r.AIQuestions) > 0 {
					src.AIQuestions = r.AIQuestions
				}
				if r.Iterations > src.Iterations {
					src.Iterations = r.Iterations
				}
			case "open-ended":
				if r.Answer != "" {
					src.Takeaway = r.Answer
				}
			}
		}
	}
	return src
}

// collectWriting extracts the partner-entered writing: the entry text
// under each ai-discussion question plus any embedded context.
func collectWriting(a *model.ActivityData) string {
	var parts []string
	if a.Context != "" {
		parts = append(parts, a.Context)
	}
	for _, r := range a.Responses {
		if r.QuestionType == "ai-discussion" && strings.TrimSpace(r.Entry) != "" {
			parts = append(parts, r.Entry)
		}
	}
	return strings.Join(parts, "\n\n")
}

// gradeStudent calls the model for one grading record, falling back to
// generous placeholders when the call fails or a side has no data.
func (g *Grader) gradeStudent(ctx context.Context, anon string, src model.DiscussionSource) model.DiscussionResult {
	result := model.DiscussionResult{
		AnonID:        anon,
		Partner:       src.Partner,
		HasWriting:    src.Writing != "",
		HasDiscussion: src.Summary != "" || len(src.AIQuestions) > 0,
	}

	system, user := prompts.BuildDiscussion(src)
	raw, err := g.cachedComplete(ctx, system, user)
	if err != nil {
		slog.Warn("discussion grading call failed", "student", anon, "error", err)
		result.WritingScore = 5
		result.DiscussionScore = 5
		result.WritingFeedback = "Auto-grading failed — manual review needed"
		result.DiscussionFeedback = "Auto-grading failed — manual review needed"
		result.TotalScore = 10
		return result
	}

	var parsed prompts.DiscussionResult
	if err := llm.ParseJSON(raw, &parsed); err != nil {
		slog.Warn("discussion grading response unparseable", "student", anon, "error", err)
		result.WritingScore = 5
		result.DiscussionScore = 5
		result.WritingFeedback = "Auto-grading failed — manual review needed"
		result.DiscussionFeedback = "Auto-grading failed — manual review needed"
		result.TotalScore = 10
		return result
	}

	result.WritingScore = llm.Clamp(parsed.WritingScore, 0, 5)
	result.WritingFeedback = parsed.WritingFeedback
	result.DiscussionScore = llm.Clamp(parsed.DiscussionScore, 0, 5)
	result.DiscussionFeedback = parsed.DiscussionFeedback
	result.OverallNote = parsed.OverallNote

	// A side with no recovered data falls back to a neutral 3.
	if !result.HasWriting {
		result.WritingScore = 3
		result.WritingFeedback = "No writing data recovered (partner submission missing) — suggested 3/5"
	}
	if !result.HasDiscussion {
		result.DiscussionScore = 3
		result.DiscussionFeedback = "No discussion data recovered — suggested 3/5"
	}

	result.TotalScore = result.WritingScore + result.DiscussionScore
	if result.TotalScore > 10 {
		result.TotalScore = 10
	}
	return result
}

func (g *Grader) cachedComplete(ctx context.Context, system, user string) (string, error) {
	key := store.Key(g.LLM.GradeModel, system, user)
	if g.Cache != nil {
		if cached, err := g.Cache.Get(key); err == nil && cached != "" {
			return cached, nil
		}
	}
	raw, err := g.LLM.Complete(ctx, g.LLM.GradeModel, system, user, llm.MaxTokensDiscussion, true)
	if err != nil {
		return "", err
	}
	if g.Cache != nil {
		if err := g.Cache.Put(key, g.LLM.GradeModel, raw); err != nil {
			slog.Warn("cache write failed", "error", err)
		}
	}
	return raw, nil
}
