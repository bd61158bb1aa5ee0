// Package prompts builds the system and user prompts for quality
// scoring, student summaries, and discussion grading, and resolves
// rubrics from disk or built-in defaults.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coursepipe/coursepipe/internal/model"
)

// Default rubrics keyed by assignment type, used when no rubric file
// exists for the assignment.
var defaultRubrics = map[model.AssignmentType]string{
	model.TypeReflection: `Score the reflection 1-5 on depth and specificity:
5 = specific personal insight tied to course concepts, concrete examples
4 = genuine engagement with the prompt, some specificity
3 = complete but generic; restates the prompt or course material
2 = minimal effort, vague or very short
1 = off-topic or near-empty`,
	model.TypeQuiz: `Score the quiz answers 1-5 on understanding:
5 = accurate and complete answers showing clear understanding
4 = mostly accurate with minor gaps
3 = partial understanding, some answers missing or wrong
2 = substantial misunderstanding
1 = mostly blank or unresponsive`,
	model.TypeAssignment: `Score the work 1-5 on quality and effort:
5 = thorough, thoughtful, exceeds the prompt's requirements
4 = solid work meeting all requirements
3 = meets minimum requirements
2 = incomplete or careless
1 = token effort only`,
}

// Rubric resolves the scoring guide for an assignment: first
// <rubricDir>/<course>/<key>.txt, then <rubricDir>/<key>.txt, then the
// default for the assignment type.
func Rubric(rubricDir, course string, a model.Assignment) string {
	if rubricDir != "" {
		for _, path := range []string{
			filepath.Join(rubricDir, course, a.Key+".txt"),
			filepath.Join(rubricDir, a.Key+".txt"),
		} {
			if data, err := os.ReadFile(path); err == nil {
				return strings.TrimSpace(string(data))
			}
		}
	}
	if r, ok := defaultRubrics[a.Type]; ok {
		return r
	}
	return defaultRubrics[model.TypeAssignment]
}

// QualityResult is the JSON contract for the quality-scoring call.
type QualityResult struct {
	Quality int    `json:"quality"`
	Notes   string `json:"notes"`
}

// BuildQuality builds the system and user prompts for scoring one
// submission against a rubric.
func BuildQuality(rubric string, a model.Assignment, content string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You are reviewing student work for a university course. Score quality on a 1-5 scale.\n\n")
	sb.WriteString("RUBRIC:\n" + rubric + "\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"quality": <1-5>, "notes": "<one or two sentences on strengths and gaps>"}`)
	sb.WriteString("\n")

	user = fmt.Sprintf("ASSIGNMENT: %s\n\nSUBMISSION:\n%s", a.Title, content)
	return sb.String(), user
}

// BuildSummary builds the prompts for the per-student narrative
// summary over their full assignment history.
func BuildSummary(anonID string, lines []string) (system, user string) {
	system = "You are summarizing one student's work across a semester for their instructor. " +
		"Write 3-4 sentences of plain text covering their engagement pattern, " +
		"whether their work shows depth or just compliance, and how strong the overall signal is. " +
		"No preamble, no bullet points, no JSON."

	user = fmt.Sprintf("Student %s assignment history:\n%s", anonID, strings.Join(lines, "\n"))
	return system, user
}

// DiscussionResult is the JSON contract for the discussion-grading
// call.
type DiscussionResult struct {
	WritingScore       int    `json:"writingScore"`
	WritingFeedback    string `json:"writingFeedback"`
	DiscussionScore    int    `json:"discussionScore"`
	DiscussionFeedback string `json:"discussionFeedback"`
	OverallNote        string `json:"overallNote"`
}

// BuildDiscussion builds the prompts for grading one student's
// ai-discussion work: their writing (recovered from their partner's
// submission) and their discussion leadership (from their own).
func BuildDiscussion(src model.DiscussionSource) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You are grading a paired AI-discussion assignment. Each student wrote a short piece, ")
	sb.WriteString("then led a discussion of their partner's piece with AI-generated probing questions.\n\n")
	sb.WriteString("Score two dimensions 0-5 each. Grade generously: most students should earn 5/5 for genuine effort. ")
	sb.WriteString("Reserve lower scores for clearly minimal or missing work.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"writingScore": <0-5>, "writingFeedback": "<one sentence>", "discussionScore": <0-5>, "discussionFeedback": "<one sentence>", "overallNote": "<one sentence>"}`)
	sb.WriteString("\n")

	var ub strings.Builder
	if src.Writing != "" {
		ub.WriteString("STUDENT'S WRITING (entered by their partner):\n" + src.Writing + "\n\n")
	} else {
		ub.WriteString("STUDENT'S WRITING: not recovered (partner submission missing)\n\n")
	}
	if src.Summary != "" {
		ub.WriteString("THEIR DISCUSSION SUMMARY:\n" + src.Summary + "\n\n")
	} else {
		ub.WriteString("THEIR DISCUSSION SUMMARY: not submitted\n\n")
	}
	if len(src.AIQuestions) > 0 {
		ub.WriteString("AI PROBING QUESTIONS THEY WORKED THROUGH:\n")
		for _, q := range src.AIQuestions {
			ub.WriteString("- " + q + "\n")
		}
		ub.WriteString("\n")
	}
	if src.Iterations > 0 {
		ub.WriteString(fmt.Sprintf("DISCUSSION ITERATIONS: %d\n\n", src.Iterations))
	}
	if src.Takeaway != "" {
		ub.WriteString("THEIR TAKEAWAY:\n" + src.Takeaway + "\n")
	}
	return sb.String(), ub.String()
}
