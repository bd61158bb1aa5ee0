package model

import "time"

// ContentType tags the variant of a submission's content payload.
type ContentType string

const (
	ContentText         ContentType = "text"
	ContentConversation ContentType = "conversation"
	ContentAIDiscussion ContentType = "ai-discussion"
	ContentImage        ContentType = "image"
	ContentPDF          ContentType = "pdf"
	ContentURL          ContentType = "url"
	ContentFile         ContentType = "file"
	ContentNone         ContentType = "none"
)

// MaxContentLen returns the stored-content cap for a content type.
// Types without an explicit cap share the plain-text limit.
func MaxContentLen(t ContentType) int {
	switch t {
	case ContentConversation:
		return 15000
	case ContentAIDiscussion:
		return 10000
	default:
		return 5000
	}
}

// ConversationMeta describes an extracted chat transcript, including
// whatever session details the export format carried.
type ConversationMeta struct {
	Format     string `json:"format"`
	UserTurns  int    `json:"userTurns"`
	UserWords  int    `json:"userWords"`
	TotalTurns int    `json:"totalTurns"`

	// Dojo exports name the session and its construct.
	Construct   string `json:"construct,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`

	// Turns exports carry a title, takeaways, and context.
	Title        string   `json:"title,omitempty"`
	KeyTakeaways []string `json:"keyTakeaways,omitempty"`
	Context      string   `json:"context,omitempty"`
}

// Payload is the normalized content of a submission artifact.
// Content is empty if and only if Type is ContentNone.
type Payload struct {
	Type         ContentType       `json:"contentType"`
	Content      string            `json:"content,omitempty"`
	Filename     string            `json:"filename,omitempty"`
	MimeType     string            `json:"mimeType,omitempty"`
	FileURL      string            `json:"fileUrl,omitempty"`
	Conversation *ConversationMeta `json:"conversation,omitempty"`
	// ActivityData preserves the parsed activity-engine export for
	// ai-discussion payloads so the grader can walk its responses.
	ActivityData *ActivityData `json:"activityData,omitempty"`
}

// ActivityData is the structured export of an in-browser activity.
type ActivityData struct {
	ActivityID string             `json:"activityId"`
	AuthorName string             `json:"authorName,omitempty"`
	Context    string             `json:"context,omitempty"`
	Responses  []ActivityResponse `json:"responses"`
}

// ActivityResponse is one answered question inside an activity export.
type ActivityResponse struct {
	QuestionID   string   `json:"questionId,omitempty"`
	QuestionType string   `json:"questionType,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Entry        string   `json:"entry,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	AIQuestions  []string `json:"aiQuestions,omitempty"`
	Iterations   int      `json:"iterations,omitempty"`
	Answer       string   `json:"answer,omitempty"`
}

// WorkflowState is the LMS-side lifecycle of a submission.
type WorkflowState string

const (
	WorkflowUnsubmitted   WorkflowState = "unsubmitted"
	WorkflowSubmitted     WorkflowState = "submitted"
	WorkflowGraded        WorkflowState = "graded"
	WorkflowPendingReview WorkflowState = "pending_review"
)

// Submission is the latest attempt by one student on one assignment.
type Submission struct {
	AnonID         string        `json:"anonId"`
	AssignmentKey  string        `json:"assignmentKey"`
	Workflow       WorkflowState `json:"workflowState"`
	SubmittedAt    *time.Time    `json:"submittedAt,omitempty"`
	Late           bool          `json:"late"`
	Missing        bool          `json:"missing"`
	Score          *float64      `json:"score,omitempty"`
	SubmissionType string        `json:"submissionType,omitempty"`
	Participation  int           `json:"participation"`
	Payload        Payload       `json:"payload"`
}

// AssignmentType distinguishes how an assignment is paced and graded.
type AssignmentType string

const (
	TypeAssignment AssignmentType = "assignment"
	TypeQuiz       AssignmentType = "quiz"
	TypeReflection AssignmentType = "reflection"
	TypeBridge     AssignmentType = "bridge"
	TypeEngagement AssignmentType = "engagement"
)

// Assignment is one graded item in a course, sourced from the
// assignments CSV and never mutated by the pipeline.
type Assignment struct {
	Key        string         `json:"key" csv:"key"`
	LMSID      int64          `json:"lmsId" csv:"lms_id"`
	Title      string         `json:"title" csv:"title"`
	Due        string         `json:"due" csv:"due"` // YYYY-MM-DD, no time component
	Type       AssignmentType `json:"type" csv:"type"`
	LMSType    string         `json:"lmsType" csv:"lms_type"` // assignment or quiz
	Points     float64        `json:"points" csv:"points"`
	Sprint     int            `json:"sprint" csv:"sprint"`
	Week       int            `json:"week" csv:"week"`
	AuthorPage string         `json:"authorPage,omitempty" csv:"author_page"`
}

// IsQuiz reports whether the assignment lives behind the quiz API.
func (a Assignment) IsQuiz() bool { return a.LMSType == "quiz" }

// IndexEntry is the per-assignment record in submission-index.json.
type IndexEntry struct {
	Title            string  `json:"title"`
	Points           float64 `json:"points"`
	Sprint           int     `json:"sprint"`
	Week             int     `json:"week"`
	HasAIDiscussion  bool    `json:"hasAiDiscussion"`
	TotalSubmissions int     `json:"totalSubmissions"`
	DownloadedAt     string  `json:"downloadedAt"`
}

// StudentAnalysis is one row of an assignment's analysis map.
type StudentAnalysis struct {
	Participation int    `json:"participation"`
	Quality       *int   `json:"quality"`
	QualityNotes  string `json:"qualityNotes"`
	ContentType   string `json:"contentType"`
	AnalyzedAt    string `json:"analyzedAt"`
}

// AssignmentAnalysis is the analysis record for one assignment.
type AssignmentAnalysis struct {
	Title    string                     `json:"title"`
	Sprint   int                        `json:"sprint"`
	Week     int                        `json:"week"`
	Due      string                     `json:"due"`
	Students map[string]StudentAnalysis `json:"students"`
}

// Analysis is the full analysis.json snapshot for a course.
type Analysis struct {
	Assignments      map[string]AssignmentAnalysis `json:"assignments"`
	Discussions      []string                      `json:"discussions"`
	StudentSummaries map[string]string             `json:"studentSummaries"`
	LastUpdated      string                        `json:"lastUpdated"`
	RunID            string                        `json:"runId"`
}

// DiscussionResult is one student's suggested grade for an
// ai-discussion assignment.
type DiscussionResult struct {
	AnonID             string `json:"anonId"`
	Partner            string `json:"partner,omitempty"`
	WritingScore       int    `json:"writingScore"`
	WritingFeedback    string `json:"writingFeedback"`
	DiscussionScore    int    `json:"discussionScore"`
	DiscussionFeedback string `json:"discussionFeedback"`
	OverallNote        string `json:"overallNote"`
	TotalScore         int    `json:"totalScore"`
	HasWriting         bool   `json:"hasWriting"`
	HasDiscussion      bool   `json:"hasDiscussion"`
}

// DiscussionSource is the primary material a DiscussionResult was
// graded from, surfaced on the review dashboard.
type DiscussionSource struct {
	AnonID      string   `json:"anonId"`
	Partner     string   `json:"partner,omitempty"`
	Writing     string   `json:"writing,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	AIQuestions []string `json:"aiQuestions,omitempty"`
	Iterations  int      `json:"iterations"`
	Takeaway    string   `json:"takeaway,omitempty"`
}

// DiscussionGrading is the grading/<key>.json snapshot.
type DiscussionGrading struct {
	AssignmentKey string                      `json:"assignmentKey"`
	Title         string                      `json:"title"`
	Results       map[string]DiscussionResult `json:"results"`
	Sources       map[string]DiscussionSource `json:"sources"`
	GradedAt      string                      `json:"gradedAt"`
}

// GradeDecision is one instructor-confirmed grade from the dashboard
// round trip.
type GradeDecision struct {
	AnonID             string   `json:"anonId"`
	LMSUserID          int64    `json:"lmsUserId,omitempty"`
	Score              *float64 `json:"score"`
	WritingFeedback    string   `json:"writingFeedback,omitempty"`
	DiscussionFeedback string   `json:"discussionFeedback,omitempty"`
	OverallNote        string   `json:"overallNote,omitempty"`
}

// GradeFile is the JSON an instructor downloads from the review
// dashboard and feeds back to post-grades.
type GradeFile struct {
	AssignmentKey string          `json:"assignmentKey"`
	Course        string          `json:"course"`
	Decisions     []GradeDecision `json:"decisions"`
}
