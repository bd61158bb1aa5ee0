package lms

import "time"

// User is an enrolled LMS user.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SortableName string `json:"sortable_name"`
}

// Enrollment links a user to a course with a role.
type Enrollment struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	User User   `json:"user"`
}

// Course is an LMS course as the API returns it.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignment is an LMS assignment object.
type Assignment struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	DueAt          *string  `json:"due_at"`
	PointsPossible *float64 `json:"points_possible"`
}

// Quiz is an LMS quiz object. Classic quizzes carry the id of the
// shadow assignment that holds their submissions.
type Quiz struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	AssignmentID int64  `json:"assignment_id"`
}

// Attachment is a file attached to a submission.
type Attachment struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content-type"`
	URL         string `json:"url"`
}

// Submission is an LMS submission object.
type Submission struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	Body           string       `json:"body"`
	URL            string       `json:"url"`
	Score          *float64     `json:"score"`
	SubmittedAt    *time.Time   `json:"submitted_at"`
	WorkflowState  string       `json:"workflow_state"`
	SubmissionType string       `json:"submission_type"`
	Late           bool         `json:"late"`
	Missing        bool         `json:"missing"`
	Attachments    []Attachment `json:"attachments"`
}

// quizReport is the report object returned by the student-analysis
// report endpoint; File.URL is empty until the report is generated.
type quizReport struct {
	ID            int64  `json:"id"`
	ReportType    string `json:"report_type"`
	WorkflowState string `json:"workflow_state"`
	File          struct {
		URL string `json:"url"`
	} `json:"file"`
	ProgressURL string `json:"progress_url"`
}
