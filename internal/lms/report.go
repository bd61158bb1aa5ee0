package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Quiz report generation is asynchronous: requested -> (polling) ->
// ready | failed | timed-out.
var (
	// ErrReportTimeout means the report did not become ready within
	// the polling window.
	ErrReportTimeout = errors.New("quiz report timed out")
	// ErrReportFailed means the LMS marked the report workflow failed.
	ErrReportFailed = errors.New("quiz report generation failed")
)

// ReportOptions controls the quiz-report polling loop.
type ReportOptions struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// DefaultReportOptions matches the production cadence: 2 s polls for
// up to 60 s.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{PollInterval: 2 * time.Second, MaxWait: 60 * time.Second}
}

// GenerateQuizReport requests a student-analysis report for a quiz and
// returns the report CSV text once the file is ready.
func (c *Client) GenerateQuizReport(ctx context.Context, courseID, quizID int64, opts ReportOptions) (string, error) {
	if opts.PollInterval == 0 {
		opts = DefaultReportOptions()
	}

	path := fmt.Sprintf("/courses/%d/quizzes/%d/reports", courseID, quizID)
	body := map[string]any{
		"quiz_report": map[string]any{"report_type": "student_analysis"},
		"include":     []string{"file", "progress"},
	}
	raw, _, err := c.Request(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", fmt.Errorf("request quiz report: %w", err)
	}
	var report quizReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return "", fmt.Errorf("parse quiz report: %w", err)
	}

	deadline := time.Now().Add(opts.MaxWait)
	for report.File.URL == "" {
		switch report.WorkflowState {
		case "failed":
			return "", ErrReportFailed
		}
		if time.Now().After(deadline) {
			return "", ErrReportTimeout
		}
		c.sleep(opts.PollInterval)

		statusPath := fmt.Sprintf("%s/%d?include[]=file", path, report.ID)
		raw, _, err := c.Request(ctx, http.MethodGet, statusPath, nil)
		if err != nil {
			return "", fmt.Errorf("poll quiz report: %w", err)
		}
		if err := json.Unmarshal(raw, &report); err != nil {
			return "", fmt.Errorf("parse quiz report status: %w", err)
		}
		slog.Debug("quiz report poll", "quiz", quizID, "state", report.WorkflowState)
	}

	return c.DownloadFileContent(ctx, report.File.URL)
}
