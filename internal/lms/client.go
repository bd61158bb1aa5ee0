// Package lms is a thin authenticated client for the LMS REST API:
// paginated reads, grade writes, and the two-hop file download that
// strips credentials on the CDN redirect.
package lms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response from the LMS.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LMS API error (status %d): %s", e.Status, e.Body)
}

// Client issues sequential authenticated requests against one LMS.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// sleep is swapped out in tests.
	sleep func(time.Duration)

	// WriteDelay is inserted before every grade write.
	WriteDelay time.Duration
}

// New creates a client for the given API base URL and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: 60 * time.Second},
		sleep:      time.Sleep,
		WriteDelay: 200 * time.Millisecond,
	}
}

// Request performs a single authenticated request. Path may be
// absolute (a next-page URL) or relative to the API base.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, http.Header, error) {
	u := path
	if !strings.HasPrefix(path, "http") {
		u = c.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, resp.Header, nil
}

// RequestAllPages follows the Link rel="next" pagination chain,
// concatenating JSON array pages until exhausted.
func (c *Client) RequestAllPages(ctx context.Context, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	next := path
	for next != "" {
		body, headers, err := c.Request(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var page []json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse page: %w", err)
		}
		all = append(all, page...)
		next = nextLink(headers.Get("Link"))
	}
	return all, nil
}

// nextLink extracts the rel="next" URL from a Link header, or "".
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		seg := strings.Split(part, ";")
		if len(seg) < 2 {
			continue
		}
		if strings.Contains(seg[1], `rel="next"`) {
			return strings.Trim(strings.TrimSpace(seg[0]), "<>")
		}
	}
	return ""
}

func listPages[T any](c *Client, ctx context.Context, path string) ([]T, error) {
	raw, err := c.RequestAllPages(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, fmt.Errorf("parse list item: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ListCourses returns all courses visible to the token.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	return listPages[Course](c, ctx, "/courses?per_page=100")
}

// ListAssignments returns all assignments in a course.
func (c *Client) ListAssignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	return listPages[Assignment](c, ctx, fmt.Sprintf("/courses/%d/assignments?per_page=100", courseID))
}

// ListQuizzes returns all quizzes in a course.
func (c *Client) ListQuizzes(ctx context.Context, courseID int64) ([]Quiz, error) {
	return listPages[Quiz](c, ctx, fmt.Sprintf("/courses/%d/quizzes?per_page=100", courseID))
}

// ListSubmissions returns all submissions for an assignment, with
// attachments and comments included.
func (c *Client) ListSubmissions(ctx context.Context, courseID, assignmentID int64) ([]Submission, error) {
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions?per_page=100&include[]=submission_comments&include[]=attachments",
		courseID, assignmentID)
	return listPages[Submission](c, ctx, path)
}

// ListEnrollments returns enrollments of the given type
// (e.g. StudentEnrollment).
func (c *Client) ListEnrollments(ctx context.Context, courseID int64, enrollType string) ([]Enrollment, error) {
	path := fmt.Sprintf("/courses/%d/enrollments?per_page=100&type[]=%s", courseID, url.QueryEscape(enrollType))
	return listPages[Enrollment](c, ctx, path)
}

// GetQuiz returns a single quiz object.
func (c *Client) GetQuiz(ctx context.Context, courseID, quizID int64) (*Quiz, error) {
	body, _, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/courses/%d/quizzes/%d", courseID, quizID), nil)
	if err != nil {
		return nil, err
	}
	var q Quiz
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("parse quiz: %w", err)
	}
	return &q, nil
}

// downloadRaw implements the two-hop file fetch. The LMS 302-redirects
// file URLs to a pre-signed CDN URL that rejects the Authorization
// header, so the redirect target is re-fetched without credentials.
func (c *Client) downloadRaw(ctx context.Context, fileURL string) ([]byte, error) {
	noRedirect := &http.Client{
		Timeout: c.http.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, fmt.Errorf("redirect without location from %s", fileURL)
		}
		cdnReq, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return nil, fmt.Errorf("create CDN request: %w", err)
		}
		// No Authorization header: the pre-signed URL rejects it.
		cdnResp, err := c.http.Do(cdnReq)
		if err != nil {
			return nil, fmt.Errorf("CDN download: %w", err)
		}
		defer cdnResp.Body.Close()
		if cdnResp.StatusCode < 200 || cdnResp.StatusCode > 299 {
			body, _ := io.ReadAll(cdnResp.Body)
			return nil, &APIError{Status: cdnResp.StatusCode, Body: string(body)}
		}
		return io.ReadAll(cdnResp.Body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}

// DownloadFileContent fetches a file URL and returns its bytes as text.
func (c *Client) DownloadFileContent(ctx context.Context, fileURL string) (string, error) {
	data, err := c.downloadRaw(ctx, fileURL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DownloadFileAsBase64 fetches a file URL and returns base64 bytes,
// used when handing binaries to the model as vision input.
func (c *Client) DownloadFileAsBase64(ctx context.Context, fileURL string) (string, error) {
	data, err := c.downloadRaw(ctx, fileURL)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// GradeSubmission posts a score and optional comment to a student's
// submission for an assignment.
func (c *Client) GradeSubmission(ctx context.Context, courseID, assignmentID, userID int64, grade float64, comment string) error {
	c.sleep(c.WriteDelay)

	body := map[string]any{
		"submission": map[string]any{"posted_grade": grade},
	}
	if comment != "" {
		body["comment"] = map[string]any{"text_comment": comment}
	}
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID)
	_, _, err := c.Request(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	slog.Debug("posted grade", "user", userID, "assignment", assignmentID, "grade", grade)
	return nil
}
