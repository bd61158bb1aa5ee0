// Package config loads course definitions, the assignments
// source-of-truth CSV, and process credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/kelseyhightower/envconfig"

	"github.com/coursepipe/coursepipe/internal/model"
)

// Credentials are the process-wide secrets, read once at startup.
type Credentials struct {
	LMSBaseURL string `envconfig:"LMS_BASE_URL"`
	LMSToken   string `envconfig:"LMS_TOKEN"`
	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL"`
	DataDir    string `envconfig:"DATA_DIR"`
}

// LoadCredentials reads COURSEPIPE_-prefixed environment variables.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := envconfig.Process("coursepipe", &c); err != nil {
		return c, fmt.Errorf("read credentials from environment: %w", err)
	}
	return c, nil
}

// Course is one configured course: its LMS linkage, roster prefix, and
// assignment list.
type Course struct {
	Code        string             `json:"code"`
	Prefix      string             `json:"prefix"`
	Semester    string             `json:"semester"`
	BaseURL     string             `json:"baseUrl"`
	RubricDir   string             `json:"rubricDir,omitempty"`
	CourseID    int64              `json:"-"`
	Assignments []model.Assignment `json:"-"`
}

// Find returns the assignment with the given key.
func (c *Course) Find(key string) (model.Assignment, bool) {
	for _, a := range c.Assignments {
		if a.Key == key {
			return a, true
		}
	}
	return model.Assignment{}, false
}

var courseIDRe = regexp.MustCompile(`/courses/(\d+)`)

// courseIDFromURL extracts the numeric course id embedded in an LMS
// course URL.
func courseIDFromURL(baseURL string) (int64, error) {
	m := courseIDRe.FindStringSubmatch(baseURL)
	if m == nil {
		return 0, fmt.Errorf("no course id in URL %q", baseURL)
	}
	return strconv.ParseInt(m[1], 10, 64)
}

// LoadCourse reads <configDir>/<code>.json and its assignments CSV at
// <configDir>/<code>-assignments.csv, and validates both.
func LoadCourse(configDir, code string) (*Course, error) {
	data, err := os.ReadFile(filepath.Join(configDir, code+".json"))
	if err != nil {
		return nil, fmt.Errorf("read course config: %w", err)
	}
	var course Course
	if err := json.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("parse course config: %w", err)
	}
	if course.Code == "" {
		course.Code = code
	}
	if course.Prefix == "" {
		return nil, fmt.Errorf("course %s: missing anonymous id prefix", code)
	}

	course.CourseID, err = courseIDFromURL(course.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", code, err)
	}

	course.Assignments, err = loadAssignmentsCSV(filepath.Join(configDir, code+"-assignments.csv"))
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", code, err)
	}
	if err := validateAssignments(course.Assignments); err != nil {
		return nil, fmt.Errorf("course %s: %w", code, err)
	}
	return &course, nil
}

func loadAssignmentsCSV(path string) ([]model.Assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open assignments CSV: %w", err)
	}
	defer f.Close()

	var assignments []model.Assignment
	if err := gocsv.UnmarshalFile(f, &assignments); err != nil {
		return nil, fmt.Errorf("parse assignments CSV: %w", err)
	}
	return assignments, nil
}

// validateAssignments enforces the CSV invariants: unique keys and
// non-decreasing due dates within each sprint.
func validateAssignments(assignments []model.Assignment) error {
	seen := make(map[string]bool, len(assignments))
	bySprint := make(map[int][]model.Assignment)
	for _, a := range assignments {
		if a.Key == "" {
			return fmt.Errorf("assignment with empty key")
		}
		if seen[a.Key] {
			return fmt.Errorf("duplicate assignment key %q", a.Key)
		}
		seen[a.Key] = true
		if a.Sprint > 0 {
			bySprint[a.Sprint] = append(bySprint[a.Sprint], a)
		}
	}
	for sprint, list := range bySprint {
		if !sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Due < list[j].Due }) {
			// Dates are YYYY-MM-DD so string order is date order.
			return fmt.Errorf("sprint %d assignments not ordered by due date", sprint)
		}
	}
	return nil
}
