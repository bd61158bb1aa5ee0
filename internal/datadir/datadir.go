// Package datadir owns the on-disk layout of the pipeline's private
// data directory and its JSON read/write helpers. One write per shard;
// interruption never corrupts previously persisted files.
package datadir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves paths inside one data directory.
type Layout struct {
	Root string
}

func New(root string) Layout { return Layout{Root: root} }

func (l Layout) CourseDir(course string) string {
	return filepath.Join(l.Root, course)
}

func (l Layout) IdentityMap(course string) string {
	return filepath.Join(l.Root, course, "id-mapping.json")
}

func (l Layout) SubmissionIndex(course string) string {
	return filepath.Join(l.Root, course, "submission-index.json")
}

func (l Layout) Submissions(course, assignmentKey string) string {
	return filepath.Join(l.Root, course, "submissions", assignmentKey+".json")
}

func (l Layout) Analysis(course string) string {
	return filepath.Join(l.Root, course, "analysis.json")
}

func (l Layout) Grading(course, assignmentKey string) string {
	return filepath.Join(l.Root, course, "grading", assignmentKey+".json")
}

func (l Layout) CacheDB(course string) string {
	return filepath.Join(l.Root, course, "llm-cache.db")
}

func (l Layout) DashboardDir() string {
	return filepath.Join(l.Root, "dashboard")
}

func (l Layout) CourseDashboard(course string) string {
	return filepath.Join(l.Root, "dashboard", course+"-dashboard.html")
}

func (l Layout) DiscussionDashboard(course, assignmentKey string) string {
	return filepath.Join(l.Root, "dashboard", fmt.Sprintf("%s-%s-discussion.html", course, assignmentKey))
}

func (l Layout) AnonymousDir(course string) string {
	return filepath.Join(l.Root, "anonymous", course)
}

// ReadJSON loads a JSON file into out. Returns os.ErrNotExist wrapped
// when the file is missing.
func ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON, creating parent directories.
// The write goes through a temp file and rename so a crash never
// leaves a half-written shard.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
