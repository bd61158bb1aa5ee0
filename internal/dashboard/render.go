// Package dashboard renders the self-contained instructor HTML
// dashboards: a course overview and a per-discussion grading review.
// State is serialized once into a script block; all interaction is
// client-side.
package dashboard

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"

	"github.com/coursepipe/coursepipe/internal/config"
	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/model"
)

// Renderer builds dashboards from downloaded and analyzed data.
type Renderer struct {
	Course *config.Course
	Layout datadir.Layout
}

// StudentProfile is one student's row in the overview state.
type StudentProfile struct {
	AnonID      string                           `json:"anonId"`
	Name        string                           `json:"name"`
	Summary     string                           `json:"summary,omitempty"`
	Assignments map[string]model.StudentAnalysis `json:"assignments"`
}

// overviewState is the JSON embedded in the overview dashboard.
type overviewState struct {
	Course      string              `json:"course"`
	Semester    string              `json:"semester"`
	GeneratedAt string              `json:"generatedAt"`
	Assignments []assignmentMeta    `json:"assignments"`
	Students    []StudentProfile    `json:"students"`
}

type assignmentMeta struct {
	Key    string  `json:"key"`
	Title  string  `json:"title"`
	Sprint int     `json:"sprint"`
	Week   int     `json:"week"`
	Due    string  `json:"due"`
	Points float64 `json:"points"`
}

// discussionState is the JSON embedded in a discussion review page.
type discussionState struct {
	Course        string                      `json:"course"`
	CourseID      int64                       `json:"courseId"`
	AssignmentKey string                      `json:"assignmentKey"`
	AssignmentID  int64                       `json:"assignmentId"`
	Title         string                      `json:"title"`
	Rows          []discussionRow             `json:"rows"`
	Results       map[string]model.DiscussionResult `json:"results"`
}

type discussionRow struct {
	AnonID    string                 `json:"anonId"`
	Name      string                 `json:"name"`
	LMSUserID int64                  `json:"lmsUserId"`
	Source    model.DiscussionSource `json:"source"`
}

// RenderAll writes the course overview and one review page per graded
// discussion assignment.
func (r *Renderer) RenderAll(generatedAt string) error {
	if err := r.RenderOverview(generatedAt); err != nil {
		return err
	}
	for _, a := range r.Course.Assignments {
		path := r.Layout.Grading(r.Course.Code, a.Key)
		if !datadir.Exists(path) {
			continue
		}
		if err := r.RenderDiscussion(a); err != nil {
			return err
		}
	}
	return nil
}

// RenderOverview builds <course>-dashboard.html from analysis.json.
func (r *Renderer) RenderOverview(generatedAt string) error {
	var analysis model.Analysis
	if err := datadir.ReadJSON(r.Layout.Analysis(r.Course.Code), &analysis); err != nil {
		return fmt.Errorf("no analysis snapshot (run analyze first): %w", err)
	}
	idmap, err := identity.Load(r.Layout.IdentityMap(r.Course.Code), r.Course.Prefix)
	if err != nil {
		return err
	}

	state := overviewState{
		Course:      r.Course.Code,
		Semester:    r.Course.Semester,
		GeneratedAt: generatedAt,
	}

	for _, a := range r.Course.Assignments {
		if _, ok := analysis.Assignments[a.Key]; !ok {
			continue
		}
		state.Assignments = append(state.Assignments, assignmentMeta{
			Key: a.Key, Title: a.Title, Sprint: a.Sprint, Week: a.Week,
			Due: a.Due, Points: a.Points,
		})
	}
	sort.SliceStable(state.Assignments, func(i, j int) bool {
		if state.Assignments[i].Sprint != state.Assignments[j].Sprint {
			return state.Assignments[i].Sprint < state.Assignments[j].Sprint
		}
		return state.Assignments[i].Week < state.Assignments[j].Week
	})

	for _, anon := range idmap.SortedByName() {
		name, _ := idmap.NameFor(anon)
		profile := StudentProfile{
			AnonID:      anon,
			Name:        name,
			Summary:     analysis.StudentSummaries[anon],
			Assignments: make(map[string]model.StudentAnalysis),
		}
		for key, aa := range analysis.Assignments {
			if row, ok := aa.Students[anon]; ok {
				profile.Assignments[key] = row
			}
		}
		state.Students = append(state.Students, profile)
	}

	return r.writePage(r.Layout.CourseDashboard(r.Course.Code), overviewTmpl, state)
}

// RenderDiscussion builds the per-discussion grading review page.
func (r *Renderer) RenderDiscussion(a model.Assignment) error {
	var grading model.DiscussionGrading
	if err := datadir.ReadJSON(r.Layout.Grading(r.Course.Code, a.Key), &grading); err != nil {
		return err
	}
	idmap, err := identity.Load(r.Layout.IdentityMap(r.Course.Code), r.Course.Prefix)
	if err != nil {
		return err
	}

	state := discussionState{
		Course:        r.Course.Code,
		CourseID:      r.Course.CourseID,
		AssignmentKey: a.Key,
		AssignmentID:  a.LMSID,
		Title:         a.Title,
		Results:       grading.Results,
	}

	anons := make([]string, 0, len(grading.Results))
	for anon := range grading.Results {
		anons = append(anons, anon)
	}
	sort.SliceStable(anons, func(i, j int) bool {
		ni, _ := idmap.NameFor(anons[i])
		nj, _ := idmap.NameFor(anons[j])
		return ni < nj
	})

	for _, anon := range anons {
		name, _ := idmap.NameFor(anon)
		userID, _ := idmap.LMSUserFor(anon)
		state.Rows = append(state.Rows, discussionRow{
			AnonID:    anon,
			Name:      name,
			LMSUserID: userID,
			Source:    grading.Sources[anon],
		})
	}

	return r.writePage(r.Layout.DiscussionDashboard(r.Course.Code, a.Key), discussionTmpl, state)
}

func (r *Renderer) writePage(path string, tmpl *template.Template, state any) error {
	stateJSON, err := ScriptJSON(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dashboard dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	defer f.Close()
	return tmpl.Execute(f, map[string]any{
		"Course": r.Course.Code,
		"State":  stateJSON,
	})
}
