package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/model"
)

// Diagnose re-runs submission fetching and extraction for the course
// and prints per-assignment content-type counts. Nothing is written;
// the stored shards and index stay untouched.
func (d *Downloader) Diagnose(ctx context.Context, only string) error {
	idmap, err := identity.Load(d.Layout.IdentityMap(d.Course.Code), d.Course.Prefix)
	if err != nil {
		return err
	}

	var failed int
	for _, a := range d.Course.Assignments {
		if only != "" && a.Key != only {
			continue
		}
		counts, err := d.diagnoseAssignment(ctx, idmap, a)
		if err != nil {
			failed++
			color.Red("  ✗ %s: %v", a.Key, err)
			continue
		}
		fmt.Printf("  %s:", a.Key)
		for _, t := range sortedTypes(counts) {
			fmt.Printf(" %s=%d", t, counts[t])
		}
		fmt.Println()
	}
	if failed > 0 {
		return fmt.Errorf("%d assignment(s) failed to diagnose", failed)
	}
	return nil
}

func (d *Downloader) diagnoseAssignment(ctx context.Context, idmap *identity.Map, a model.Assignment) (map[model.ContentType]int, error) {
	assignmentID, err := d.resolveSubmissionAssignment(ctx, a)
	if err != nil {
		return nil, err
	}
	subs, err := d.LMS.ListSubmissions(ctx, d.Course.CourseID, assignmentID)
	if err != nil {
		return nil, err
	}

	counts := make(map[model.ContentType]int)
	for _, sub := range subs {
		if _, known := idmap.AnonFor(sub.UserID); !known {
			continue
		}
		payload := d.Extractor.Extract(ctx, sub)
		counts[payload.Type]++
	}
	return counts, nil
}

func sortedTypes(counts map[model.ContentType]int) []model.ContentType {
	types := make([]model.ContentType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
