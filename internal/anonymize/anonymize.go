// Package anonymize produces a shareable mirror of a course's data
// directory with every display name removed. Analyses and gradings
// already carry only anonymous ids; submission shards get their
// author-name field rewritten to the resolved anonymous id; the
// identity map is reduced to its anonymous half.
package anonymize

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coursepipe/coursepipe/internal/datadir"
	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/model"
)

// Mirror writes the anonymous copy of one course directory. The target
// is rebuilt from scratch on every run. Display names surviving in
// free-form student text are reported, not fatal; students do mention
// each other by name.
func Mirror(layout datadir.Layout, course, prefix string) error {
	idmap, err := identity.Load(layout.IdentityMap(course), prefix)
	if err != nil {
		return err
	}

	dst := layout.AnonymousDir(course)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	// The roster file keeps only the anonymous ids.
	if err := datadir.WriteJSON(filepath.Join(dst, "roster.json"), idmap.AnonIDs()); err != nil {
		return err
	}

	src := layout.CourseDir(course)
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if rel == "." {
				return nil
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		case rel == "id-mapping.json":
			return nil // replaced by roster.json
		case strings.HasSuffix(rel, ".db") || strings.HasSuffix(rel, ".tmp"):
			return nil
		case strings.HasPrefix(rel, "submissions"+string(filepath.Separator)):
			return scrubShard(idmap, path, filepath.Join(dst, rel))
		default:
			return copyFile(path, filepath.Join(dst, rel))
		}
	})
	if err != nil {
		return fmt.Errorf("mirror %s: %w", course, err)
	}

	leaks, err := Verify(dst, idmap)
	if err != nil {
		return err
	}
	for _, l := range leaks {
		slog.Warn("display name still present in anonymous mirror", "file", l.File, "name", l.Name)
	}
	slog.Info("anonymous mirror written", "course", course, "dir", dst, "leaks", len(leaks))
	return nil
}

// scrubShard rewrites a submission shard with author names replaced by
// the matching anonymous id.
func scrubShard(idmap *identity.Map, src, dst string) error {
	shard := make(map[string]model.Submission)
	if err := datadir.ReadJSON(src, &shard); err != nil {
		return err
	}
	for anon, sub := range shard {
		if sub.Payload.ActivityData == nil || sub.Payload.ActivityData.AuthorName == "" {
			continue
		}
		ad := *sub.Payload.ActivityData
		if partner, ok := idmap.Resolve(ad.AuthorName); ok {
			ad.AuthorName = partner
		} else {
			ad.AuthorName = "unknown"
		}
		sub.Payload.ActivityData = &ad
		shard[anon] = sub
	}
	return datadir.WriteJSON(dst, shard)
}

// Leak is one occurrence of a known display name in the mirror.
type Leak struct {
	File string
	Name string
}

// Verify scans every file under dir for any display name in the
// identity map. Single-word names shorter than 4 characters are not
// checked; they collide with ordinary prose too easily.
func Verify(dir string, idmap *identity.Map) ([]Leak, error) {
	names := idmap.Names()
	var leaks []Leak
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		lower := strings.ToLower(string(data))
		for _, name := range names {
			if len(name) < 4 && !strings.Contains(name, " ") {
				continue
			}
			if strings.Contains(lower, strings.ToLower(name)) {
				leaks = append(leaks, Leak{File: path, Name: name})
			}
		}
		return nil
	})
	return leaks, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
