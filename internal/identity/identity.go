// Package identity maintains the append-only mapping between LMS user
// ids, display names, and anonymous student ids. The mapping file is
// the only place a display name is stored and never leaves the private
// data area.
package identity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Entry is the private record behind one anonymous id.
type Entry struct {
	LMSUserID int64  `json:"lmsUserId"`
	Name      string `json:"name"`
}

// RosterEntry is a freshly fetched (lms id, display name) pair.
type RosterEntry struct {
	LMSUserID int64
	Name      string
}

// Map is a bidirectional identity map for one course.
type Map struct {
	prefix  string
	entries map[string]Entry // anon id -> entry
	byUser  map[int64]string // lms user id -> anon id
}

// NewMap creates an empty map assigning ids with the given prefix.
func NewMap(prefix string) *Map {
	return &Map{
		prefix:  prefix,
		entries: make(map[string]Entry),
		byUser:  make(map[int64]string),
	}
}

// Load reads an identity map from path. A missing file yields an
// empty map.
func Load(path, prefix string) (*Map, error) {
	m := NewMap(prefix)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity map: %w", err)
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parse identity map: %w", err)
	}
	for anon, e := range m.entries {
		m.byUser[e.LMSUserID] = anon
	}
	return m, nil
}

// Save writes the map to path, creating parent directories.
func (m *Map) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity map: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Sync appends any roster entries not yet in the map, assigning the
// next sequential anonymous id. Existing entries are never changed
// except to follow an LMS display-name change.
func (m *Map) Sync(roster []RosterEntry) int {
	added := 0
	for _, r := range roster {
		if anon, ok := m.byUser[r.LMSUserID]; ok {
			if e := m.entries[anon]; e.Name != r.Name && r.Name != "" {
				e.Name = r.Name
				m.entries[anon] = e
			}
			continue
		}
		anon := fmt.Sprintf("%s-%02d", m.prefix, m.nextSeq())
		m.entries[anon] = Entry{LMSUserID: r.LMSUserID, Name: r.Name}
		m.byUser[r.LMSUserID] = anon
		added++
	}
	if added > 0 {
		slog.Info("identity map extended", "added", added, "total", len(m.entries))
	}
	return added
}

func (m *Map) nextSeq() int {
	max := 0
	for anon := range m.entries {
		var n int
		if _, err := fmt.Sscanf(anon, m.prefix+"-%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// Len returns the number of known students.
func (m *Map) Len() int { return len(m.entries) }

// AnonFor returns the anonymous id for an LMS user id.
func (m *Map) AnonFor(lmsUserID int64) (string, bool) {
	anon, ok := m.byUser[lmsUserID]
	return anon, ok
}

// LMSUserFor returns the LMS user id behind an anonymous id.
func (m *Map) LMSUserFor(anon string) (int64, bool) {
	e, ok := m.entries[anon]
	return e.LMSUserID, ok
}

// NameFor returns the display name behind an anonymous id.
func (m *Map) NameFor(anon string) (string, bool) {
	e, ok := m.entries[anon]
	return e.Name, ok
}

// AnonIDs returns all anonymous ids in sorted order.
func (m *Map) AnonIDs() []string {
	ids := make([]string, 0, len(m.entries))
	for anon := range m.entries {
		ids = append(ids, anon)
	}
	sort.Strings(ids)
	return ids
}

// Names returns every display name in the map, for anonymization
// verification.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names
}

// SortedByName returns anonymous ids ordered by display name, the
// iteration order used wherever output is observable.
func (m *Map) SortedByName() []string {
	ids := m.AnonIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return m.entries[ids[i]].Name < m.entries[ids[j]].Name
	})
	return ids
}

// Resolve matches a free-text name against the roster: first an exact
// normalized match, then substring containment in either direction to
// absorb hyphenated-name variants. Collisions resolve to the first hit
// in sorted-anon-id order, which is stable across runs.
func (m *Map) Resolve(name string) (string, bool) {
	target := Normalize(name)
	if target == "" {
		return "", false
	}
	ids := m.AnonIDs()
	for _, anon := range ids {
		if Normalize(m.entries[anon].Name) == target {
			return anon, true
		}
	}
	for _, anon := range ids {
		n := Normalize(m.entries[anon].Name)
		if n == "" {
			continue
		}
		if containsSub(n, target) || containsSub(target, n) {
			return anon, true
		}
	}
	return "", false
}
