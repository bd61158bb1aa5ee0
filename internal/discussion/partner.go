// Package discussion grades the paired AI-discussion assignment:
// partner resolution across students and dual writing/discussion
// scoring.
package discussion

import (
	"log/slog"
	"sort"

	"github.com/coursepipe/coursepipe/internal/identity"
	"github.com/coursepipe/coursepipe/internal/model"
)

// PartnerGraph resolves which student's writing is buried inside which
// other student's submission. Each submission supplies one edge:
// submitter -> claimed author.
type PartnerGraph struct {
	// PartnerOf maps a submitter to the author whose writing they
	// entered and discussed.
	PartnerOf map[string]string
	// DiscussedBy is the inverse: author -> the submitter who
	// discussed their writing.
	DiscussedBy map[string]string

	// submitters holds everyone who turned in a discussion export,
	// including those whose partner never resolved. They still get
	// graded on their own discussion work.
	submitters map[string]bool
}

// BuildPartnerGraph resolves every submission's authorName against the
// identity map. Unresolvable names are logged and skipped; that
// student's writing simply will not be found.
func BuildPartnerGraph(idmap *identity.Map, shard map[string]model.Submission) PartnerGraph {
	g := PartnerGraph{
		PartnerOf:   make(map[string]string),
		DiscussedBy: make(map[string]string),
		submitters:  make(map[string]bool),
	}
	for _, anon := range sortedKeys(shard) {
		sub := shard[anon]
		if sub.Payload.Type != model.ContentAIDiscussion || sub.Payload.ActivityData == nil {
			continue
		}
		g.submitters[anon] = true
		author := sub.Payload.ActivityData.AuthorName
		if author == "" {
			slog.Warn("discussion submission without author name", "submitter", anon)
			continue
		}
		partner, ok := idmap.Resolve(author)
		if !ok {
			slog.Warn("could not resolve discussion partner", "submitter", anon, "author", author)
			continue
		}
		g.PartnerOf[anon] = partner
		g.DiscussedBy[partner] = anon
	}
	return g
}

// Students returns everyone who needs a grading record: every
// submitter plus every resolved author, in sorted order.
func (g PartnerGraph) Students() []string {
	set := make(map[string]bool)
	for anon := range g.submitters {
		set[anon] = true
	}
	for submitter, author := range g.PartnerOf {
		set[submitter] = true
		set[author] = true
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic iteration wherever output is observable.
	sort.Strings(keys)
	return keys
}
