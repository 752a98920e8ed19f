package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/Jiangye-Song/resume-agent/internal/records"
)

const (
	// CandidatePool is how many hits are fetched before re-ranking.
	CandidatePool = 10
	// ContextWindow is how many re-ranked hits are kept for the prompt.
	ContextWindow = 4
	// NoDocuments is returned instead of an answer when the pool is empty.
	NoDocuments = "I couldn't find any relevant documents."
)

// Ranked is a hit with its stored priority and adjusted score.
type Ranked struct {
	Document
	// Priority is the stored record priority (0–3, default 3).
	Priority int
	// Adjusted is the score after the priority-0 demotion.
	Adjusted float32
}

// Tiers is the top of the candidate pool split by priority.
type Tiers struct {
	// Highest holds priority-3 hits.
	Highest []Ranked
	// Medium holds priority-2 hits.
	Medium []Ranked
	// Fallback holds priority 0 and 1 hits, consulted only when the
	// primary tiers do not answer the question.
	Fallback []Ranked
}

// AdjustedScore halves the similarity of priority-0 entries. They stay
// eligible but lose to any comparably similar entry.
func AdjustedScore(score float32, priority int) float32 {
	if priority == 0 {
		return score / 2
	}
	return score
}

// Rank attaches priorities, applies AdjustedScore, orders the pool by
// adjusted score (stable, so equal scores keep search order) and keeps the
// first ContextWindow entries.
func Rank(pool []Document) []Ranked {
	ranked := lo.Map(pool, func(d Document, _ int) Ranked {
		p := records.PriorityOf(d.Metadata)
		return Ranked{Document: d, Priority: p, Adjusted: AdjustedScore(d.Score, p)}
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Adjusted > ranked[j].Adjusted
	})
	if len(ranked) > ContextWindow {
		ranked = ranked[:ContextWindow]
	}
	return ranked
}

// Partition splits ranked hits into tiers. Input order (adjusted score
// descending) is preserved within each tier.
func Partition(ranked []Ranked) Tiers {
	return Tiers{
		Highest:  lo.Filter(ranked, func(r Ranked, _ int) bool { return r.Priority >= 3 }),
		Medium:   lo.Filter(ranked, func(r Ranked, _ int) bool { return r.Priority == 2 }),
		Fallback: lo.Filter(ranked, func(r Ranked, _ int) bool { return r.Priority <= 1 }),
	}
}

// Empty reports whether no tier holds a hit.
func (t Tiers) Empty() bool {
	return len(t.Highest)+len(t.Medium)+len(t.Fallback) == 0
}

// Primary returns the high-priority tier (priority >= 2).
func (t Tiers) Primary() []Ranked {
	return append(append([]Ranked{}, t.Highest...), t.Medium...)
}

// Context renders the tiers as labeled blocks for the prompt. Empty tiers
// are omitted.
func (t Tiers) Context() string {
	var blocks []string
	add := func(label string, hits []Ranked) {
		if len(hits) == 0 {
			return
		}
		body := lo.Map(hits, func(r Ranked, _ int) string { return hitText(r) })
		blocks = append(blocks, label+"\n"+strings.Join(body, "\n"))
	}
	add("[HIGHEST PRIORITY] Prefer this content when composing the answer:", t.Highest)
	add("[MEDIUM PRIORITY] Use this content to support the answer:", t.Medium)
	add("[FALLBACK] Consult only if the content above does not answer the question:", t.Fallback)
	return strings.Join(blocks, "\n\n")
}

// hitText is the display text for one hit: the stored enriched text, or a
// title line rebuilt from metadata when the backend kept no content.
func hitText(r Ranked) string {
	if r.Content != "" {
		return "- " + strings.ReplaceAll(r.Content, "\n", "\n  ")
	}
	rec := records.FromMetadata(r.Metadata, r.ID)
	return fmt.Sprintf("- %s (%s)", rec.Title, rec.Type)
}
