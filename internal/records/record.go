// Package records defines the Record, the unit of resume knowledge shared by
// the record store, the vector index and the query tools.
package records

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Type is the kind of a Record.
type Type string

const (
	// TypeProject is a personal or professional project.
	TypeProject Type = "project"
	// TypeEducation is a degree, course or certification.
	TypeEducation Type = "education"
	// TypeExperience is a job or role.
	TypeExperience Type = "experience"
	// TypeFact is a standalone statement about the person.
	TypeFact Type = "fact"
)

// Types lists every valid record type in display order.
var Types = []Type{TypeProject, TypeEducation, TypeExperience, TypeFact}

// Valid reports whether t is one of the known record types.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// TypeStrings returns Types as strings, for enum declarations in tool schemas.
func TypeStrings() []string {
	out := make([]string, len(Types))
	for i, t := range Types {
		out[i] = string(t)
	}
	return out
}

const (
	// DefaultPriority is applied when a record has no priority set.
	DefaultPriority = 3
	// MaxPriority is the highest prominence.
	MaxPriority = 3
	// MinPriority marks a deprioritized record.
	MinPriority = 0
)

// DateLayout is the calendar date format used on every wire and in storage.
const DateLayout = time.DateOnly

// Link is a labelled URL.
type Link struct {
	// Label is the human-readable anchor text.
	Label string `json:"label"`
	// URL is the target address.
	URL string `json:"url"`
}

// Record is a normalized unit of resume knowledge.
type Record struct {
	// ID is the stable identifier, conventionally "{type}:{slug}".
	ID string `json:"id"`
	// Type is the record kind.
	Type Type `json:"type"`
	// Title is the display name.
	Title string `json:"title"`
	// Summary is the long-form description. It is never emitted by tools.
	Summary string `json:"summary,omitempty"`
	// Tags are technology and keyword labels, treated as a set.
	Tags []string `json:"tags"`
	// Facts are bullet-level claims distilled from the summary.
	Facts []string `json:"facts"`
	// DetailSite links to a page describing the record in depth.
	DetailSite []Link `json:"detail_site"`
	// AdditionalURL holds any further links.
	AdditionalURL []Link `json:"additional_url"`
	// StartDate is the first day of the record, if known.
	StartDate *Date `json:"start_date"`
	// EndDate is the last day of the record; nil means ongoing.
	EndDate *Date `json:"end_date"`
	// Priority is 0–3, 3 being the most prominent.
	Priority int `json:"priority"`
}

// Normalize fills defaults in place: empty sequences instead of nil, a
// deduplicated tag set, trimmed strings and a clamped priority. A nil
// priority source is represented by the caller passing DefaultPriority.
func (r *Record) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Title = strings.TrimSpace(r.Title)
	r.Type = Type(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.Tags = dedupe(r.Tags)
	r.Facts = compact(r.Facts)
	if r.DetailSite == nil {
		r.DetailSite = []Link{}
	}
	if r.AdditionalURL == nil {
		r.AdditionalURL = []Link{}
	}
	r.Priority = ClampPriority(r.Priority)
}

// Validate checks the fields that must always be present.
func (r *Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("records: id is required")
	case r.Title == "":
		return fmt.Errorf("records: title is required")
	case !r.Type.Valid():
		return fmt.Errorf("records: invalid type %q", r.Type)
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return fmt.Errorf("records: end_date %s is before start_date %s", r.EndDate, r.StartDate)
	}
	return nil
}

// Public returns a copy of r with Summary cleared and all sequences non-nil.
// This is the shape every tool returns to the model.
func (r Record) Public() Record {
	out := r
	out.Summary = ""
	out.Tags = nonNil(r.Tags)
	out.Facts = nonNil(r.Facts)
	if out.DetailSite == nil {
		out.DetailSite = []Link{}
	}
	if out.AdditionalURL == nil {
		out.AdditionalURL = []Link{}
	}
	return out
}

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	return min(max(p, MinPriority), MaxPriority)
}

// HasTag reports whether the record carries tag (case-sensitive).
func (r *Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
