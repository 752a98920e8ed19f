package records

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata payload keys shared by every vector backend.
const (
	MetaID            = "id"
	MetaType          = "type"
	MetaTitle         = "title"
	MetaTags          = "tags"
	MetaFacts         = "facts"
	MetaDetailSite    = "detail_site"
	MetaAdditionalURL = "additional_url"
	MetaStartDate     = "start_date"
	MetaEndDate       = "end_date"
	MetaPriority      = "priority"
)

// Fallbacks used when a vector hit lacks a field.
const (
	UntitledTitle = "Untitled"
	UnknownType   = Type("unknown")
)

// VectorID returns the namespaced vector entry id "{type}:{id}". An id that
// already carries its type prefix is returned unchanged.
func VectorID(r *Record) string {
	prefix := string(r.Type) + ":"
	if strings.HasPrefix(r.ID, prefix) {
		return r.ID
	}
	return prefix + r.ID
}

// EnrichedText builds the human-readable text embedded for vector search.
func EnrichedText(r *Record) string {
	var b strings.Builder
	if r.Summary != "" {
		fmt.Fprintf(&b, "%s. %s", r.Title, r.Summary)
	} else {
		b.WriteString(r.Title)
	}
	if len(r.Facts) > 0 {
		fmt.Fprintf(&b, "\nFacts: %s", strings.Join(r.Facts, "; "))
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s", strings.Join(r.Tags, ", "))
	}
	if links := append(append([]Link{}, r.DetailSite...), r.AdditionalURL...); len(links) > 0 {
		parts := make([]string, 0, len(links))
		for _, l := range links {
			if l.Label != "" {
				parts = append(parts, fmt.Sprintf("%s (%s)", l.Label, l.URL))
			} else {
				parts = append(parts, l.URL)
			}
		}
		fmt.Fprintf(&b, "\nLinks: %s", strings.Join(parts, ", "))
	}
	if r.StartDate != nil {
		end := "present"
		if r.EndDate != nil {
			end = r.EndDate.String()
		}
		fmt.Fprintf(&b, "\nPeriod: %s to %s", r.StartDate, end)
	}
	fmt.Fprintf(&b, "\nType: %s", r.Type)
	return b.String()
}

// Metadata projects r onto a JSON-shaped payload (strings, float-free ints,
// []any, map[string]any) that every vector backend can store. Summary is
// left out; enriched text already covers it for similarity.
func Metadata(r *Record) map[string]any {
	m := map[string]any{
		MetaID:            r.ID,
		MetaType:          string(r.Type),
		MetaTitle:         r.Title,
		MetaTags:          stringsToAny(r.Tags),
		MetaFacts:         stringsToAny(r.Facts),
		MetaDetailSite:    linksToAny(r.DetailSite),
		MetaAdditionalURL: linksToAny(r.AdditionalURL),
		MetaPriority:      int64(r.Priority),
	}
	if r.StartDate != nil {
		m[MetaStartDate] = r.StartDate.String()
	}
	if r.EndDate != nil {
		m[MetaEndDate] = r.EndDate.String()
	}
	return m
}

// FromMetadata rebuilds a public Record from a vector hit payload. Missing
// fields take their defaults: title "Untitled", type "unknown", priority 3 and
// empty sequences. fallbackID is used when the payload has no id.
func FromMetadata(m map[string]any, fallbackID string) Record {
	r := Record{
		ID:            stringField(m, MetaID, fallbackID),
		Type:          Type(stringField(m, MetaType, string(UnknownType))),
		Title:         stringField(m, MetaTitle, UntitledTitle),
		Tags:          stringSlice(m[MetaTags]),
		Facts:         stringSlice(m[MetaFacts]),
		DetailSite:    linkSlice(m[MetaDetailSite]),
		AdditionalURL: linkSlice(m[MetaAdditionalURL]),
		Priority:      PriorityOf(m),
	}
	if d, err := ParseOptionalDate(stringField(m, MetaStartDate, "")); err == nil {
		r.StartDate = d
	}
	if d, err := ParseOptionalDate(stringField(m, MetaEndDate, "")); err == nil {
		r.EndDate = d
	}
	return r
}

// PriorityOf reads the priority from a payload, defaulting to 3 when absent
// or unreadable, clamped to the valid range.
func PriorityOf(m map[string]any) int {
	v, ok := m[MetaPriority]
	if !ok || v == nil {
		return DefaultPriority
	}
	switch n := v.(type) {
	case int:
		return ClampPriority(n)
	case int32:
		return ClampPriority(int(n))
	case int64:
		return ClampPriority(int(n))
	case float32:
		return ClampPriority(int(n))
	case float64:
		return ClampPriority(int(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return ClampPriority(int(i))
		}
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return ClampPriority(i)
		}
	}
	return DefaultPriority
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func stringSlice(v any) []string {
	out := []string{}
	switch items := v.(type) {
	case []string:
		out = append(out, items...)
	case []any:
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func linkSlice(v any) []Link {
	out := []Link{}
	switch items := v.(type) {
	case []Link:
		out = append(out, items...)
	case []any:
		for _, it := range items {
			switch l := it.(type) {
			case map[string]any:
				label, _ := l["label"].(string)
				url, _ := l["url"].(string)
				if url != "" {
					out = append(out, Link{Label: label, URL: url})
				}
			case string:
				if l != "" {
					out = append(out, Link{URL: l})
				}
			}
		}
	case string:
		if items != "" {
			out = append(out, Link{URL: items})
		}
	}
	return out
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func linksToAny(in []Link) []any {
	out := make([]any, len(in))
	for i, l := range in {
		out[i] = map[string]any{"label": l.Label, "url": l.URL}
	}
	return out
}
