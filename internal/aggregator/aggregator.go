// Package aggregator summarizes a set of classified deviations.
package aggregator

import (
	"sort"

	"deviation-classifier-go/internal/types"
)

// Entry is one classification attempt. A nil Result means it failed.
type Entry struct {
	Location  string
	Result    *types.Classification
	Corrected bool
}

// Hotspot is a location ranked by the worst severity reported there.
type Hotspot struct {
	Location    string `json:"local"`
	MaxSeverity string `json:"max_severity"`
	Count       int    `json:"count"`

	Severity types.Severity `json:"-"`
}

type Summary struct {
	Total      int            `json:"total"`
	Classified int            `json:"classified"`
	Failed     int            `json:"failed"`
	Corrected  int            `json:"corrected"`
	ByCategory map[string]int `json:"by_category"`
	BySeverity map[string]int `json:"by_severity"`
	ByRouting  map[string]int `json:"by_routing"`
	Hotspots   []Hotspot      `json:"hotspots"`
}

func Aggregate(entries []Entry) Summary {
	s := Summary{
		Total:      len(entries),
		ByCategory: map[string]int{},
		BySeverity: map[string]int{},
		ByRouting:  map[string]int{},
	}
	spots := map[string]*Hotspot{}
	for _, e := range entries {
		if e.Result == nil {
			s.Failed++
			continue
		}
		s.Classified++
		if e.Corrected {
			s.Corrected++
		}
		c := *e.Result
		s.ByCategory[c.Category.String()]++
		s.BySeverity[c.Severity.String()]++
		s.ByRouting[c.Routing.String()]++

		h, ok := spots[e.Location]
		if !ok {
			h = &Hotspot{Location: e.Location}
			spots[e.Location] = h
		}
		h.Count++
		if c.Severity >= h.Severity {
			h.Severity = c.Severity
			h.MaxSeverity = c.Severity.String()
		}
	}

	s.Hotspots = make([]Hotspot, 0, len(spots))
	for _, h := range spots {
		s.Hotspots = append(s.Hotspots, *h)
	}
	sort.Slice(s.Hotspots, func(i, j int) bool {
		a, b := s.Hotspots[i], s.Hotspots[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Location < b.Location
	})
	return s
}

// Top returns the key with the highest count; ties go to the smaller key.
func Top(counts map[string]int) (string, int) {
	best, n := "", 0
	for k, v := range counts {
		if v > n || (v == n && k < best) {
			best, n = k, v
		}
	}
	return best, n
}

// Table flattens the summary into label/value rows for reports.
func (s Summary) Table() [][]any {
	rows := [][]any{
		{"total", s.Total},
		{"classified", s.Classified},
		{"failed", s.Failed},
		{"corrected_by_review", s.Corrected},
	}
	for _, group := range []struct {
		prefix string
		counts map[string]int
	}{
		{"category", s.ByCategory},
		{"severity", s.BySeverity},
		{"routing", s.ByRouting},
	} {
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []any{group.prefix + ":" + k, group.counts[k]})
		}
	}
	for _, h := range s.Hotspots {
		rows = append(rows, []any{"hotspot:" + h.Location, h.MaxSeverity, h.Count})
	}
	return rows
}
