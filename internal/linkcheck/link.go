// Package linkcheck collects link targets from rendered pages and validates
// them over HTTP. Everything here works on markup and URLs only; the browser
// is driven elsewhere.
package linkcheck

import (
	"sort"
	"time"
)

// Class is the outcome bucket of a single link check.
type Class string

const (
	Working   Class = "working"
	Forbidden Class = "forbidden"
	Broken    Class = "broken"
)

// StatusRequestFailed is recorded when the request never produced a response.
const StatusRequestFailed = 500

// Classify maps an HTTP status code to its class.
func Classify(status int) Class {
	switch {
	case status == 403:
		return Forbidden
	case status >= 400:
		return Broken
	default:
		return Working
	}
}

// IsIssue reports whether the class should be surfaced as a problem.
func (c Class) IsIssue() bool {
	return c == Forbidden || c == Broken
}

// Result is the record for one validated link.
type Result struct {
	URL        string    `json:"url"`
	SourcePage string    `json:"source_page"`
	StatusCode int       `json:"status_code"`
	Class      Class     `json:"class"`
	Error      string    `json:"error,omitempty"`
	Context    string    `json:"context,omitempty"`
	External   bool      `json:"external"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Summary aggregates results.
type Summary struct {
	Total     int `json:"total"`
	Working   int `json:"working"`
	Forbidden int `json:"forbidden"`
	Broken    int `json:"broken"`
}

// Issues counts forbidden and broken links together.
func (s Summary) Issues() int {
	return s.Forbidden + s.Broken
}

// Summarize counts results per class.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Class {
		case Working:
			s.Working++
		case Forbidden:
			s.Forbidden++
		case Broken:
			s.Broken++
		}
	}
	return s
}

// Sources maps each discovered absolute URL to the page it was found on.
// A later discovery of the same URL replaces the earlier source page.
type Sources struct {
	pages map[string]string
}

// NewSources returns an empty Sources.
func NewSources() *Sources {
	return &Sources{pages: make(map[string]string)}
}

// Add records links found on page.
func (s *Sources) Add(page string, links []string) {
	for _, l := range links {
		s.pages[l] = page
	}
}

// Len returns the number of distinct URLs.
func (s *Sources) Len() int { return len(s.pages) }

// Source returns the page a URL was last seen on.
func (s *Sources) Source(link string) (string, bool) {
	p, ok := s.pages[link]
	return p, ok
}

// URLs returns the distinct URLs in lexical order.
func (s *Sources) URLs() []string {
	out := make([]string, 0, len(s.pages))
	for u := range s.pages {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
