package source

import "strings"

// Filter drops collected stories whose title matches an exclude keyword.
// Feeds and search pages occasionally surface press releases or listicles
// the curators never want in a digest.
type Filter struct {
	exclude []string
}

// NewFilter builds a case-insensitive exclude filter. An empty keyword
// list keeps everything.
func NewFilter(excludeKeywords []string) *Filter {
	exclude := make([]string, len(excludeKeywords))
	for i, kw := range excludeKeywords {
		exclude[i] = strings.ToLower(kw)
	}
	return &Filter{exclude: exclude}
}

// Keep reports whether the title passes the filter.
func (f *Filter) Keep(title string) bool {
	if f == nil {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range f.exclude {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}
