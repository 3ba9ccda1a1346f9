package gallery

import (
	"net/url"
	"slices"

	"github.com/hazyhaar/screengallery/figma"
)

// Query parameters carrying the filter selection.
const (
	ParamScreenType   = "screen"
	ParamUIComponents = "ui"
)

// Filter is a tag selection. Within a dimension a screen matches when it has
// any selected tag; the two dimensions combine with AND. An empty dimension
// matches everything.
type Filter struct {
	ScreenTypes  []string `json:"screen_types,omitempty"`
	UIComponents []string `json:"ui_components,omitempty"`
}

// ParseFilter reads a filter from query parameters.
func ParseFilter(q url.Values) Filter {
	return Filter{
		ScreenTypes:  cleanValues(q[ParamScreenType]),
		UIComponents: cleanValues(q[ParamUIComponents]),
	}
}

func cleanValues(vs []string) []string {
	var out []string
	for _, v := range vs {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Empty reports whether the filter selects nothing.
func (f Filter) Empty() bool {
	return len(f.ScreenTypes) == 0 && len(f.UIComponents) == 0
}

// Match reports whether s passes the filter.
func (f Filter) Match(s figma.Screen) bool {
	return matchAny(f.ScreenTypes, s.ScreenType) && matchAny(f.UIComponents, s.UIComponents)
}

func matchAny(selected, tags []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, t := range tags {
		if slices.Contains(selected, t) {
			return true
		}
	}
	return false
}

// Apply returns the screens that pass the filter, in order.
func (f Filter) Apply(screens []figma.Screen) []figma.Screen {
	out := make([]figma.Screen, 0, len(screens))
	for _, s := range screens {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// Query encodes the filter as query parameters.
func (f Filter) Query() url.Values {
	q := url.Values{}
	for _, v := range f.ScreenTypes {
		q.Add(ParamScreenType, v)
	}
	for _, v := range f.UIComponents {
		q.Add(ParamUIComponents, v)
	}
	return q
}
