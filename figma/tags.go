package figma

// Tags is the filter vocabulary of a screen list.
type Tags struct {
	ScreenType   []string `json:"screenType"`
	UIComponents []string `json:"uiComponents"`
}

// AllTags returns the union of every screen's tags in first-appearance order.
func AllTags(screens []Screen) Tags {
	st := newOrderedSet()
	ui := newOrderedSet()
	for _, s := range screens {
		for _, t := range s.ScreenType {
			st.add(t)
		}
		for _, t := range s.UIComponents {
			ui.add(t)
		}
	}
	return Tags{ScreenType: st.items, UIComponents: ui.items}
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
