package figma

import (
	"regexp"
	"strings"
)

const (
	DefaultPageName   = "🏞️ 스샷 모음"
	DefaultCardPrefix = "#metadata-card-"
)

// Screen is one annotated design screen.
type Screen struct {
	ID           string   `json:"id"`
	ScreenTitle  string   `json:"screenTitle"`
	AppVersion   string   `json:"appVersion"`
	ScreenType   []string `json:"screenType"`
	UIComponents []string `json:"uiComponents"`
	ScreenID     string   `json:"screenId,omitempty"`
}

// Metadata is the structured content of one metadata card.
type Metadata struct {
	AppVersion   string
	ScreenType   []string
	UIComponents []string
	ScreenID     string
}

var (
	reAppVersion   = regexp.MustCompile(`App Version: (.*)`)
	reScreenType   = regexp.MustCompile(`Screen Type: (.*)`)
	reUIComponents = regexp.MustCompile(`UI Components: (.*)`)
	reScreenID     = regexp.MustCompile(`Screen ID: (.*)`)
)

// ParseMetadata extracts the labelled fields of a card's text. Missing
// labels yield empty values. Only the first occurrence of a label counts and
// a value ends at the line break.
func ParseMetadata(text string) Metadata {
	return Metadata{
		AppVersion:   field(reAppVersion, text),
		ScreenType:   listField(reScreenType, text),
		UIComponents: listField(reUIComponents, text),
		ScreenID:     field(reScreenID, text),
	}
}

func field(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func listField(re *regexp.Regexp, text string) []string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return []string{}
	}
	parts := strings.Split(m[1], ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "-" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ScreenOptions selects where Screens looks for metadata cards.
type ScreenOptions struct {
	PageName   string
	CardPrefix string
}

func (o *ScreenOptions) defaults() {
	if o.PageName == "" {
		o.PageName = DefaultPageName
	}
	if o.CardPrefix == "" {
		o.CardPrefix = DefaultCardPrefix
	}
}

type cardPair struct {
	card   *Container
	parent Node
}

// Screens extracts one Screen per annotated frame of the configured page.
// A missing page yields an empty list.
func Screens(doc *Document, opts ScreenOptions) []Screen {
	opts.defaults()
	screens := []Screen{}

	page := doc.Canvas(opts.PageName)
	if page == nil {
		return screens
	}

	var pairs []cardPair
	Walk(page, func(n, parent Node) {
		c, ok := n.(*Container)
		if !ok || c.Type != TypeFrame || !strings.HasPrefix(c.Name, opts.CardPrefix) {
			return
		}
		pairs = append(pairs, cardPair{card: c, parent: parent})
	})

	seen := make(map[string]bool)
	for _, p := range pairs {
		text := firstText(p.card)
		if text == nil || p.parent == nil {
			continue
		}
		parent := p.parent.Base()
		if parent.Type != TypeFrame && parent.Type != TypeComponent {
			continue
		}
		if parent.Removed || !parent.Visible {
			continue
		}
		if seen[parent.ID] {
			continue
		}
		// Marked before the name check: a card under an unnamed parent still
		// claims that parent.
		seen[parent.ID] = true
		if strings.TrimSpace(parent.Name) == "" || parent.Name == "-" {
			continue
		}

		meta := ParseMetadata(text.Characters)
		screens = append(screens, Screen{
			ID:           parent.ID,
			ScreenTitle:  parent.Name,
			AppVersion:   meta.AppVersion,
			ScreenType:   meta.ScreenType,
			UIComponents: meta.UIComponents,
			ScreenID:     meta.ScreenID,
		})
	}
	return screens
}

func firstText(c *Container) *Text {
	for _, child := range c.Children {
		if t, ok := child.(*Text); ok {
			return t
		}
	}
	return nil
}
