package gallery

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strings"

	"github.com/hazyhaar/screengallery/figma"
	"github.com/hazyhaar/screengallery/shield"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("gallery").Funcs(template.FuncMap{
		"orDash": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return "-"
			}
			return s
		},
		"joinOrDash": func(vs []string) string {
			if len(vs) == 0 {
				return "-"
			}
			return strings.Join(vs, ", ")
		},
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("gallery: parse templates: %w", err)
	}
	return t, nil
}

// clean strips markup from upstream text. Node names are free text typed by
// designers, so anything tag-like is dropped before it reaches a page.
func (g *Gallery) clean(s string) string {
	return html.UnescapeString(g.policy.Sanitize(s))
}

func (g *Gallery) cleanAll(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if c := g.clean(v); c != "" {
			out = append(out, c)
		}
	}
	return out
}

type cardData struct {
	ID        string
	Title     string
	Thumbnail string
}

type optionData struct {
	Value    string
	Label    string
	Selected bool
}

type dropdownData struct {
	Label         string
	Param         string
	Options       []optionData
	SelectedCount int
	ClearURL      string
}

type pageData struct {
	Title      string
	State      State
	Error      string
	Flash      *shield.FlashMessage
	ViewID     string
	RootMargin int
	Total      int
	Cards      []cardData
	Filters    []dropdownData
}

type modalData struct {
	ID           string
	Title        string
	Thumbnail    string
	AppVersion   string
	ScreenType   []string
	UIComponents []string
	ScreenID     string
}

func dropdown(label, param string, tags, selected []string, f Filter) dropdownData {
	d := dropdownData{Label: label, Param: param}
	sel := make(map[string]bool, len(selected))
	for _, s := range selected {
		sel[s] = true
	}
	for _, t := range tags {
		d.Options = append(d.Options, optionData{Value: t, Label: t, Selected: sel[t]})
	}
	d.SelectedCount = len(selected)

	q := f.Query()
	q.Del(param)
	d.ClearURL = "/"
	if enc := q.Encode(); enc != "" {
		d.ClearURL += "?" + enc
	}
	return d
}

func (g *Gallery) renderPage(w io.Writer, p pageData) error {
	return g.tmpl.ExecuteTemplate(w, "page", p)
}

func (g *Gallery) modal(s figma.Screen, thumb string) modalData {
	return modalData{
		ID:           s.ID,
		Title:        g.clean(s.ScreenTitle),
		Thumbnail:    thumb,
		AppVersion:   g.clean(s.AppVersion),
		ScreenType:   g.cleanAll(s.ScreenType),
		UIComponents: g.cleanAll(s.UIComponents),
		ScreenID:     g.clean(s.ScreenID),
	}
}

// renderModal renders the detail card of a screen as an HTML fragment.
func (g *Gallery) renderModal(s figma.Screen, thumb string) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, "modal", g.modal(s, thumb)); err != nil {
		return "", fmt.Errorf("gallery: render modal: %w", err)
	}
	return buf.String(), nil
}

// safeImageURL keeps only absolute http(s) URLs.
func safeImageURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ""
	}
	return raw
}
