package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/pipeline"
)

// Templates holds parsed pages and partials. Every page is parsed together
// with all layouts and partials and rendered through the "base" layout;
// partials render alone for script-driven updates.
type Templates struct {
	pages    map[string]*template.Template
	partials map[string]*template.Template
}

// NewTemplates parses layouts/*.html, partials/*.html and pages/*.html from
// fsys.
func NewTemplates(fsys fs.FS) (*Templates, error) {
	layouts, err := fs.Glob(fsys, "layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("finding layouts: %w", err)
	}
	partials, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("finding partials: %w", err)
	}
	pages, err := fs.Glob(fsys, "pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("finding pages: %w", err)
	}

	t := &Templates{
		pages:    make(map[string]*template.Template, len(pages)),
		partials: make(map[string]*template.Template, len(partials)),
	}

	shared := append(append([]string{}, layouts...), partials...)
	for _, page := range pages {
		files := append([]string{page}, shared...)
		tmpl, err := template.New(path.Base(page)).Funcs(funcs).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parsing page %s: %w", page, err)
		}
		t.pages[templateName(page)] = tmpl
	}

	for _, partial := range partials {
		tmpl, err := template.New(path.Base(partial)).Funcs(funcs).ParseFS(fsys, partial)
		if err != nil {
			return nil, fmt.Errorf("parsing partial %s: %w", partial, err)
		}
		t.partials[templateName(partial)] = tmpl
	}

	return t, nil
}

// templateName maps "pages/home.html" to "home".
func templateName(file string) string {
	return strings.TrimSuffix(path.Base(file), ".html")
}

// Render writes page inside the base layout.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial writes a partial without the layout.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	tmpl, ok := t.partials[partial]
	if !ok {
		return fmt.Errorf("partial %q not found", partial)
	}
	return tmpl.Execute(w, data)
}

var funcs = template.FuncMap{
	// add is used for 1-based track numbers.
	"add": func(a, b int) int { return a + b },
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	User        *UserData
	CurrentPath string
}

// UserData is the signed-in backend user shown in the header.
type UserData struct {
	ID   string
	Name string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Authenticated bool
	Moods         mood.Profiles
	Capabilities  pipeline.Capabilities
}
