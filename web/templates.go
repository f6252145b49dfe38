// ABOUTME: TemplateEngine loads embedded HTML templates and renders them with Go's html/template.
// ABOUTME: Story page text is rendered from Markdown with goldmark; raw HTML in it is not passed through.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/2389-research/storyteller/stories"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData holds all data passed to templates for rendering.
type PageData struct {
	Title       string
	Stories     []*stories.Story
	Story       *stories.Story
	StoriesPath string // output path the home page form submits
	MaxPages    int
}

// TemplateEngine loads and renders embedded HTML templates.
type TemplateEngine struct {
	templates map[string]*template.Template
	markdown  *markdownCache
}

var markdown = goldmark.New()

// templateFuncs returns the FuncMap available to all templates.
func templateFuncs(md renderFunc) template.FuncMap {
	return template.FuncMap{
		"markdown": md,
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
	}
}

// NewTemplateEngine parses all embedded templates and returns a ready-to-use engine.
// Each page template is parsed together with the layout so that the layout wraps every page.
func NewTemplateEngine() (*TemplateEngine, error) {
	cache := newMarkdownCache(markdownToHTML, markdownCacheTTL, markdownCacheMaxEntries)
	funcs := templateFuncs(cache.Render)

	pages := []string{
		"home.html",
		"stories.html",
		"story.html",
		"not_found.html",
	}

	engine := &TemplateEngine{
		templates: make(map[string]*template.Template),
		markdown:  cache,
	}

	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(
			templateFS,
			"templates/layout.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		engine.templates[page] = t
	}

	return engine, nil
}

// Render executes the named template with the given data and writes the result
// to w. It sets the Content-Type header to text/html.
func (e *TemplateEngine) Render(w http.ResponseWriter, name string, data any) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus is Render with an explicit status code. The page is rendered
// into a buffer first so a template error can still become a 500.
func (e *TemplateEngine) RenderStatus(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := e.RenderTo(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderTo executes the named template with the given data and writes the
// result to an arbitrary io.Writer (useful for testing without HTTP).
func (e *TemplateEngine) RenderTo(w io.Writer, name string, data any) error {
	t, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}

// markdownToHTML converts a markdown string to HTML using goldmark.
// goldmark drops raw HTML unless the unsafe renderer option is set.
func markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}
