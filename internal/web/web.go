package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"librarium/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData carries everything a page template can render.
type PageData struct {
	Title       string
	CurrentUser *domain.User
	Books       []domain.Book
	Catalog     []domain.CatalogItem
	FormError   string
}

// Renderer renders the embedded HTML pages.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates. Each page is paired with the
// shared base layout.
func NewRenderer() (*Renderer, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{"index.html", "login.html", "chat.html"} {
		ts, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = ts
	}
	return &Renderer{pages: pages}, nil
}

// Render writes a full page to the response. The page is built in a
// buffer first so a template error never leaves a half-written body.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data *PageData) error {
	ts, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if data == nil {
		data = &PageData{}
	}
	buf := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
