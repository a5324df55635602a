// Package view renders the HTML pages from the embedded templates.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

const layout = "base.html"

// Pages lists every template rendered inside the layout.
var Pages = []string{"signin.html", "signup.html", "home.html", "vote.html", "loading.html", "error.html"}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func New(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	base, err := template.New(layout).Funcs(Funcs()).ParseFS(fsys, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(Pages))
	for _, name := range Pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		pages[name] = clone
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render writes page with status. The page is executed into a buffer first
// so a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, page string, data any) {
	tmpl, ok := r.pages[page]
	if !ok {
		r.logger.ErrorContext(req.Context(), "Unknown page", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layout, data); err != nil {
		r.logger.ErrorContext(req.Context(), "Failed to render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Funcs are the helpers the templates call.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"datetime": func(t time.Time) string {
			return t.Format("Jan 2, 2006 15:04 MST")
		},
		"ago":     humanize.Time,
		"comma":   func(n int) string { return humanize.Comma(int64(n)) },
		"percent": func(f float64) string { return humanize.FtoaWithDigits(f, 1) },
		"votes": func(n int) string {
			if n == 1 {
				return "1 vote"
			}
			return humanize.Comma(int64(n)) + " votes"
		},
		"add": func(a, b int) int { return a + b },
	}
}
