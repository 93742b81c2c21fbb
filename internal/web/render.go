package web

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/units"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "sessions", "live"
}

// ListPageData is the template data for the session list page.
type ListPageData struct {
	PageData
	Sessions  []session.Metadata
	Unit      units.Unit
	TotalSize int64
}

// DetailPageData is the template data for the session detail page.
type DetailPageData struct {
	PageData
	Session   *session.Recording
	Stats     session.Statistics
	Unit      units.Unit
	NotesHTML template.HTML
}

// LivePageData is the template data for the live gauge page.
type LivePageData struct {
	PageData
	Unit units.Unit
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
		"formatDuration": func(seconds float64) string {
			d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
			m := int(d.Minutes())
			s := int(d.Seconds()) % 60
			return fmt.Sprintf("%d:%02d", m, s)
		},
		"formatField": func(v float64, u units.Unit) string {
			return units.Format(units.Convert(v, units.Microtesla, u), u)
		},
	}

	pages := []string{"sessions.html", "detail.html", "live.html", "error.html"}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcMap).ParseFS(templateFS, "layout.html", page)
		if err != nil {
			log.Fatalf("failed to parse template %s: %v", page, err)
		}
		templates[page] = tmpl
	}

	return &Renderer{templates: templates, version: version}
}

// Render writes a page template to the response with HTTP 200.
func (r *Renderer) Render(w http.ResponseWriter, page string, data any) {
	r.RenderStatus(w, http.StatusOK, page, data)
}

// RenderStatus writes a page template to the response with the given status.
func (r *Renderer) RenderStatus(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := r.templates[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	// Render to a buffer first so a template error never emits a torn page.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		log.Printf("template render error (%s): %v", page, err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// RenderError writes the error page with the status from a MeterError
// when available.
func (r *Renderer) RenderError(w http.ResponseWriter, err error) {
	var mErr *errors.MeterError
	if !stderrors.As(err, &mErr) {
		mErr = errors.NewInternal(err)
	}

	r.RenderStatus(w, mErr.Status, "error.html", ErrorPageData{
		PageData:   PageData{Title: "Error", Version: r.version},
		StatusCode: mErr.Status,
		Message:    mErr.Message,
	})
}

// RenderNotes converts session notes (markdown) to HTML for the detail
// page. Goldmark escapes raw HTML by default.
func RenderNotes(notes string) template.HTML {
	if notes == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(notes), &buf); err != nil {
		// Fall back to escaped plain text.
		return template.HTML(template.HTMLEscapeString(notes))
	}
	return template.HTML(buf.String())
}
