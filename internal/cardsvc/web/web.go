// Package web holds the embedded HTML pages.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type ResultPage struct {
	CardID       string
	ViewURL      string
	CodeImageURL string
}

type DocumentLink struct {
	Slot int
	Name string
	URL  string
}

type CardPage struct {
	Card         *models.Card
	PhotoURL     string
	CodeImageURL string
	Documents    []DocumentLink
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}
	tmpl, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes into a buffer first so a template error never leaves a
// half-written page behind.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
