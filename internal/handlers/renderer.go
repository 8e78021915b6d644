package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin/render"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages maps each page to the files its template set is parsed from.
var pages = map[string][]string{
	"catalog.html": {"templates/catalog.html", "templates/base.html"},
	"cart.html":    {"templates/cart.html", "templates/base.html"},
}

// TemplateFuncs are available to every page.
var TemplateFuncs = template.FuncMap{
	"money": services.FormatMoney,
	"stars": func(n int) string {
		if n < 0 {
			n = 0
		}
		if n > 5 {
			n = 5
		}
		return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
	},
}

// HTMLRenderer keeps one template set per page.
type HTMLRenderer struct {
	Templates map[string]*template.Template
}

// LoadTemplates parses every page from the embedded templates.
func LoadTemplates() (*HTMLRenderer, error) {
	templates := make(map[string]*template.Template, len(pages))
	for name, files := range pages {
		tmpl, err := template.New(name).Funcs(TemplateFuncs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, errors.Wrapf(err, "parse template %s", name)
		}
		templates[name] = tmpl
	}
	return &HTMLRenderer{Templates: templates}, nil
}

// Instance implements render.HTMLRender.
func (r *HTMLRenderer) Instance(name string, data interface{}) render.Render {
	tmpl, ok := r.Templates[name]
	if !ok {
		log.WithField("template", name).Error("HTMLRenderer.Instance - unknown template")
		return missingTemplate(name)
	}
	return render.HTML{
		Template: tmpl,
		Data:     data,
	}
}

type missingTemplate string

func (m missingTemplate) Render(w http.ResponseWriter) error {
	m.WriteContentType(w)
	_, err := w.Write([]byte("template " + string(m) + " not found"))
	return err
}

func (m missingTemplate) WriteContentType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
}
