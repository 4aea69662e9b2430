package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
)

//go:embed templates
var embeddedTemplates embed.FS

// Renderer manages template parsing and rendering with isolated template sets.
//
// Templates are organized as:
//   - layouts/auth.html - base layout for the operator screens
//   - components/*.html - reusable components
//   - pages/auth/*.html - pages, stored as "auth/<name>"
type Renderer struct {
	fsys      fs.FS
	templates map[string]*template.Template
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewRenderer creates a renderer over the templates compiled into the binary.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("open embedded templates: %w", err)
	}
	return NewRendererFromFS(sub, logger)
}

// NewRendererFromFS creates a renderer from fsys, laid out as described on
// Renderer.
func NewRendererFromFS(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Renderer{
		fsys:      fsys,
		templates: make(map[string]*template.Template),
		logger:    logger,
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Renderer) loadTemplates() error {
	componentFiles, err := fs.Glob(r.fsys, "components/*.html")
	if err != nil {
		return fmt.Errorf("failed to glob components: %w", err)
	}

	authBaseTmpl, err := template.New("auth").Funcs(TemplateFuncs()).ParseFS(r.fsys, "layouts/auth.html")
	if err != nil {
		return fmt.Errorf("failed to parse auth layout: %w", err)
	}

	// Parse components into auth layout
	if len(componentFiles) > 0 {
		authBaseTmpl, err = authBaseTmpl.ParseFS(r.fsys, componentFiles...)
		if err != nil {
			return fmt.Errorf("failed to parse components into auth layout: %w", err)
		}
	}

	authPages, err := fs.Glob(r.fsys, "pages/auth/*.html")
	if err != nil {
		return fmt.Errorf("failed to glob auth pages: %w", err)
	}

	templates := make(map[string]*template.Template, len(authPages))
	for _, page := range authPages {
		pageTmpl, err := authBaseTmpl.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone auth template for %s: %w", page, err)
		}

		pageTmpl, err = pageTmpl.ParseFS(r.fsys, page)
		if err != nil {
			return fmt.Errorf("failed to parse auth page %s: %w", page, err)
		}

		// Store as "auth/login", "auth/welcome", etc.
		pageName := strings.TrimSuffix(path.Base(page), path.Ext(page))
		templates["auth/"+pageName] = pageTmpl
	}

	r.templates = templates
	r.logger.Info("templates loaded", "count", len(r.templates))
	return nil
}

// Reload re-parses every template.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadTemplates()
}

func (r *Renderer) lookup(name string) (*template.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[name]
	return tmpl, ok
}

// Render renders a template to an io.Writer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	tmpl, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, r.getBaseTemplateName(name), data)
}

// RenderHTTP renders a template with status 200.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	r.RenderHTTPStatus(w, http.StatusOK, name, data)
}

// RenderHTTPStatus renders a template directly to an http.ResponseWriter
// with the given status.
func (r *Renderer) RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	tmpl, ok := r.lookup(name)
	if !ok {
		r.logger.Error("template not found", "name", name)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	// Render to buffer first to catch errors before writing headers
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, r.getBaseTemplateName(name), data); err != nil {
		r.logger.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "Template execution failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// getBaseTemplateName determines which base template to execute.
func (r *Renderer) getBaseTemplateName(name string) string {
	if i := strings.IndexByte(name, '/'); i > 0 {
		return name[:i]
	}
	return name
}

// ListTemplates returns a list of all loaded template names.
func (r *Renderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
