// Package web provides the embedded selector playground UI.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
	"github.com/lemonberrylabs/selector-engine/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the playground pages.
type Handler struct {
	store   *store.Store
	engine  *runtime.Engine
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New creates a new playground handler.
func New(s *store.Store, engine *runtime.Engine) *Handler {
	return &Handler{
		store:  s,
		engine: engine,
		funcMap: template.FuncMap{
			"timeAgo":     timeAgo,
			"formatTime":  formatTime,
			"truncate":    truncate,
			"countLines":  countLines,
			"documentURL": documentURL,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout on its own so their define blocks
	// do not collide.
	tmpl, err := template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
	if err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pageData{NavActive: navActive, Data: data}); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds playground routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.documentList)
	app.Get("/ui/engines", h.engineList)
	app.Get("/ui/documents/*", h.documentDetail)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type documentListContent struct {
	Documents []*store.Document
}

type engineListContent struct {
	Engines []string
}

type documentDetailContent struct {
	Document  *store.Document
	Query     string
	Light     bool
	Elements  []runtime.ElementInfo
	Error     string
	Generated *generatedView
}

type generatedView struct {
	Handle   int
	Selector string
	Matches  int
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) documentList(c *fiber.Ctx) error {
	return h.render(c, "documents.html", "documents", documentListContent{
		Documents: h.store.List(),
	})
}

func (h *Handler) engineList(c *fiber.Ctx) error {
	return h.render(c, "engines.html", "engines", engineListContent{
		Engines: h.engine.EngineNames(),
	})
}

func (h *Handler) documentDetail(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		name = c.Params("*")
	}
	d, err := h.store.Get(name)
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Document '%s' not found", name),
		})
	}

	content := documentDetailContent{
		Document: d,
		Query:    c.Query("q"),
		Light:    c.QueryBool("light"),
	}
	if content.Query != "" {
		nodes, err := h.engine.QuerySelectorAll(d.Doc, content.Query, runtime.QueryOptions{Light: content.Light})
		if err != nil {
			content.Error = err.Error()
		} else {
			content.Elements = runtime.DescribeAll(d.Doc, nodes)
		}
	}
	if v := c.Query("generate"); v != "" {
		handle, err := strconv.Atoi(v)
		el := d.Doc.ElementAt(handle)
		if err != nil || el == nil {
			content.Error = fmt.Sprintf("invalid element handle %q", v)
		} else if res, err := h.engine.GenerateSelector(d.Doc, el); err != nil {
			content.Error = err.Error()
		} else {
			content.Generated = &generatedView{Handle: handle, Selector: res.Selector, Matches: len(res.Elements)}
		}
	}
	return h.render(c, "document.html", "documents", content)
}

// --- Template Helpers ---

func documentURL(name string) string {
	return "/ui/documents/" + url.PathEscape(name)
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
