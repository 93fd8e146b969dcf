// Package api implements the REST API for querying stored documents and
// generating selectors.
package api

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/generator"
	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
	"github.com/lemonberrylabs/selector-engine/pkg/store"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	store  *store.Store
	engine *runtime.Engine
	logger *zap.Logger
}

// New creates a new API server.
func New(s *store.Store, engine *runtime.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:  s,
		engine: engine,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             16 * 1024 * 1024,
	})

	// Documents API
	app.Post("/v1/documents", srv.createDocument)
	app.Get("/v1/documents", srv.listDocuments)
	app.Get("/v1/documents/:document", srv.getDocument)
	app.Put("/v1/documents/:document", srv.putDocument)
	app.Delete("/v1/documents/:document", srv.deleteDocument)

	// Evaluation API
	app.Post("/v1/documents/:document\\:query", srv.query)
	app.Post("/v1/documents/:document\\:generate", srv.generate)
	app.Post("/v1/documents/:document\\:findText", srv.findText)

	// Selectors API
	app.Get("/v1/engines", srv.listEngines)
	app.Post("/v1/selectors\\:parse", srv.parseSelector)
	app.Post("/v1/selectors\\:tokenize", srv.tokenize)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Errors ---

var errInvalidName = errors.New("invalid document name")

func apiError(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  statusName(code),
		},
	})
}

func statusName(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "ALREADY_EXISTS"
	default:
		return "INTERNAL"
	}
}

// fail maps an error from the store or the engine to a response.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var se *types.SelectorError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apiError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return apiError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &se), errors.Is(err, generator.ErrForeignElement), errors.Is(err, errInvalidName):
		return apiError(c, fiber.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return apiError(c, fiber.StatusInternalServerError, err.Error())
	}
}

// --- Document Handlers ---

type documentRequest struct {
	Source string `json:"source"`
}

func (s *Server) createDocument(c *fiber.Ctx) error {
	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Source == "" {
		return apiError(c, fiber.StatusBadRequest, "source is required")
	}

	d, err := s.store.Create(c.Query("documentId"), req.Source)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(documentToJSON(d, false))
}

func (s *Server) listDocuments(c *fiber.Ctx) error {
	docs := s.store.List()
	items := make([]fiber.Map, len(docs))
	for i, d := range docs {
		items[i] = documentToJSON(d, false)
	}
	return c.JSON(fiber.Map{
		"documents": items,
	})
}

func (s *Server) getDocument(c *fiber.Ctx) error {
	d, err := s.document(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(documentToJSON(d, c.QueryBool("source", true)))
}

func (s *Server) putDocument(c *fiber.Ctx) error {
	name, err := documentName(c)
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err.Error())
	}
	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Source == "" {
		return apiError(c, fiber.StatusBadRequest, "source is required")
	}
	d, err := s.store.Put(name, req.Source)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(documentToJSON(d, false))
}

func (s *Server) deleteDocument(c *fiber.Ctx) error {
	name, err := documentName(c)
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := s.store.Delete(name); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"name": name, "deleted": true})
}

// --- Evaluation Handlers ---

type queryRequest struct {
	Selector string `json:"selector"`
	// Root is an element handle narrowing the query.
	Root  *int `json:"root"`
	Light bool `json:"light"`
}

func (s *Server) query(c *fiber.Ctx) error {
	d, err := s.document(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Selector == "" {
		return apiError(c, fiber.StatusBadRequest, "selector is required")
	}
	opts := runtime.QueryOptions{Light: req.Light}
	if req.Root != nil {
		if opts.Root, err = element(d, *req.Root); err != nil {
			return apiError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	nodes, err := s.engine.QuerySelectorAll(d.Doc, req.Selector, opts)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"selector": req.Selector,
		"elements": runtime.DescribeAll(d.Doc, nodes),
	})
}

type generateRequest struct {
	// Handle identifies the target directly; otherwise the first match of
	// Selector is the target.
	Handle   *int   `json:"handle"`
	Selector string `json:"selector"`
}

func (s *Server) generate(c *fiber.Ctx) error {
	d, err := s.document(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	var target *html.Node
	switch {
	case req.Handle != nil:
		if target, err = element(d, *req.Handle); err != nil {
			return apiError(c, fiber.StatusBadRequest, err.Error())
		}
	case req.Selector != "":
		if target, err = s.engine.QuerySelector(d.Doc, req.Selector, runtime.QueryOptions{}); err != nil {
			return s.fail(c, err)
		}
		if target == nil {
			return apiError(c, fiber.StatusNotFound, fmt.Sprintf("no element matches %q", req.Selector))
		}
	default:
		return apiError(c, fiber.StatusBadRequest, "handle or selector is required")
	}

	res, err := s.engine.GenerateSelector(d.Doc, target)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"selector": res.Selector,
		"elements": runtime.DescribeAll(d.Doc, res.Elements),
	})
}

type findTextRequest struct {
	Text       string `json:"text"`
	IgnoreCase bool   `json:"ignoreCase"`
}

func (s *Server) findText(c *fiber.Ctx) error {
	d, err := s.document(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req findTextRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Text == "" {
		return apiError(c, fiber.StatusBadRequest, "text is required")
	}
	el := s.engine.FindText(d.Doc, nil, req.Text, req.IgnoreCase)
	if el == nil {
		return apiError(c, fiber.StatusNotFound, fmt.Sprintf("text %q not found", req.Text))
	}
	return c.JSON(fiber.Map{
		"element": runtime.Describe(d.Doc, el),
	})
}

// --- Selector Handlers ---

func (s *Server) listEngines(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"engines": s.engine.EngineNames()})
}

type parseRequest struct {
	Selector string `json:"selector"`
}

func (s *Server) parseSelector(c *fiber.Ctx) error {
	var req parseRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	parsed, err := s.engine.ParseSelector(req.Selector)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(runtime.ViewParsed(parsed))
}

type tokenizeRequest struct {
	Input string `json:"input"`
}

func (s *Server) tokenize(c *fiber.Ctx) error {
	var req tokenizeRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	tokens, err := s.engine.Tokenize(req.Input)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"tokens": runtime.ViewTokens(tokens)})
}

// --- Helpers ---

// documentName decodes the document path parameter. Names loaded from nested
// directories contain slashes, which clients send escaped.
func documentName(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("document"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidName, err)
	}
	return name, nil
}

func (s *Server) document(c *fiber.Ctx) (*store.Document, error) {
	name, err := documentName(c)
	if err != nil {
		return nil, err
	}
	return s.store.Get(name)
}

func element(d *store.Document, handle int) (*html.Node, error) {
	el := d.Doc.ElementAt(handle)
	if el == nil {
		return nil, fmt.Errorf("element handle %d out of range [0, %d)", handle, d.Elements)
	}
	return el, nil
}

func documentToJSON(d *store.Document, withSource bool) fiber.Map {
	result := fiber.Map{
		"name":       d.Name,
		"etag":       d.ETag,
		"elements":   d.Elements,
		"createTime": d.CreateTime.Format(time.RFC3339),
		"updateTime": d.UpdateTime.Format(time.RFC3339),
	}
	if d.Title != "" {
		result["title"] = d.Title
	}
	if withSource {
		result["source"] = d.Source
	}
	return result
}
