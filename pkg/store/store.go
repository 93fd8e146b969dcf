// Package store provides in-memory storage for parsed HTML documents.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
)

// ErrNotFound is returned for unknown document names.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyExists is returned when creating a document under a taken name.
var ErrAlreadyExists = errors.New("document already exists")

// Document is a stored, parsed HTML document. The parsed tree is treated as
// read-only once stored.
type Document struct {
	Name       string    `json:"name"`
	Title      string    `json:"title,omitempty"`
	Source     string    `json:"source,omitempty"`
	ETag       string    `json:"etag"`
	Elements   int       `json:"elements"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`

	Doc *dom.Document `json:"-"`
}

// Store is a thread-safe in-memory document store.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*Document
	logger    *zap.Logger
}

// New creates a new empty store. A nil logger discards output.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		documents: make(map[string]*Document),
		logger:    logger,
	}
}

// NewName returns a fresh random document name.
func NewName() string {
	return uuid.NewString()
}

// ETag returns the content hash used to detect changed documents.
func ETag(source string) string {
	return strconv.FormatUint(xxhash.Sum64String(source), 16)
}

func parse(name, source string) (*Document, error) {
	doc, err := dom.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parsing document %q: %w", name, err)
	}
	now := time.Now()
	return &Document{
		Name:       name,
		Title:      title(doc),
		Source:     source,
		ETag:       ETag(source),
		Elements:   len(doc.AllElements()),
		CreateTime: now,
		UpdateTime: now,
		Doc:        doc,
	}, nil
}

func title(doc *dom.Document) string {
	for _, el := range doc.AllElements() {
		if dom.TagName(el) == "title" {
			return dom.NormalizeWhiteSpace(dom.OwnText(el))
		}
	}
	return ""
}

// Create parses source and stores it under name. An empty name gets a
// generated one.
func (s *Store) Create(name, source string) (*Document, error) {
	if name == "" {
		name = NewName()
	}
	d, err := parse(name, source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	s.documents[name] = d
	return d, nil
}

// Put creates or replaces the document under name. An unchanged source
// keeps the stored document and its element handles.
func (s *Store) Put(name, source string) (*Document, error) {
	etag := ETag(source)
	s.mu.RLock()
	existing, ok := s.documents[name]
	s.mu.RUnlock()
	if ok && existing.ETag == etag {
		return existing, nil
	}

	d, err := parse(name, source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.documents[name]; ok {
		d.CreateTime = prev.CreateTime
	}
	s.documents[name] = d
	return d, nil
}

// Get retrieves a document by name.
func (s *Store) Get(name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// List returns all documents sorted by name.
func (s *Store) List() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Document, 0, len(s.documents))
	for _, d := range s.documents {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Delete removes a document.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.documents, name)
	return nil
}

// LoadDir stores every file under dir matching the doublestar pattern. The
// document name is the slash-separated path relative to dir without its
// extension. Files that fail to load are logged and skipped.
func (s *Store) LoadDir(dir, pattern string) (int, error) {
	if pattern == "" {
		pattern = "**/*.html"
	}
	if !doublestar.ValidatePattern(pattern) {
		return 0, fmt.Errorf("invalid documents pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("reading documents directory: %w", err)
	}

	loaded := 0
	for _, rel := range matches {
		data, err := fs.ReadFile(os.DirFS(dir), rel)
		if err != nil {
			s.logger.Warn("could not read document", zap.String("file", rel), zap.Error(err))
			continue
		}
		name := strings.TrimSuffix(rel, filepath.Ext(rel))
		if _, err := s.Put(name, string(data)); err != nil {
			s.logger.Warn("could not load document", zap.String("file", rel), zap.Error(err))
			continue
		}
		loaded++
		s.logger.Debug("loaded document", zap.String("name", name), zap.String("file", rel))
	}
	s.logger.Info("loaded documents", zap.Int("count", loaded), zap.String("dir", dir))
	return loaded, nil
}
