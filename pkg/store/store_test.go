package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetDelete(t *testing.T) {
	s := New(nil)

	d, err := s.Create("home", "<title> Home  page </title><p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "home", d.Name)
	assert.Equal(t, "Home page", d.Title)
	assert.Equal(t, ETag("<title> Home  page </title><p>hi</p>"), d.ETag)
	assert.Equal(t, 5, d.Elements)

	got, err := s.Get("home")
	require.NoError(t, err)
	assert.Same(t, d, got)

	_, err = s.Create("home", "<p></p>")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, s.Delete("home"))
	_, err = s.Get("home")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("home"), ErrNotFound)
}

func TestCreateGeneratesName(t *testing.T) {
	s := New(nil)
	a, err := s.Create("", "<p>a</p>")
	require.NoError(t, err)
	b, err := s.Create("", "<p>a</p>")
	require.NoError(t, err)
	assert.NotEmpty(t, a.Name)
	assert.NotEqual(t, a.Name, b.Name)
	assert.Len(t, s.List(), 2)
}

func TestPutKeepsUnchangedDocument(t *testing.T) {
	s := New(nil)
	first, err := s.Put("doc", "<p>one</p>")
	require.NoError(t, err)

	same, err := s.Put("doc", "<p>one</p>")
	require.NoError(t, err)
	assert.Same(t, first, same)

	changed, err := s.Put("doc", "<p>two</p>")
	require.NoError(t, err)
	assert.NotSame(t, first, changed)
	assert.NotEqual(t, first.ETag, changed.ETag)
	assert.Equal(t, first.CreateTime, changed.CreateTime)
}

func TestListIsSorted(t *testing.T) {
	s := New(nil)
	for _, name := range []string{"b", "c", "a"} {
		_, err := s.Create(name, "<p></p>")
		require.NoError(t, err)
	}
	var names []string
	for _, d := range s.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.html":          "<p>index</p>",
		"shop/cart.html":      "<p>cart</p>",
		"shop/deep/item.html": "<p>item</p>",
		"notes.txt":           "not html",
		"shop/deep/style.css": "p {}",
	}
	for rel, body := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	s := New(nil)
	n, err := s.LoadDir(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var names []string
	for _, d := range s.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"index", "shop/cart", "shop/deep/item"}, names)

	n, err = s.LoadDir(dir, "shop/*.html")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.LoadDir(dir, "[")
	assert.Error(t, err)
}
