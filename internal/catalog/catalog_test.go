package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestListFiltersBySuffix(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.mp3", "two.mp3", "readme.txt", "cover.jpg")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp3"), 0o755))

	c := New(dir, ".mp3", zerolog.Nop())
	got := c.List()

	assert.ElementsMatch(t, []string{"one.mp3", "two.mp3"}, got)
}

func TestListEmptyDirectory(t *testing.T) {
	c := New(t.TempDir(), ".mp3", zerolog.Nop())
	assert.Empty(t, c.List())
}

func TestListUnreadableDirectory(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "does-not-exist"), ".mp3", zerolog.Nop())
	assert.Empty(t, c.List())
}

func TestSearchIsFilteredList(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"hey_jude.mp3", "let_it_be.mp3", "yesterday.mp3", "jude_remix.mp3", "notes.txt")

	c := New(dir, ".mp3", zerolog.Nop())

	for _, term := range []string{"jude", "let", "mp3", "zzz", ""} {
		var want []string
		for _, name := range c.List() {
			if strings.Contains(name, term) {
				want = append(want, name)
			}
		}
		assert.ElementsMatch(t, want, c.Search(term), "term %q", term)
	}
}

func TestSearchIsCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Jude.mp3", "jude.mp3")

	c := New(dir, ".mp3", zerolog.Nop())
	assert.Equal(t, []string{"jude.mp3"}, c.Search("jude"))
}
