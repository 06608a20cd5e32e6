// Package catalog enumerates the media files a server offers. The catalog is
// stateless: every call rescans the live directory, so additions and removals
// are visible on the next request without any invalidation logic.
package catalog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Catalog scans a single directory for eligible files.
type Catalog struct {
	dir    string
	suffix string
	log    zerolog.Logger
}

// New returns a catalog over dir. Only regular files whose name contains
// suffix (case-sensitive) are eligible.
func New(dir, suffix string, log zerolog.Logger) *Catalog {
	return &Catalog{dir: dir, suffix: suffix, log: log}
}

// Dir returns the directory the catalog scans.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns every eligible filename in directory-enumeration order.
// An unreadable directory yields an empty result; the failure is logged for
// the operator but is not part of the peer-visible contract.
func (c *Catalog) List() []string {
	return c.scan(func(string) bool { return true })
}

// Search returns the subset of List whose names contain term (case-sensitive).
func (c *Catalog) Search(term string) []string {
	return c.scan(func(name string) bool { return strings.Contains(name, term) })
}

func (c *Catalog) scan(match func(string) bool) []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Error().Err(err).Str("dir", c.dir).Msg("cannot open media directory")
		return nil
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.Contains(name, c.suffix) && match(name) {
			names = append(names, name)
		}
	}
	return names
}
