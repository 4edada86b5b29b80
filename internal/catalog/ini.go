// Package catalog implements the small INI-like reader shared by the
// Versions Catalog (versions.conf) and the Instance-Types Catalog
// (instance-types.conf): both are section/key documents with
// `^\[section\]` headers and `KEY=VALUE` lines. Parsed documents are
// cached in an LRU keyed by (path, mtime) so the Init Engine's several
// lookups against the same catalog file in one command invocation don't
// re-parse it, generalized from the teacher's LRU-backed template cache
// (internal/notification/template/cache.go), which caches by content
// hash rather than (path, mtime) since templates have no backing file.
package catalog

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// Document is a parsed section/key catalog. Section order is preserved so
// "the highest non-local baseline" (update-versions §4.8) can be found by
// walking sections in file order.
type Document struct {
	order    []string
	sections map[string]map[string]string
}

// Sections returns section names in the order they appeared in the file.
func (d *Document) Sections() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// HasSection reports whether section exists.
func (d *Document) HasSection(section string) bool {
	_, ok := d.sections[section]
	return ok
}

// Lookup returns the value of (section, key). Returns orcherrors.CodeNotFound
// if the section or key is absent.
func (d *Document) Lookup(section, key string) (string, error) {
	kv, ok := d.sections[section]
	if !ok {
		return "", orcherrors.NotFound("section " + section)
	}
	val, ok := kv[key]
	if !ok {
		return "", orcherrors.MalformedSection(section, key)
	}
	return val, nil
}

// SectionKeys returns the raw key/value map for section, or nil if absent.
// Callers must not mutate the returned map.
func (d *Document) SectionKeys(section string) map[string]string {
	return d.sections[section]
}

// Parse reads an INI-like document from r.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{sections: make(map[string]map[string]string)}

	scanner := bufio.NewScanner(r)
	var current string

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, orcherrors.Validationf("malformed section header at line %d: %q", lineNo, line)
			}
			name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			if _, exists := doc.sections[name]; !exists {
				doc.order = append(doc.order, name)
				doc.sections[name] = make(map[string]string)
			}
			current = name
			continue
		}

		if current == "" {
			return nil, orcherrors.Validationf("key=value line at line %d appears before any section header", lineNo)
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, orcherrors.Validationf("malformed key=value line at line %d: %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		doc.sections[current][key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, orcherrors.Internal("failed to scan catalog", err)
	}
	return doc, nil
}

type cacheEntry struct {
	mtime time.Time
	doc   *Document
}

var (
	parseCache     *lru.Cache[string, cacheEntry]
	parseCacheOnce sync.Once
)

func cache() *lru.Cache[string, cacheEntry] {
	parseCacheOnce.Do(func() {
		c, err := lru.New[string, cacheEntry](16)
		if err != nil {
			panic(err)
		}
		parseCache = c
	})
	return parseCache
}

// Load reads and parses the catalog at path, serving a cached parse when
// the file's mtime has not changed since the last Load in this process.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.NotFound("catalog file " + path)
		}
		return nil, orcherrors.Internal("failed to stat catalog file", err)
	}

	c := cache()
	if entry, ok := c.Get(path); ok && entry.mtime.Equal(info.ModTime()) {
		return entry.doc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, orcherrors.Internal("failed to open catalog file", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, err
	}

	c.Add(path, cacheEntry{mtime: info.ModTime(), doc: doc})
	return doc, nil
}

// InvalidateCache drops any cached parse for path. update-versions calls
// this after appending a new section so a subsequent Load in the same
// process sees the change instead of the pre-update parse.
func InvalidateCache(path string) {
	cache().Remove(path)
}
