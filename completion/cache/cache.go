// Package cache remembers recent completions keyed by the text around the
// caret, so re-requesting at an unchanged spot skips the provider.
package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 500
	DefaultTTL  = 30 * time.Minute

	keyContextChars = 100
)

// Entry is a cached completion.
type Entry struct {
	Text      string
	Rationale string
	Model     string
	Tokens    int
}

// Key identifies a completion request for caching.
type Key struct {
	Language string
	Before   string // text before the caret
	After    string // text after the caret
	Line     int
	Column   int
	Strategy string
}

// String renders the key. Surrounding text is limited to 100 bytes on each
// side, cut on rune boundaries, and whitespace runs collapse, so edits far from the caret or pure
// re-indentation do not miss.
func (k Key) String() string {
	before := k.Before
	if len(before) > keyContextChars {
		i := len(before) - keyContextChars
		for i < len(before) && !utf8.RuneStart(before[i]) {
			i++
		}
		before = before[i:]
	}
	after := k.After
	if len(after) > keyContextChars {
		i := keyContextChars
		for i > 0 && !utf8.RuneStart(after[i]) {
			i--
		}
		after = after[:i]
	}
	return fmt.Sprintf("type=%s|ctx=%s||%s|pos=%d:%d|s=%s",
		k.Language, normalize(before), normalize(after), k.Line, k.Column, k.Strategy)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a size- and age-bounded completion cache. It is safe for
// concurrent use.
type Cache struct {
	lru    *expirable.LRU[string, Entry]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache. Non-positive arguments use the defaults.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Get looks up k.
func (c *Cache) Get(k Key) (Entry, bool) {
	e, ok := c.lru.Get(k.String())
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Put stores e under k. Blank completions are not cached.
func (c *Cache) Put(k Key, e Entry) {
	if strings.TrimSpace(e.Text) == "" {
		return
	}
	c.lru.Add(k.String(), e)
}

// Purge drops every entry and resets the counters.
func (c *Cache) Purge() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}
