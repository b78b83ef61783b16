// Package mapping resolves obfuscated class identifiers to human-readable
// class names using an externally supplied table. The table source is a raw
// text blob the user pastes into settings, one "id name" pair per line.
package mapping

import (
	"strings"
	"sync"
)

// prefixLen is the truncated identifier length some calling surfaces emit.
// The table indexes every entry under this prefix as well as the full id.
const prefixLen = 15

// Table maps opaque class identifiers to class names. Lookups are
// read-mostly; the whole table is swapped when settings change.
type Table struct {
	byID map[string]string
}

// Parse builds a Table from the raw settings blob. Lines are
// "<id><sep><name>" with tab, comma, or whitespace separators; blank lines
// and lines starting with # are skipped. Malformed lines are ignored rather
// than rejected, matching the forgiving posture of the rest of the decoder.
func Parse(source string) *Table {
	t := &Table{byID: make(map[string]string)}

	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		id, name := splitEntry(line)
		if id == "" || name == "" {
			continue
		}

		t.byID[id] = name
		if len(id) > prefixLen {
			t.byID[id[:prefixLen]] = name
		}
	}

	return t
}

// splitEntry splits one mapping line into id and name. The id is the first
// token; the name is whatever follows the separator, trimmed.
func splitEntry(line string) (id, name string) {
	sep := strings.IndexAny(line, "\t, ")
	if sep < 0 {
		return "", ""
	}
	return strings.TrimSpace(line[:sep]), strings.TrimSpace(strings.TrimLeft(line[sep:], "\t, "))
}

// Resolve looks up an opaque id, trying the full id first and then its
// truncated prefix. It is safe on a nil table.
func (t *Table) Resolve(id string) (string, bool) {
	if t == nil || id == "" {
		return "", false
	}
	if name, ok := t.byID[id]; ok {
		return name, true
	}
	if len(id) > prefixLen {
		if name, ok := t.byID[id[:prefixLen]]; ok {
			return name, true
		}
	}
	return "", false
}

// Len reports the number of distinct keys in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byID)
}

// Swapper holds the current table and swaps it atomically when the settings
// blob changes. Normalizers snapshot the table once per exchange.
type Swapper struct {
	mu    sync.RWMutex
	table *Table
}

// NewSwapper creates a Swapper seeded from source.
func NewSwapper(source string) *Swapper {
	return &Swapper{table: Parse(source)}
}

// Current returns the table snapshot.
func (s *Swapper) Current() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Replace parses source and swaps it in.
func (s *Swapper) Replace(source string) {
	t := Parse(source)
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

// Resolve looks up id in the current table. It lets a Swapper stand in
// wherever a resolver is wanted while still honoring live swaps.
func (s *Swapper) Resolve(id string) (string, bool) {
	return s.Current().Resolve(id)
}
