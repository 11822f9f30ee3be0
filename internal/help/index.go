// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package help

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/glamour"
)

//go:embed help.toml
var embedded []byte

// Entry is one help section.
type Entry struct {
	Name    string `toml:"name"`
	Title   string `toml:"title"`
	Summary string `toml:"summary"`
	Body    string `toml:"body"`
}

// Index is a read-only table of help entries.
type Index struct {
	entries map[string]Entry
	names   []string
}

type document struct {
	Sections []Entry `toml:"section"`
}

// Parse decodes a help table.
func Parse(data []byte) (*Index, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("decode help: %w", err)
	}

	idx := &Index{entries: make(map[string]Entry, len(doc.Sections))}
	for _, e := range doc.Sections {
		key := normalize(e.Name)
		if key == "" {
			return nil, fmt.Errorf("help section %q has no name", e.Title)
		}
		if _, dup := idx.entries[key]; dup {
			return nil, fmt.Errorf("duplicate help section %q", key)
		}
		e.Name = key
		e.Summary = strings.TrimSpace(e.Summary)
		e.Body = strings.TrimSpace(e.Body)
		idx.entries[key] = e
		idx.names = append(idx.names, key)
	}
	sort.Strings(idx.names)
	return idx, nil
}

var (
	defaultOnce  sync.Once
	defaultIndex *Index
	defaultErr   error
)

// Default returns the embedded index, decoding it on first use.
func Default() (*Index, error) {
	defaultOnce.Do(func() {
		defaultIndex, defaultErr = Parse(embedded)
	})
	return defaultIndex, defaultErr
}

// Lookup returns the entry for name, ignoring case.
func (idx *Index) Lookup(name string) (Entry, bool) {
	e, ok := idx.entries[normalize(name)]
	return e, ok
}

// Names returns every section name, sorted.
func (idx *Index) Names() []string {
	return append([]string(nil), idx.names...)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// =============================================================================
// RENDERING
// =============================================================================

var (
	rendererOnce sync.Once
	renderer     *glamour.TermRenderer
)

// Markdown renders body for a terminal, or returns it unchanged if the
// renderer is unavailable.
func Markdown(body string) string {
	rendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			renderer = r
		}
	})
	if renderer == nil {
		return body
	}
	out, err := renderer.Render(body)
	if err != nil {
		return body
	}
	return out
}

// Full returns the title and body of e. When styled is set the body is
// rendered as markdown.
func (e Entry) Full(styled bool) string {
	text := "# " + e.Title + "\n\n" + e.Body + "\n"
	if styled {
		return Markdown(text)
	}
	return e.Title + "\n\n" + e.Body + "\n"
}

// overviewSection is printed first by WriteManual.
const overviewSection = "overview"

// WriteManual writes every entry: the overview first, then the rest in
// name order.
func (idx *Index) WriteManual(w io.Writer, styled bool) error {
	names := idx.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return names[i] == overviewSection && names[j] != overviewSection
	})
	for _, name := range names {
		if _, err := io.WriteString(w, idx.entries[name].Full(styled)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
