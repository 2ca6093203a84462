// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package digest filters, groups, and renders the articles found in a run.
package digest

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// UnknownJournal is the bucket for articles whose journal is empty.
const UnknownJournal = "Unknown"

// Matcher decides whether an article passes a journal's rule.
type Matcher struct {
	keywords *regexp.Regexp
}

// NewMatcher compiles the keyword pattern used by types.KeywordFilter.
func NewMatcher(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling keyword pattern: %v", types.ErrConfiguration, err)
	}
	return &Matcher{keywords: re}, nil
}

// Keep reports whether a is admitted under mode. Unknown modes admit nothing.
func (m *Matcher) Keep(a types.ArticleRecord, mode types.FilterMode) bool {
	switch mode {
	case types.AcceptAll:
		return true
	case types.KeywordFilter:
		return m.keywords.MatchString(a.Title + "\n" + a.Abstract)
	default:
		return false
	}
}

// Dedup drops articles without an id and keeps one record per id. The last
// record seen for an id wins; output order follows first appearance.
func Dedup(articles []types.ArticleRecord) []types.ArticleRecord {
	index := make(map[string]int, len(articles))
	var out []types.ArticleRecord
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if i, ok := index[a.ID]; ok {
			out[i] = a
			continue
		}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	return out
}

// Bundle maps journal name to its articles, each slice ordered by
// (PubDate, Title).
type Bundle map[string][]types.ArticleRecord

// Group deduplicates articles and partitions them by journal.
func Group(articles []types.ArticleRecord) Bundle {
	b := make(Bundle)
	for _, a := range Dedup(articles) {
		journal := a.Journal
		if journal == "" {
			journal = UnknownJournal
		}
		b[journal] = append(b[journal], a)
	}
	for _, items := range b {
		sortArticles(items)
	}
	return b
}

func sortArticles(items []types.ArticleRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PubDate != items[j].PubDate {
			return items[i].PubDate < items[j].PubDate
		}
		return items[i].Title < items[j].Title
	})
}

// Journals returns the journal names in alphabetical order.
func (b Bundle) Journals() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total returns the number of articles across all journals.
func (b Bundle) Total() int {
	n := 0
	for _, items := range b {
		n += len(items)
	}
	return n
}

// IDs returns every article id, journal by journal in alphabetical order.
func (b Bundle) IDs() []string {
	var ids []string
	for _, name := range b.Journals() {
		for _, a := range b[name] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
