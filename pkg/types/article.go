// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pubmed-digest pipeline:
// article records, journal rules, configuration, and error kinds.
package types

// FilterMode selects how a journal's articles are admitted into the digest.
type FilterMode string

const (
	// AcceptAll keeps every article the journal returns.
	AcceptAll FilterMode = "accept_all"
	// KeywordFilter keeps only articles whose title or abstract matches the keyword pattern.
	KeywordFilter FilterMode = "keyword_filter"
)

// JournalRule pairs a journal display name, as PubMed indexes it, with its filter mode.
type JournalRule struct {
	Name string     `json:"name" yaml:"name" mapstructure:"name"`
	Mode FilterMode `json:"mode" yaml:"mode" mapstructure:"mode"`
}

// ArticleRecord is one normalized PubMed article.
type ArticleRecord struct {
	// ID is the PubMed identifier (PMID).
	ID string `json:"pmid" yaml:"pmid"`

	// Title is the article title with inline markup removed.
	Title string `json:"title" yaml:"title"`

	// Journal is the journal display name.
	Journal string `json:"journal" yaml:"journal"`

	// PubDate is a partial ISO date: year, year-month, or year-month-day.
	// Months may be PubMed abbreviations (e.g. "2024-Mar-05").
	PubDate string `json:"pub_date" yaml:"pub_date"`

	// DOI is the article DOI, if PubMed lists one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Authors is the short credit line ("Jane Doe et al.").
	Authors string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Abstract holds every abstract section joined by newlines.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}
