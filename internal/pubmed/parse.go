// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// Parse decodes an efetch PubmedArticleSet document and returns one record
// per PubmedArticle in document order. Missing optional fields are empty.
func Parse(xmlText string) ([]types.ArticleRecord, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	dec.Entity = xml.HTMLEntity

	var set pubmedArticleSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decoding efetch XML: %v", types.ErrParse, err)
	}

	records := make([]types.ArticleRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		records = append(records, a.record())
	}
	return records, nil
}

func (a pubmedArticle) record() types.ArticleRecord {
	art := a.Citation.Article
	return types.ArticleRecord{
		ID:       strings.TrimSpace(a.Citation.PMID),
		Title:    strings.TrimSpace(string(art.Title)),
		Journal:  strings.TrimSpace(art.Journal.Title),
		PubDate:  art.Journal.PubDate.String(),
		DOI:      a.Data.doi(),
		Authors:  shortAuthors(art.Authors),
		Abstract: joinAbstract(art.Abstract),
	}
}

// String joins the non-empty date parts with hyphens.
func (d pubDate) String() string {
	var parts []string
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Trim(strings.Join(parts, "-"), "-")
}

func (d pubmedData) doi() string {
	for _, id := range d.ArticleIDs {
		if strings.EqualFold(strings.TrimSpace(id.Type), "doi") {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

// shortAuthors credits the first author by name and marks additional authors
// with "et al.". A first author without a personal name yields "".
func shortAuthors(authors []author) string {
	if len(authors) == 0 {
		return ""
	}
	first := strings.TrimSpace(strings.TrimSpace(authors[0].ForeName) + " " + strings.TrimSpace(authors[0].LastName))
	if first != "" && len(authors) >= 2 {
		return first + " et al."
	}
	return first
}

func joinAbstract(sections []flatText) string {
	var texts []string
	for _, s := range sections {
		if t := strings.TrimSpace(string(s)); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// flatText collects all character data inside an element, dropping inline
// markup such as <i>, <sup>, or <b>.
type flatText string

func (f *flatText) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	*f = flatText(b.String())
	return nil
}

// efetch XML structures.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
	Data     pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    string  `xml:"PMID"`
	Article article `xml:"Article"`
}

type article struct {
	Journal  journal    `xml:"Journal"`
	Title    flatText   `xml:"ArticleTitle"`
	Abstract []flatText `xml:"Abstract>AbstractText"`
	Authors  []author   `xml:"AuthorList>Author"`
}

type journal struct {
	Title   string  `xml:"Title"`
	PubDate pubDate `xml:"JournalIssue>PubDate"`
}

type pubDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type author struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedData struct {
	ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
}

type articleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}
