// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package digest

import (
	"fmt"
	"strings"
)

// Title is the heading shared by the digest, the summary, and the email subject.
const Title = "PubMed Ophthalmology Weekly Digest"

// DefaultTopN is the number of articles per journal listed in the email summary.
const DefaultTopN = 5

// permalinkBase is the PubMed article page template.
const permalinkBase = "https://pubmed.ncbi.nlm.nih.gov/%s/"

// Permalink returns the PubMed page URL for a PMID.
func Permalink(id string) string {
	return fmt.Sprintf(permalinkBase, id)
}

// RenderDigest produces the full Markdown digest. Output depends only on the
// arguments.
func RenderDigest(runDate, start, end string, b Bundle) string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("# %s (%s)\n", Title, runDate),
		fmt.Sprintf("- Period: **%s ~ %s**", start, end),
		fmt.Sprintf("- Total papers: **%d**\n", b.Total()),
	)

	for _, journal := range b.Journals() {
		items := b[journal]
		lines = append(lines, fmt.Sprintf("---\n## %s  \n**(%d papers)**\n", journal, len(items)))

		for i, a := range items {
			lines = append(lines, fmt.Sprintf("### %d. %s", i+1, a.Title))

			var meta []string
			if a.Authors != "" {
				meta = append(meta, "Authors: "+a.Authors)
			}
			if a.PubDate != "" {
				meta = append(meta, "Date: "+a.PubDate)
			}
			if a.ID != "" {
				meta = append(meta, fmt.Sprintf("PMID: %s (%s)", a.ID, Permalink(a.ID)))
			}
			if a.DOI != "" {
				meta = append(meta, "DOI: "+a.DOI)
			}
			if len(meta) > 0 {
				lines = append(lines, "- "+strings.Join(meta, " | "))
			}
			lines = append(lines, "")

			if a.Abstract != "" {
				lines = append(lines, "**Abstract**\n", a.Abstract, "")
			}
		}
	}

	return strings.Join(lines, "\n")
}

// RenderEmptyDigest produces the digest written when a run finds nothing new.
func RenderEmptyDigest(runDate, start, end string) string {
	return fmt.Sprintf("# %s (%s)\n\n- %s\n", Title, runDate, NoNewPapers(start, end))
}

// NoNewPapers is the message used for runs without new articles.
func NoNewPapers(start, end string) string {
	return fmt.Sprintf("No new papers (%s ~ %s)", start, end)
}

// RenderEmailSummary produces the plain-text email body: up to topN articles
// per journal, with a count of the rest. A topN of zero or less uses DefaultTopN.
func RenderEmailSummary(runDate, start, end string, b Bundle, topN int) string {
	if topN <= 0 {
		topN = DefaultTopN
	}

	var lines []string
	lines = append(lines,
		fmt.Sprintf("%s (%s)", Title, runDate),
		fmt.Sprintf("Period: %s ~ %s", start, end),
		fmt.Sprintf("Total papers: %d", b.Total()),
		"",
		"Summary (top items per journal):",
		"",
	)

	for _, journal := range b.Journals() {
		items := b[journal]
		lines = append(lines, fmt.Sprintf("[%s] (%d papers)", journal, len(items)))

		shown := items
		if len(shown) > topN {
			shown = shown[:topN]
		}
		for _, a := range shown {
			lines = append(lines, "- "+strings.TrimSpace(a.Title))
			if authors := strings.TrimSpace(a.Authors); authors != "" {
				lines = append(lines, "  - "+authors)
			}
			if a.ID != "" {
				lines = append(lines, fmt.Sprintf("  - PMID %s: %s", a.ID, Permalink(a.ID)))
			}
		}
		if len(items) > topN {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(items)-topN))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "See the attached Markdown file for full abstracts and details.")
	return strings.Join(lines, "\n")
}

// EmptySummary is the email body for runs without new articles.
func EmptySummary(start, end, attachment string) string {
	return fmt.Sprintf("%s\n\nSee attached file: %s", NoNewPapers(start, end), attachment)
}

// Subject returns the email subject for a run with total new papers.
func Subject(runDate string, total int) string {
	if total <= 0 {
		return fmt.Sprintf("[PubMed Digest] %s (No new papers)", runDate)
	}
	return fmt.Sprintf("[PubMed Digest] Ophthalmology Weekly - %s (%d papers)", runDate, total)
}
