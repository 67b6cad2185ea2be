// Package enrich turns raw acquired content into structured candidate
// records.
package enrich

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// corpusCap bounds the text sent to the extraction service.
const corpusCap = 15000

// minBlockLen filters out navigation fragments and button labels.
const minBlockLen = 50

var professionalKeywords = []string{
	"experience", "education", "skills", "work", "company",
	"university", "degree", "engineer", "developer", "manager",
}

// BuildCorpus assembles the extraction input for one profile: search title
// and snippet first, then structured-data blocks, then keyword-qualified
// content blocks, then a generic text fallback when nothing else qualified.
// The result is capped at corpusCap characters.
func BuildCorpus(title, snippet, rawHTML string) string {
	var parts []string
	if head := strings.TrimSpace(strings.TrimSpace(title) + "\n" + strings.TrimSpace(snippet)); head != "" {
		parts = append(parts, head)
	}

	if strings.TrimSpace(rawHTML) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
		if err == nil {
			structured := structuredBlocks(doc)
			parts = append(parts, structured...)

			qualified := keywordBlocks(doc)
			parts = append(parts, qualified...)

			if len(structured) == 0 && len(qualified) == 0 {
				if text := collapseWhitespace(doc.Text()); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}

	corpus := strings.Join(parts, "\n\n")
	if len(corpus) > corpusCap {
		corpus = corpus[:corpusCap]
	}
	return corpus
}

// structuredBlocks returns embedded ld+json payloads verbatim; they carry
// the densest profile facts when present.
func structuredBlocks(doc *goquery.Document) []string {
	var out []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// keywordBlocks returns content blocks that mention at least one
// professional-context keyword and exceed the minimum length.
func keywordBlocks(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find("p, li, section, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if len(text) <= minBlockLen || seen[text] {
			return
		}
		lower := strings.ToLower(text)
		for _, kw := range professionalKeywords {
			if strings.Contains(lower, kw) {
				seen[text] = true
				out = append(out, text)
				return
			}
		}
	})
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
