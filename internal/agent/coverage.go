package agent

import (
	"fmt"
	"sort"
	"strings"
)

// domainKeywords are the fixed per-domain scan sets. A candidate counts for
// every domain whose keywords appear in its raw text.
var domainKeywords = map[string][]string{
	"behavioral_health": {"behavioral health"},
	"residential":       {"residential"},
	"idd":               {"i/dd", "intellectual and developmental"},
	"nursing":           {"nurse", "rn"},
}

// primaryDomain drives the satisfaction predicate.
const primaryDomain = "behavioral_health"

// Coverage tracks per-domain hit counters across acquired candidates.
type Coverage struct {
	counts map[string]int
	total  int
}

// NewCoverage returns an empty Coverage.
func NewCoverage() *Coverage {
	return &Coverage{counts: make(map[string]int)}
}

// Observe scans one candidate's raw text against every domain keyword set.
func (c *Coverage) Observe(rawText string) {
	lower := strings.ToLower(rawText)
	for domain, keywords := range domainKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				c.counts[domain]++
				break
			}
		}
	}
	c.total++
}

// Ratio reports the fraction of observed candidates matching a domain.
func (c *Coverage) Ratio(domain string) float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.counts[domain]) / float64(c.total)
}

// Total reports how many candidates have been observed.
func (c *Coverage) Total() int { return c.total }

// Summary renders a stable text description for query refinement prompts.
func (c *Coverage) Summary() string {
	if c.total == 0 {
		return "no candidates acquired yet"
	}
	domains := make([]string, 0, len(domainKeywords))
	for d := range domainKeywords {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	parts := make([]string, 0, len(domains)+1)
	parts = append(parts, fmt.Sprintf("%d candidates acquired", c.total))
	for _, d := range domains {
		parts = append(parts, fmt.Sprintf("%s: %d (%.0f%%)", d, c.counts[d], 100*c.Ratio(d)))
	}
	return strings.Join(parts, "; ")
}
