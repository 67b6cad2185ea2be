package enrich

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// Extractor enriches acquired content into candidate records. Extraction
// failure never blocks candidate creation; a title-splitting heuristic
// backfills the identity fields instead.
type Extractor struct {
	llm    llm.Service
	logger *zap.Logger
	now    func() time.Time
}

// NewExtractor builds an Extractor.
func NewExtractor(svc llm.Service, logger *zap.Logger) *Extractor {
	return &Extractor{llm: svc, logger: logger, now: time.Now}
}

// Extract builds the corpus for one search result and returns a candidate.
// rawContent may be empty when every acquisition channel came up short;
// the search title and snippet still make a minimal record. source names
// the channel that produced rawContent.
func (e *Extractor) Extract(ctx context.Context, res talent.SearchResult, rawContent, source string) talent.Candidate {
	corpus := BuildCorpus(res.Title, res.Snippet, rawContent)

	c := talent.Candidate{
		ProfileURL:    res.URL,
		RawText:       corpus,
		Source:        source,
		LastFetchedAt: e.now(),
	}

	enr, err := e.llm.EnrichProfile(ctx, corpus)
	if err != nil {
		e.logger.Warn("profile extraction failed, using title heuristic",
			zap.String("url", res.URL),
			zap.Error(err),
		)
		name, title, company := SplitTitle(res.Title)
		c.Name = name
		c.CurrentTitle = title
		c.CurrentCompany = company
		c.Headline = strings.TrimSpace(res.Title)
		c.Skills = []string{}
		c.Domains = []string{}
		return c
	}

	c.Name = enr.Name
	c.Headline = enr.Headline
	c.CurrentTitle = enr.CurrentTitle
	c.CurrentCompany = enr.CurrentCompany
	c.Location = enr.Location
	c.YearsExperience = enr.YearsExperience
	c.Skills = enr.Skills
	c.Domains = enr.Domains
	c.Experience = enr.Experience
	c.Education = enr.Education

	if c.Name == "" || c.CurrentTitle == "" {
		name, title, company := SplitTitle(res.Title)
		if c.Name == "" {
			c.Name = name
		}
		if c.CurrentTitle == "" {
			c.CurrentTitle = title
		}
		if c.CurrentCompany == "" {
			c.CurrentCompany = company
		}
	}
	return c
}

var titleSeparator = regexp.MustCompile(`\s+[-|–]\s+`)

// SplitTitle breaks a search result title on separator punctuation: the
// first segment is the person's name, the second their title, the third
// their company. Missing segments come back empty.
func SplitTitle(title string) (name, role, company string) {
	parts := titleSeparator.Split(title, -1)
	if len(parts) > 0 {
		name = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		role = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		company = strings.TrimSpace(parts[2])
	}
	return name, role, company
}
