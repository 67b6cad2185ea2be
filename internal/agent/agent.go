// Package agent drives the adaptive multi-round sourcing loop for one run.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/embed"
	"github.com/wadl-labs/candidate-sourcer/internal/fetch"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
	"github.com/wadl-labs/candidate-sourcer/internal/search"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// satisfaction predicate thresholds.
const (
	acquiredFraction   = 0.8
	primaryDomainRatio = 0.4
)

// initialQueryCount and refineQueryCount bound the query set per round.
const (
	initialQueryCount = 3
	refineQueryCount  = 2
)

// batchFetcher is the slice of the profile fetcher the loop needs.
type batchFetcher interface {
	FetchBatch(ctx context.Context, results []talent.SearchResult) (fetch.BatchResult, error)
}

// Config controls one sourcing run.
type Config struct {
	Target          int
	ResultsPerQuery int
	MaxRounds       int
}

// Outcome is what a run acquired. Partial acquisition at max rounds is a
// normal terminal state, not an error.
type Outcome struct {
	Candidates []talent.Candidate
	URLsFound  int
	FromCache  int
	Rounds     int
	Satisfied  bool
	Coverage   *Coverage
}

// Agent owns the round loop.
type Agent struct {
	llm      llm.Service
	search   search.Service
	fetcher  batchFetcher
	embedder embed.Service
	store    store.CandidateStore
	logger   *zap.Logger
}

// New builds an Agent.
func New(svc llm.Service, se search.Service, f batchFetcher, em embed.Service, st store.CandidateStore, logger *zap.Logger) *Agent {
	return &Agent{
		llm:      svc,
		search:   se,
		fetcher:  f,
		embedder: em,
		store:    st,
		logger:   logger,
	}
}

// Run executes INIT → ROUND(k) → {CONTINUE | SATISFIED | MAX_ROUNDS}. Every
// transition is recorded on the run's trace recorder; the caller owns the
// final flush.
func (a *Agent) Run(ctx context.Context, jdSummary string, cfg Config, rec *trace.Recorder) (Outcome, error) {
	out := Outcome{Coverage: NewCoverage()}
	seen := make(map[string]bool)

	queries, err := a.llm.GenerateQueries(ctx, jdSummary, initialQueryCount)
	if err != nil {
		return out, fmt.Errorf("generate initial queries: %w", err)
	}
	rec.Record("init", map[string]any{
		"actor":     "sourcing_agent",
		"action":    "generate_queries",
		"rationale": fmt.Sprintf("targeting %d profiles over at most %d rounds", cfg.Target, cfg.MaxRounds),
		"status":    "ok",
		"queries":   queries,
	})

	for round := 1; round <= cfg.MaxRounds; round++ {
		out.Rounds = round
		metrics.ObserveRound()

		newResults := a.searchRound(ctx, queries, cfg.ResultsPerQuery, seen)
		out.URLsFound += len(newResults)

		needed := cfg.Target - len(out.Candidates)
		if needed <= 0 {
			break
		}
		batch := newResults
		if limit := needed + 1; len(batch) > limit {
			batch = batch[:limit]
		}

		res, err := a.fetcher.FetchBatch(ctx, batch)
		if err != nil {
			return out, fmt.Errorf("fetch batch (round %d): %w", round, err)
		}
		out.FromCache += res.FromCache
		for _, c := range res.Candidates {
			out.Coverage.Observe(c.RawText)
			a.ensureEmbedding(ctx, c)
		}
		out.Candidates = append(out.Candidates, res.Candidates...)

		satisfied := a.satisfied(len(out.Candidates), cfg.Target, out.Coverage)
		rec.Record("round", map[string]any{
			"actor":      "sourcing_agent",
			"action":     "fetch_batch",
			"rationale":  fmt.Sprintf("round %d: %d new urls, batch %d, acquired %d/%d", round, len(newResults), len(batch), len(out.Candidates), cfg.Target),
			"status":     roundStatus(satisfied, round, cfg.MaxRounds),
			"round":      round,
			"new_urls":   len(newResults),
			"fetched":    res.Fetched,
			"from_cache": res.FromCache,
			"skipped":    res.Skipped,
		})

		if satisfied {
			out.Satisfied = true
			break
		}
		if round == cfg.MaxRounds {
			break
		}

		refined, err := a.llm.RefineQueries(ctx, jdSummary, out.Coverage.Summary(), refineQueryCount)
		if err != nil || len(refined) == 0 {
			a.logger.Warn("query refinement failed, reusing current queries", zap.Error(err))
		} else {
			queries = refined
		}
	}

	rec.Record("terminal", map[string]any{
		"actor":     "sourcing_agent",
		"action":    "finish",
		"rationale": out.Coverage.Summary(),
		"status":    terminalStatus(out),
		"acquired":  len(out.Candidates),
		"rounds":    out.Rounds,
	})
	return out, nil
}

// searchRound runs every query, treats a search failure as zero results for
// that query, and returns only URLs never seen in this run.
func (a *Agent) searchRound(ctx context.Context, queries []string, perQuery int, seen map[string]bool) []talent.SearchResult {
	var out []talent.SearchResult
	for _, q := range queries {
		results, err := a.search.Search(ctx, q, perQuery)
		if err != nil {
			a.logger.Warn("search query failed, continuing round",
				zap.String("query", q), zap.Error(err))
			continue
		}
		for _, r := range results {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, r)
		}
	}
	return out
}

func (a *Agent) satisfied(acquired, target int, cov *Coverage) bool {
	if float64(acquired) < acquiredFraction*float64(target) {
		return false
	}
	return cov.Ratio(primaryDomain) >= primaryDomainRatio
}

// ensureEmbedding writes a vector for candidates that never had one.
// Existing embeddings are left alone, including on TTL refreshes.
func (a *Agent) ensureEmbedding(ctx context.Context, c talent.Candidate) {
	if _, err := a.store.CandidateEmbedding(ctx, c.ID); err == nil {
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		a.logger.Warn("embedding lookup failed", zap.Int64("candidate_id", c.ID), zap.Error(err))
		return
	}
	vec, err := a.embedder.Embed(ctx, c.RawText)
	if err != nil {
		a.logger.Warn("candidate embedding failed",
			zap.Int64("candidate_id", c.ID), zap.Error(err))
		return
	}
	err = a.store.SaveCandidateEmbedding(ctx, talent.CandidateEmbedding{
		CandidateID: c.ID,
		Vector:      vec,
		ModelName:   a.embedder.ModelName(),
	})
	if err != nil {
		a.logger.Warn("persist embedding failed",
			zap.Int64("candidate_id", c.ID), zap.Error(err))
	}
}

func roundStatus(satisfied bool, round, maxRounds int) string {
	switch {
	case satisfied:
		return "satisfied"
	case round == maxRounds:
		return "max_rounds"
	default:
		return "continue"
	}
}

func terminalStatus(out Outcome) string {
	if out.Satisfied {
		return "satisfied"
	}
	return "max_rounds"
}
