// Package pipeline orchestrates end-to-end sourcing runs: JD intake, the
// agent loop, ranking, persistence and completion side effects.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/agent"
	"github.com/wadl-labs/candidate-sourcer/internal/archive"
	"github.com/wadl-labs/candidate-sourcer/internal/config"
	"github.com/wadl-labs/candidate-sourcer/internal/embed"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/notify"
	"github.com/wadl-labs/candidate-sourcer/internal/scoring"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// sourcingAgent is the slice of the agent the pipeline drives.
type sourcingAgent interface {
	Run(ctx context.Context, jdSummary string, cfg agent.Config, rec *trace.Recorder) (agent.Outcome, error)
}

// Pipeline wires one run from raw JD text to ranked, persisted candidates.
type Pipeline struct {
	llm      llm.Service
	embedder embed.Service
	agent    sourcingAgent
	store    store.Store
	archiver archive.Archiver
	notifier notify.Notifier
	cfg      config.AgentConfig
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Pipeline.
func New(svc llm.Service, em embed.Service, ag sourcingAgent, st store.Store,
	ar archive.Archiver, no notify.Notifier, cfg config.AgentConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		llm:      svc,
		embedder: em,
		agent:    ag,
		store:    st,
		archiver: ar,
		notifier: no,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SourceResult is the outcome of one full run.
type SourceResult struct {
	JD        talent.JobDescription
	Run       talent.Run
	Ranked    []talent.RunCandidate
	Rounds    int
	Satisfied bool
}

// Intake parses raw JD text, persists the record and embeds its condensed
// summary. The summary string feeds query generation downstream.
func (p *Pipeline) Intake(ctx context.Context, rawJD string) (talent.JobDescription, string, error) {
	parsed, err := p.llm.ParseJD(ctx, rawJD)
	if err != nil {
		return talent.JobDescription{}, "", fmt.Errorf("parse jd: %w", err)
	}

	jd, err := p.store.CreateJD(ctx, talent.JobDescription{
		RawText:            rawJD,
		Title:              parsed.Title,
		Seniority:          parsed.Seniority,
		Domains:            parsed.Domains,
		MustHaveSkills:     parsed.MustHaveSkills,
		NiceToHaveSkills:   parsed.NiceToHaveSkills,
		MinYearsExperience: parsed.MinYearsExperience,
		Location:           parsed.Location,
		CreatedAt:          p.now(),
	})
	if err != nil {
		return talent.JobDescription{}, "", fmt.Errorf("create jd: %w", err)
	}

	summary := parsed.Summary
	if summary == "" {
		summary = roleSummary(jd)
	}
	vec, err := p.embedder.Embed(ctx, summary)
	if err != nil {
		return talent.JobDescription{}, "", fmt.Errorf("embed jd summary: %w", err)
	}
	err = p.store.SaveJDEmbedding(ctx, talent.JDEmbedding{
		JDID:      jd.ID,
		Vector:    vec,
		ModelName: p.embedder.ModelName(),
	})
	if err != nil {
		return talent.JobDescription{}, "", fmt.Errorf("save jd embedding: %w", err)
	}
	return jd, summary, nil
}

// Source executes one full run for raw JD text. target <= 0 falls back to
// the configured default. The returned result is already persisted.
func (p *Pipeline) Source(ctx context.Context, rawJD string, target int) (SourceResult, error) {
	if target <= 0 {
		target = p.cfg.TargetProfiles
	}

	jd, summary, err := p.Intake(ctx, rawJD)
	if err != nil {
		return SourceResult{}, err
	}

	run := talent.Run{
		ID:        uuid.New(),
		JDID:      jd.ID,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return SourceResult{}, fmt.Errorf("create run: %w", err)
	}
	rec := trace.NewRecorder(run.ID)

	p.logger.Info("sourcing run started",
		zap.String("run_id", run.ID.String()),
		zap.Int64("jd_id", jd.ID),
		zap.Int("target", target),
	)

	sourcingStart := p.now()
	outcome, err := p.agent.Run(ctx, summary, agent.Config{
		Target:          target,
		ResultsPerQuery: p.cfg.ResultsPerQuery,
		MaxRounds:       p.cfg.MaxRounds(target),
	}, rec)
	run.SourcingTimeMS = p.now().Sub(sourcingStart).Milliseconds()
	if err != nil {
		p.flushTrace(ctx, rec)
		return SourceResult{}, fmt.Errorf("sourcing loop: %w", err)
	}

	p.archiveRawContent(ctx, outcome.Candidates)

	rankingStart := p.now()
	ranked, err := p.rank(ctx, jd, run.ID, outcome.Candidates)
	run.RankingTimeMS = p.now().Sub(rankingStart).Milliseconds()
	if err != nil {
		p.flushTrace(ctx, rec)
		return SourceResult{}, err
	}
	if len(ranked) > 0 {
		if err := p.store.SaveRunCandidates(ctx, ranked); err != nil {
			p.flushTrace(ctx, rec)
			return SourceResult{}, fmt.Errorf("save run candidates: %w", err)
		}
	}

	run.URLsFound = outcome.URLsFound
	run.ProfilesParsed = len(outcome.Candidates) - outcome.FromCache
	run.ProfilesFromCache = outcome.FromCache
	if err := p.store.UpdateRunStats(ctx, run); err != nil {
		p.flushTrace(ctx, rec)
		return SourceResult{}, fmt.Errorf("update run stats: %w", err)
	}

	rec.Record("ranking", map[string]any{
		"actor":     "pipeline",
		"action":    "rank_candidates",
		"rationale": fmt.Sprintf("ranked %d candidates in %dms", len(ranked), run.RankingTimeMS),
		"status":    "ok",
	})
	p.flushTrace(ctx, rec)

	err = p.notifier.RunCompleted(ctx, notify.RunSummary{
		RunID:       run.ID,
		JDID:        jd.ID,
		Requested:   target,
		Acquired:    len(outcome.Candidates),
		Rounds:      outcome.Rounds,
		Satisfied:   outcome.Satisfied,
		CompletedAt: p.now(),
	})
	if err != nil {
		p.logger.Warn("run completion notification failed",
			zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	return SourceResult{
		JD:        jd,
		Run:       run,
		Ranked:    ranked,
		Rounds:    outcome.Rounds,
		Satisfied: outcome.Satisfied,
	}, nil
}

// rank scores every acquired candidate against the JD and its placement
// anchors and returns the rows in descending score order. A candidate
// without an embedding still gets its heuristic features.
func (p *Pipeline) rank(ctx context.Context, jd talent.JobDescription, runID uuid.UUID, candidates []talent.Candidate) ([]talent.RunCandidate, error) {
	jdEmb, err := p.store.JDEmbedding(ctx, jd.ID)
	if err != nil {
		return nil, fmt.Errorf("load jd embedding: %w", err)
	}
	anchors, err := p.store.ListPlacementEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load placement embeddings: %w", err)
	}
	engine := scoring.NewEngine(jd, jdEmb.Vector, anchors)

	rows := make([]talent.RunCandidate, 0, len(candidates))
	for _, c := range candidates {
		var candVec talent.Vector
		if emb, err := p.store.CandidateEmbedding(ctx, c.ID); err == nil {
			candVec = emb.Vector
		}
		res := engine.Score(c, candVec)
		rows = append(rows, talent.RunCandidate{
			RunID:               runID,
			CandidateID:         c.ID,
			Score:               res.Score,
			Features:            res.Features,
			PlacementSimilarity: res.PlacementSimilarity,
			ClosestPlacementID:  res.ClosestPlacementID,
			Explanation:         res.Explanation,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows, nil
}

// archiveRawContent stores each candidate's raw corpus. Archive failures are
// logged and never fail the run.
func (p *Pipeline) archiveRawContent(ctx context.Context, candidates []talent.Candidate) {
	for _, c := range candidates {
		if c.RawText == "" {
			continue
		}
		if _, err := p.archiver.Store(ctx, c.ProfileURL, []byte(c.RawText)); err != nil {
			p.logger.Warn("archive raw content failed",
				zap.String("url", c.ProfileURL), zap.Error(err))
		}
	}
}

func (p *Pipeline) flushTrace(ctx context.Context, rec *trace.Recorder) {
	if err := rec.Flush(ctx, p.store); err != nil {
		p.logger.Warn("trace flush failed", zap.Error(err))
	}
}

// SynthesizePlacements generates anchor profiles for placements that do not
// have one yet and returns how many were created. Per-placement failures
// are skipped so one bad record never blocks the rest.
func (p *Pipeline) SynthesizePlacements(ctx context.Context) (int, error) {
	placements, err := p.store.PlacementsWithoutProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list placements without profiles: %w", err)
	}

	created := 0
	for _, pl := range placements {
		if err := p.synthesizeOne(ctx, pl); err != nil {
			p.logger.Warn("placement synthesis failed",
				zap.Int64("placement_id", pl.ID),
				zap.String("name", pl.Name),
				zap.Error(err))
			continue
		}
		created++
	}
	return created, nil
}

func (p *Pipeline) synthesizeOne(ctx context.Context, pl talent.Placement) error {
	enr, err := p.llm.SynthesizeProfile(ctx, pl.Name, pl.JobTitle, pl.Company)
	if err != nil {
		return fmt.Errorf("synthesize profile: %w", err)
	}

	corpus := syntheticCorpus(enr)
	candidate, err := p.store.UpsertCandidate(ctx, talent.Candidate{
		ProfileURL:      fmt.Sprintf("synthetic://placement/%d", pl.ID),
		Name:            enr.Name,
		Headline:        enr.Headline,
		CurrentTitle:    enr.CurrentTitle,
		CurrentCompany:  enr.CurrentCompany,
		Location:        enr.Location,
		YearsExperience: enr.YearsExperience,
		Skills:          enr.Skills,
		Domains:         enr.Domains,
		Experience:      enr.Experience,
		Education:       enr.Education,
		RawText:         corpus,
		Source:          "synthetic",
		LastFetchedAt:   p.now(),
	})
	if err != nil {
		return fmt.Errorf("persist synthetic candidate: %w", err)
	}

	vec, err := p.embedder.Embed(ctx, corpus)
	if err != nil {
		return fmt.Errorf("embed synthetic profile: %w", err)
	}
	err = p.store.SaveCandidateEmbedding(ctx, talent.CandidateEmbedding{
		CandidateID: candidate.ID,
		Vector:      vec,
		ModelName:   p.embedder.ModelName(),
	})
	if err != nil {
		return fmt.Errorf("save synthetic embedding: %w", err)
	}

	_, err = p.store.CreatePlacementProfile(ctx, talent.PlacementProfile{
		PlacementID: pl.ID,
		CandidateID: candidate.ID,
	})
	if err != nil {
		return fmt.Errorf("link placement profile: %w", err)
	}
	return nil
}

// syntheticCorpus renders an enrichment record back into scoring text.
func syntheticCorpus(enr llm.Enrichment) string {
	var b strings.Builder
	writeLine := func(s string) {
		if s != "" {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	writeLine(enr.Name)
	writeLine(enr.Headline)
	if enr.CurrentTitle != "" {
		writeLine(enr.CurrentTitle + " at " + enr.CurrentCompany)
	}
	writeLine(enr.Summary)
	if len(enr.Skills) > 0 {
		writeLine("Skills: " + strings.Join(enr.Skills, ", "))
	}
	if len(enr.Domains) > 0 {
		writeLine("Domains: " + strings.Join(enr.Domains, ", "))
	}
	for _, role := range enr.Experience {
		writeLine(role.Title + " at " + role.Company + ". " + role.Description)
	}
	return strings.TrimSpace(b.String())
}

// roleSummary is the fallback summary when the parser returns none.
func roleSummary(jd talent.JobDescription) string {
	parts := []string{jd.Title}
	if jd.Seniority != "" && jd.Seniority != "unknown" {
		parts = append(parts, jd.Seniority)
	}
	if len(jd.Domains) > 0 {
		parts = append(parts, "domains: "+strings.Join(jd.Domains, ", "))
	}
	if len(jd.MustHaveSkills) > 0 {
		parts = append(parts, "skills: "+strings.Join(jd.MustHaveSkills, ", "))
	}
	return strings.Join(parts, "; ")
}
