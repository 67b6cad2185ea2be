package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/agent"
	"github.com/wadl-labs/candidate-sourcer/internal/archive"
	"github.com/wadl-labs/candidate-sourcer/internal/config"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/notify"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// fakeLLM serves fixed contract records.
type fakeLLM struct {
	failSynthesisFor string
}

func (f *fakeLLM) ParseJD(context.Context, string) (llm.ParsedJD, error) {
	return llm.ParsedJD{
		Title:          "Director of Behavioral Health",
		Seniority:      "director",
		Domains:        []string{"behavioral health"},
		MustHaveSkills: []string{"program management"},
		Summary:        "Director-level behavioral health leader with program management depth.",
	}, nil
}

func (f *fakeLLM) EnrichProfile(context.Context, string) (llm.Enrichment, error) {
	return llm.Enrichment{}, nil
}

func (f *fakeLLM) GenerateQueries(context.Context, string, int) ([]string, error) {
	return []string{"q"}, nil
}

func (f *fakeLLM) RefineQueries(context.Context, string, string, int) ([]string, error) {
	return []string{"q2"}, nil
}

func (f *fakeLLM) SynthesizeProfile(_ context.Context, name, jobTitle, company string) (llm.Enrichment, error) {
	if name == f.failSynthesisFor {
		return llm.Enrichment{}, fmt.Errorf("model refused")
	}
	return llm.Enrichment{
		Name:           name,
		CurrentTitle:   jobTitle,
		CurrentCompany: company,
		Skills:         []string{"program management"},
	}, nil
}

// fakeEmbedder returns a constant unit vector.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) (talent.Vector, error) {
	return talent.Vector{1, 0}, nil
}

func (fakeEmbedder) ModelName() string { return "test-embed" }

// fakeAgent returns a scripted outcome and records one step.
type fakeAgent struct {
	outcome agent.Outcome
	gotCfg  agent.Config
}

func (f *fakeAgent) Run(_ context.Context, _ string, cfg agent.Config, rec *trace.Recorder) (agent.Outcome, error) {
	f.gotCfg = cfg
	rec.Record("init", map[string]any{"actor": "sourcing_agent"})
	return f.outcome, nil
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		TargetProfiles:   25,
		ResultsPerQuery:  5,
		SmallRunRounds:   2,
		LargeRunRounds:   3,
		SmallRunMaxValue: 10,
	}
}

func newTestPipeline(mem *store.Memory, ag sourcingAgent, svc llm.Service) (*Pipeline, *archive.Memory, *notify.Memory) {
	blobs := archive.NewMemory()
	events := notify.NewMemory()
	p := New(svc, fakeEmbedder{}, ag, mem, blobs, events, testAgentConfig(), zap.NewNop())
	return p, blobs, events
}

func seedCandidate(t *testing.T, mem *store.Memory, url, rawText string, vec talent.Vector) talent.Candidate {
	t.Helper()
	c, err := mem.UpsertCandidate(context.Background(), talent.Candidate{
		ProfileURL: url,
		Name:       "Person " + url,
		RawText:    rawText,
	})
	require.NoError(t, err)
	require.NoError(t, mem.SaveCandidateEmbedding(context.Background(), talent.CandidateEmbedding{
		CandidateID: c.ID, Vector: vec, ModelName: "test-embed",
	}))
	return c
}

func TestSourcePersistsRunRankingAndTrace(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// Candidate a aligns with the JD vector {1,0}; b is orthogonal.
	a := seedCandidate(t, mem, "https://www.linkedin.com/in/a", "behavioral health director", talent.Vector{1, 0})
	b := seedCandidate(t, mem, "https://www.linkedin.com/in/b", "unrelated background", talent.Vector{0, 1})

	ag := &fakeAgent{outcome: agent.Outcome{
		Candidates: []talent.Candidate{b, a},
		URLsFound:  6,
		FromCache:  1,
		Rounds:     2,
		Satisfied:  true,
		Coverage:   agent.NewCoverage(),
	}}
	p, blobs, events := newTestPipeline(mem, ag, &fakeLLM{})

	res, err := p.Source(ctx, "raw jd text", 10)
	require.NoError(t, err)
	require.True(t, res.Satisfied)
	require.Equal(t, 2, res.Rounds)

	// Ranked order is score-descending regardless of acquisition order.
	require.Len(t, res.Ranked, 2)
	require.Equal(t, a.ID, res.Ranked[0].CandidateID)
	require.Equal(t, b.ID, res.Ranked[1].CandidateID)
	require.Greater(t, res.Ranked[0].Score, res.Ranked[1].Score)

	rows, err := mem.RunCandidates(ctx, res.Run.ID.String())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	run, err := mem.Run(ctx, res.Run.ID.String())
	require.NoError(t, err)
	require.Equal(t, 6, run.URLsFound)
	require.Equal(t, 1, run.ProfilesParsed)
	require.Equal(t, 1, run.ProfilesFromCache)

	// Raw content archived, completion published, trace flushed in order.
	require.Equal(t, 2, blobs.Len())
	require.Len(t, events.Events(), 1)
	require.Equal(t, res.Run.ID, events.Events()[0].RunID)

	steps := mem.TraceSteps()
	require.NotEmpty(t, steps)
	require.Equal(t, "init", steps[0].Stage)
	require.Equal(t, "ranking", steps[len(steps)-1].Stage)
}

func TestSourceDefaultsTargetAndRoundBudget(t *testing.T) {
	mem := store.NewMemory()
	ag := &fakeAgent{outcome: agent.Outcome{Coverage: agent.NewCoverage()}}
	p, _, _ := newTestPipeline(mem, ag, &fakeLLM{})

	_, err := p.Source(context.Background(), "raw jd text", 0)
	require.NoError(t, err)

	// target 0 falls back to the configured 25 profiles, a large run.
	require.Equal(t, 25, ag.gotCfg.Target)
	require.Equal(t, 5, ag.gotCfg.ResultsPerQuery)
	require.Equal(t, 3, ag.gotCfg.MaxRounds)
}

func TestIntakePersistsJDAndEmbedding(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	p, _, _ := newTestPipeline(mem, &fakeAgent{}, &fakeLLM{})

	jd, summary, err := p.Intake(ctx, "raw jd text")
	require.NoError(t, err)
	require.Equal(t, "Director of Behavioral Health", jd.Title)
	require.Equal(t, "raw jd text", jd.RawText)
	require.Contains(t, summary, "behavioral health leader")

	emb, err := mem.JDEmbedding(ctx, jd.ID)
	require.NoError(t, err)
	require.Equal(t, "test-embed", emb.ModelName)
}

func TestSynthesizePlacementsCreatesMissingAnchors(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.SeedPlacements([]talent.Placement{
		{ID: 1, Name: "Jane Placed", JobTitle: "Clinical Director", Company: "Acme Care"},
		{ID: 2, Name: "Already Anchored", JobTitle: "VP", Company: "Other"},
	})

	// Placement 2 already has an anchor.
	anchored := seedCandidate(t, mem, "synthetic://placement/2", "vp profile", talent.Vector{1, 0})
	_, err := mem.CreatePlacementProfile(ctx, talent.PlacementProfile{PlacementID: 2, CandidateID: anchored.ID})
	require.NoError(t, err)

	p, _, _ := newTestPipeline(mem, &fakeAgent{}, &fakeLLM{})
	created, err := p.SynthesizePlacements(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	c, err := mem.CandidateByURL(ctx, "synthetic://placement/1")
	require.NoError(t, err)
	require.Equal(t, "Jane Placed", c.Name)
	require.Equal(t, "synthetic", c.Source)

	anchors, err := mem.ListPlacementEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 2)
}

func TestSynthesizePlacementsSkipsFailures(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.SeedPlacements([]talent.Placement{
		{ID: 1, Name: "Works Fine", JobTitle: "Director", Company: "A"},
		{ID: 2, Name: "Model Refuses", JobTitle: "Director", Company: "B"},
	})

	p, _, _ := newTestPipeline(mem, &fakeAgent{}, &fakeLLM{failSynthesisFor: "Model Refuses"})
	created, err := p.SynthesizePlacements(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	_, err = mem.CandidateByURL(ctx, "synthetic://placement/2")
	require.ErrorIs(t, err, store.ErrNotFound)
}
