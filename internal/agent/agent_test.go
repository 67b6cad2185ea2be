package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/fetch"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/search"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// scriptedLLM serves canned queries.
type scriptedLLM struct {
	refineCalls int
}

func (s *scriptedLLM) ParseJD(context.Context, string) (llm.ParsedJD, error) {
	return llm.ParsedJD{}, nil
}

func (s *scriptedLLM) EnrichProfile(context.Context, string) (llm.Enrichment, error) {
	return llm.Enrichment{}, nil
}

func (s *scriptedLLM) GenerateQueries(_ context.Context, _ string, n int) ([]string, error) {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf("initial query %d", i)
	}
	return qs, nil
}

func (s *scriptedLLM) RefineQueries(_ context.Context, _, _ string, n int) ([]string, error) {
	s.refineCalls++
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf("refined %d.%d", s.refineCalls, i)
	}
	return qs, nil
}

func (s *scriptedLLM) SynthesizeProfile(context.Context, string, string, string) (llm.Enrichment, error) {
	return llm.Enrichment{}, nil
}

// scriptedSearch returns the same result set for every query; the agent's
// seen-set must dedupe repeats.
type scriptedSearch struct {
	results []talent.SearchResult
	queries []string
}

func (s *scriptedSearch) Search(_ context.Context, query string, _ int) ([]talent.SearchResult, error) {
	s.queries = append(s.queries, query)
	return s.results, nil
}

// countingFetcher turns every requested URL into a candidate.
type countingFetcher struct {
	batches [][]talent.SearchResult
	rawText string
	nextID  int64
}

func (f *countingFetcher) FetchBatch(_ context.Context, results []talent.SearchResult) (fetch.BatchResult, error) {
	f.batches = append(f.batches, results)
	out := fetch.BatchResult{}
	for _, r := range results {
		f.nextID++
		out.Candidates = append(out.Candidates, talent.Candidate{
			ID:         f.nextID,
			ProfileURL: r.URL,
			RawText:    f.rawText,
		})
		out.Fetched++
	}
	return out, nil
}

// fixedEmbedder returns a constant vector.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) (talent.Vector, error) {
	return talent.Vector{1, 0}, nil
}

func (fixedEmbedder) ModelName() string { return "test-model" }

func results(n int, prefix string) []talent.SearchResult {
	out := make([]talent.SearchResult, n)
	for i := range out {
		out[i] = talent.SearchResult{
			URL:   fmt.Sprintf("https://www.linkedin.com/in/%s-%d", prefix, i),
			Title: fmt.Sprintf("Person %d - Director", i),
		}
	}
	return out
}

func newTestAgent(se search.Service, f batchFetcher) (*Agent, *store.Memory) {
	mem := store.NewMemory()
	return New(&scriptedLLM{}, se, f, fixedEmbedder{}, mem, zap.NewNop()), mem
}

func TestRunSatisfiedStopsEarly(t *testing.T) {
	se := &scriptedSearch{results: results(12, "a")}
	f := &countingFetcher{rawText: "leader in behavioral health programs"}
	a, _ := newTestAgent(se, f)

	rec := trace.NewRecorder(uuid.New())
	out, err := a.Run(context.Background(), "summary", Config{
		Target: 10, ResultsPerQuery: 12, MaxRounds: 2,
	}, rec)
	require.NoError(t, err)

	// Round 1: batch capped at needed+1 = 11, all enriched, all primary
	// domain. 11 >= 0.8*10 and ratio 1.0 >= 0.4: satisfied after one round.
	require.True(t, out.Satisfied)
	require.Equal(t, 1, out.Rounds)
	require.Len(t, out.Candidates, 11)
	require.Len(t, f.batches, 1)
	require.Len(t, f.batches[0], 11)
}

func TestRunNeverExceedsRoundBudget(t *testing.T) {
	// No candidate ever matches the primary domain, so satisfaction is
	// impossible; the loop must still stop at MaxRounds.
	se := &scriptedSearch{results: results(5, "b")}
	f := &countingFetcher{rawText: "general operations background"}
	a, _ := newTestAgent(se, f)

	rec := trace.NewRecorder(uuid.New())
	out, err := a.Run(context.Background(), "summary", Config{
		Target: 100, ResultsPerQuery: 5, MaxRounds: 3,
	}, rec)
	require.NoError(t, err)
	require.False(t, out.Satisfied)
	require.Equal(t, 3, out.Rounds)
}

func TestRunSeenSetDedupesAcrossRounds(t *testing.T) {
	// Every query in every round returns the same 5 URLs; only round one
	// may fetch them.
	se := &scriptedSearch{results: results(5, "c")}
	f := &countingFetcher{rawText: "nothing matching"}
	a, _ := newTestAgent(se, f)

	rec := trace.NewRecorder(uuid.New())
	out, err := a.Run(context.Background(), "summary", Config{
		Target: 50, ResultsPerQuery: 5, MaxRounds: 3,
	}, rec)
	require.NoError(t, err)

	require.Equal(t, 5, out.URLsFound)
	require.Len(t, out.Candidates, 5)
	total := 0
	for _, b := range f.batches {
		total += len(b)
	}
	require.Equal(t, 5, total)
}

func TestSatisfactionPredicate(t *testing.T) {
	a, _ := newTestAgent(&scriptedSearch{}, &countingFetcher{})

	primary := NewCoverage()
	for i := 0; i < 10; i++ {
		primary.Observe("behavioral health leadership")
	}

	// Below the acquisition bar: never satisfied, coverage irrelevant.
	require.False(t, a.satisfied(7, 10, primary))
	// At the bar with full primary coverage.
	require.True(t, a.satisfied(8, 10, primary))

	// Acquisition met but primary ratio under 0.4.
	thin := NewCoverage()
	thin.Observe("behavioral health")
	thin.Observe("residential only")
	thin.Observe("residential only")
	thin.Observe("residential only")
	require.False(t, a.satisfied(8, 10, thin))
}

func TestCoverageCounters(t *testing.T) {
	cov := NewCoverage()
	cov.Observe("Director of Behavioral Health services")
	cov.Observe("Registered Nurse in residential care")
	cov.Observe("Supports people with intellectual and developmental disabilities")

	require.Equal(t, 3, cov.Total())
	require.InDelta(t, 1.0/3.0, cov.Ratio("behavioral_health"), 1e-9)
	require.InDelta(t, 1.0/3.0, cov.Ratio("residential"), 1e-9)
	require.InDelta(t, 1.0/3.0, cov.Ratio("idd"), 1e-9)
	require.Contains(t, cov.Summary(), "3 candidates acquired")
}

func TestRunEmbedsNewCandidatesOnce(t *testing.T) {
	se := &scriptedSearch{results: results(3, "d")}
	f := &countingFetcher{rawText: "behavioral health"}
	a, mem := newTestAgent(se, f)

	rec := trace.NewRecorder(uuid.New())
	out, err := a.Run(context.Background(), "summary", Config{
		Target: 3, ResultsPerQuery: 3, MaxRounds: 2,
	}, rec)
	require.NoError(t, err)

	for _, c := range out.Candidates {
		emb, err := mem.CandidateEmbedding(context.Background(), c.ID)
		require.NoError(t, err)
		require.Equal(t, "test-model", emb.ModelName)
	}
}

func TestRunTraceOrder(t *testing.T) {
	se := &scriptedSearch{results: results(2, "e")}
	f := &countingFetcher{rawText: "behavioral health"}
	a, mem := newTestAgent(se, f)

	rec := trace.NewRecorder(uuid.New())
	_, err := a.Run(context.Background(), "summary", Config{
		Target: 2, ResultsPerQuery: 2, MaxRounds: 2,
	}, rec)
	require.NoError(t, err)
	require.NoError(t, rec.Flush(context.Background(), mem))

	steps := mem.TraceSteps()
	require.GreaterOrEqual(t, len(steps), 3)
	require.Equal(t, "init", steps[0].Stage)
	require.Equal(t, "terminal", steps[len(steps)-1].Stage)
	for i, s := range steps {
		require.Equal(t, i, s.Seq)
	}
}
