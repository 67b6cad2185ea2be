package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wadl-labs/candidate-sourcer/internal/enrich"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// passLLM always enriches successfully with a fixed name.
type passLLM struct{}

func (passLLM) ParseJD(context.Context, string) (llm.ParsedJD, error) { return llm.ParsedJD{}, nil }

func (passLLM) EnrichProfile(context.Context, string) (llm.Enrichment, error) {
	return llm.Enrichment{Name: "Extracted Person", Skills: []string{}}, nil
}

func (passLLM) GenerateQueries(context.Context, string, int) ([]string, error) { return nil, nil }

func (passLLM) RefineQueries(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

func (passLLM) SynthesizeProfile(context.Context, string, string, string) (llm.Enrichment, error) {
	return llm.Enrichment{}, nil
}

// newTestFetcher wires a fetcher with no delays so tests run instantly.
func newTestFetcher(chain *Chain, st store.CandidateStore) *Fetcher {
	f := NewFetcher(FetcherConfig{
		MaxConcurrent: 2,
		RequestDelay:  time.Nanosecond,
		TTL:           30 * 24 * time.Hour,
		Logger:        zap.NewNop(),
	}, chain, nil, st, enrich.NewExtractor(passLLM{}, zap.NewNop()))
	f.jitter = func() time.Duration { return 0 }
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	return f
}

func TestFetchBatchUsesCacheWithinTTL(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ch := &stubChannel{name: "direct", available: true, minLen: 1, content: "fresh profile content"}
	f := newTestFetcher(NewChain(zap.NewNop(), ch), mem)

	// Fresh record inside the TTL window.
	_, err := mem.UpsertCandidate(ctx, talent.Candidate{
		ProfileURL:    "https://www.linkedin.com/in/cached",
		Name:          "Cached Person",
		LastFetchedAt: time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	res, err := f.FetchBatch(ctx, []talent.SearchResult{
		{URL: "https://www.linkedin.com/in/cached", Title: "Cached Person - X"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.FromCache)
	require.Equal(t, 0, res.Fetched)
	require.Equal(t, 0, ch.calls)
	require.Equal(t, "Cached Person", res.Candidates[0].Name)
}

func TestFetchBatchRefetchesPastTTL(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ch := &stubChannel{name: "direct", available: true, minLen: 1, content: "fresh profile content"}
	f := newTestFetcher(NewChain(zap.NewNop(), ch), mem)

	_, err := mem.UpsertCandidate(ctx, talent.Candidate{
		ProfileURL:    "https://www.linkedin.com/in/stale",
		Name:          "Stale Person",
		LastFetchedAt: time.Now().Add(-31 * 24 * time.Hour),
	})
	require.NoError(t, err)

	res, err := f.FetchBatch(ctx, []talent.SearchResult{
		{URL: "https://www.linkedin.com/in/stale", Title: "Stale Person - X"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.FromCache)
	require.Equal(t, 1, res.Fetched)
	require.Equal(t, 1, ch.calls)

	// Refresh happened in place: same URL, updated record.
	got, err := mem.CandidateByURL(ctx, "https://www.linkedin.com/in/stale")
	require.NoError(t, err)
	require.Equal(t, "Extracted Person", got.Name)
}

func TestFetchBatchSoftSkipsExhaustedURLs(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	thin := &stubChannel{name: "direct", available: true, minLen: 1000, content: "thin"}
	f := newTestFetcher(NewChain(zap.NewNop(), thin), mem)

	res, err := f.FetchBatch(ctx, []talent.SearchResult{
		{URL: "https://www.linkedin.com/in/blocked", Title: "Blocked - X"},
		{URL: "https://www.linkedin.com/in/alsoblocked", Title: "Also - X"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Skipped)
	require.Empty(t, res.Candidates)
}

func TestFetchBatchMixedOutcome(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ch := &stubChannel{name: "direct", available: true, minLen: 1, content: "profile body text"}
	f := newTestFetcher(NewChain(zap.NewNop(), ch), mem)

	_, err := mem.UpsertCandidate(ctx, talent.Candidate{
		ProfileURL:    "https://www.linkedin.com/in/cached",
		Name:          "Cached Person",
		LastFetchedAt: time.Now(),
	})
	require.NoError(t, err)

	res, err := f.FetchBatch(ctx, []talent.SearchResult{
		{URL: "https://www.linkedin.com/in/cached"},
		{URL: "https://www.linkedin.com/in/new-one", Title: "New One - Y"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.FromCache)
	require.Equal(t, 1, res.Fetched)
	require.Len(t, res.Candidates, 2)
}

func TestFetchBatchPreservesRequestOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ch := &stubChannel{name: "direct", available: true, minLen: 1, content: "profile body text"}
	f := newTestFetcher(NewChain(zap.NewNop(), ch), mem)

	// Only the middle URL is cached; the other two go through the chain.
	_, err := mem.UpsertCandidate(ctx, talent.Candidate{
		ProfileURL:    "https://www.linkedin.com/in/second",
		Name:          "Second Person",
		LastFetchedAt: time.Now(),
	})
	require.NoError(t, err)

	res, err := f.FetchBatch(ctx, []talent.SearchResult{
		{URL: "https://www.linkedin.com/in/first", Title: "First - X"},
		{URL: "https://www.linkedin.com/in/second"},
		{URL: "https://www.linkedin.com/in/third", Title: "Third - X"},
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)
	require.Equal(t, "https://www.linkedin.com/in/first", res.Candidates[0].ProfileURL)
	require.Equal(t, "https://www.linkedin.com/in/second", res.Candidates[1].ProfileURL)
	require.Equal(t, "https://www.linkedin.com/in/third", res.Candidates[2].ProfileURL)
}
