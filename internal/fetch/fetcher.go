package fetch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wadl-labs/candidate-sourcer/internal/enrich"
	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// FetcherConfig controls the shared batch limits.
type FetcherConfig struct {
	MaxConcurrent int
	RequestDelay  time.Duration
	TTL           time.Duration
	Logger        *zap.Logger
}

// Fetcher resolves search results into persisted candidates: cache hits
// first, then a dataset batch for what remains, then the per-URL channel
// chain under a shared semaphore and request-interval watermark.
type Fetcher struct {
	chain     *Chain
	dataset   *DatasetChannel
	store     store.CandidateStore
	extractor *enrich.Extractor

	sem     chan struct{}
	limiter *rate.Limiter
	ttl     time.Duration
	logger  *zap.Logger

	jitter func() time.Duration
	now    func() time.Time
}

// BatchResult summarizes one batch call.
type BatchResult struct {
	Candidates []talent.Candidate
	FromCache  int
	Fetched    int
	Skipped    int
}

// NewFetcher builds a Fetcher. dataset may be nil when no key is
// configured; the per-URL chain then carries everything.
func NewFetcher(cfg FetcherConfig, chain *Chain, dataset *DatasetChannel, st store.CandidateStore, ex *enrich.Extractor) *Fetcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Fetcher{
		chain:     chain,
		dataset:   dataset,
		store:     st,
		extractor: ex,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		limiter:   rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		ttl:       cfg.TTL,
		logger:    cfg.Logger,
		jitter: func() time.Duration {
			return 500*time.Millisecond + time.Duration(rng.Int63n(int64(time.Second)))
		},
		now: time.Now,
	}
}

// FetchBatch resolves one batch of search results. A URL that exhausts
// every channel is skipped, never an error: partial batch success is the
// normal outcome.
func (f *Fetcher) FetchBatch(ctx context.Context, results []talent.SearchResult) (BatchResult, error) {
	var out BatchResult

	// Resolved candidates keyed by URL; the final list is assembled in the
	// caller's order regardless of fetch completion order.
	resolved := make(map[string]talent.Candidate, len(results))

	// Cache partition: anything fetched inside the TTL window is reused
	// as-is and never re-fetched.
	var stale []talent.SearchResult
	for _, res := range results {
		cached, err := f.store.CandidateByURL(ctx, res.URL)
		switch {
		case err == nil && f.now().Sub(cached.LastFetchedAt) < f.ttl:
			resolved[res.URL] = cached
			out.FromCache++
			metrics.ObserveProfileFetched("cache")
		case err == nil || errors.Is(err, store.ErrNotFound):
			stale = append(stale, res)
		default:
			return BatchResult{}, err
		}
	}
	if len(stale) == 0 {
		out.Candidates = assemble(results, resolved)
		return out, nil
	}

	// Dataset fast path for the whole stale set.
	contents := make(map[string]string)
	if f.dataset != nil && f.dataset.Available() {
		urls := make([]string, len(stale))
		for i, res := range stale {
			urls[i] = res.URL
		}
		batch, err := f.dataset.FetchBatch(ctx, urls)
		if err != nil {
			f.logger.Warn("dataset batch failed, falling back to per-URL chain", zap.Error(err))
		} else {
			contents = batch
		}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, res := range stale {
		res := res
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case f.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-f.sem }()
			metrics.IncActiveFetches()
			defer metrics.DecActiveFetches()

			// Start jitter avoids bursts when a batch is released.
			if err := sleepCtx(ctx, f.jitter()); err != nil {
				return
			}

			content, source, ok := f.acquire(ctx, res.URL, contents)
			if !ok {
				// Soft skip: every channel came up short for this URL.
				f.logger.Info("acquisition exhausted, skipping url",
					zap.String("url", res.URL))
				mu.Lock()
				out.Skipped++
				mu.Unlock()
				return
			}

			candidate := f.extractor.Extract(ctx, res, content, source)
			saved, err := f.store.UpsertCandidate(ctx, candidate)
			if err != nil {
				f.logger.Error("persist candidate failed",
					zap.String("url", res.URL), zap.Error(err))
				mu.Lock()
				out.Skipped++
				mu.Unlock()
				return
			}
			metrics.ObserveProfileFetched(source)

			mu.Lock()
			resolved[res.URL] = saved
			out.Fetched++
			mu.Unlock()
		}()
	}
	wg.Wait()

	out.Candidates = assemble(results, resolved)
	return out, ctx.Err()
}

// assemble orders resolved candidates by the caller's request order.
// Skipped URLs simply have no entry.
func assemble(results []talent.SearchResult, resolved map[string]talent.Candidate) []talent.Candidate {
	out := make([]talent.Candidate, 0, len(resolved))
	for _, res := range results {
		if c, ok := resolved[res.URL]; ok {
			out = append(out, c)
		}
	}
	return out
}

// acquire returns content for one URL: the dataset batch result when
// present, otherwise a pass through the chain behind the shared watermark.
func (f *Fetcher) acquire(ctx context.Context, url string, batch map[string]string) (string, string, bool) {
	if content, ok := batch[url]; ok {
		return content, "dataset", true
	}

	waitStart := f.now()
	if err := f.limiter.Wait(ctx); err != nil {
		return "", "", false
	}
	if waited := f.now().Sub(waitStart); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}

	content, source, err := f.chain.Fetch(ctx, url)
	if err != nil {
		return "", "", false
	}
	return content, source, true
}
