// Package store defines the persistence interfaces and implementations for
// candidates, job descriptions, placements, runs and run traces.
package store

import (
	"context"
	"errors"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// CandidateStore persists candidate records and their embeddings. A profile
// URL maps to at most one candidate; refreshes update the row in place.
type CandidateStore interface {
	CandidateByURL(ctx context.Context, profileURL string) (talent.Candidate, error)
	Candidate(ctx context.Context, id int64) (talent.Candidate, error)
	UpsertCandidate(ctx context.Context, c talent.Candidate) (talent.Candidate, error)
	SaveCandidateEmbedding(ctx context.Context, emb talent.CandidateEmbedding) error
	CandidateEmbedding(ctx context.Context, candidateID int64) (talent.CandidateEmbedding, error)
}

// JobStore persists job descriptions, runs and per-run scoring rows.
type JobStore interface {
	CreateJD(ctx context.Context, jd talent.JobDescription) (talent.JobDescription, error)
	SaveJDEmbedding(ctx context.Context, emb talent.JDEmbedding) error
	JDEmbedding(ctx context.Context, jdID int64) (talent.JDEmbedding, error)
	CreateRun(ctx context.Context, run talent.Run) error
	UpdateRunStats(ctx context.Context, run talent.Run) error
	Run(ctx context.Context, id string) (talent.Run, error)
	SaveRunCandidates(ctx context.Context, rows []talent.RunCandidate) error
	RunCandidates(ctx context.Context, runID string) ([]talent.RunCandidate, error)
}

// PlacementStore persists historical placements and their synthesized
// profile links.
type PlacementStore interface {
	ListPlacements(ctx context.Context) ([]talent.Placement, error)
	PlacementsWithoutProfiles(ctx context.Context) ([]talent.Placement, error)
	CreatePlacementProfile(ctx context.Context, pp talent.PlacementProfile) (talent.PlacementProfile, error)
	ListPlacementEmbeddings(ctx context.Context) ([]talent.PlacementEmbedding, error)
}

// Store is the full persistence surface. It also acts as the trace sink for
// the run recorder's bulk flush.
type Store interface {
	CandidateStore
	JobStore
	PlacementStore
	AppendTrace(ctx context.Context, steps []trace.Step) error
	Close()
}
