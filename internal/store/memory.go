package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// Memory is an in-process Store used for tests and local development.
type Memory struct {
	mu sync.RWMutex

	nextCandidateID int64
	nextJDID        int64
	nextProfileID   int64

	candidates     map[int64]talent.Candidate
	candidateByURL map[string]int64
	candidateEmbs  map[int64]talent.CandidateEmbedding

	jds    map[int64]talent.JobDescription
	jdEmbs map[int64]talent.JDEmbedding

	runs          map[string]talent.Run
	runCandidates map[string][]talent.RunCandidate

	placements        []talent.Placement
	placementProfiles map[int64]talent.PlacementProfile // keyed by placement ID

	traceSteps []trace.Step
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		candidates:        make(map[int64]talent.Candidate),
		candidateByURL:    make(map[string]int64),
		candidateEmbs:     make(map[int64]talent.CandidateEmbedding),
		jds:               make(map[int64]talent.JobDescription),
		jdEmbs:            make(map[int64]talent.JDEmbedding),
		runs:              make(map[string]talent.Run),
		runCandidates:     make(map[string][]talent.RunCandidate),
		placementProfiles: make(map[int64]talent.PlacementProfile),
	}
}

// SeedPlacements installs placements directly, for tests and local runs.
func (m *Memory) SeedPlacements(ps []talent.Placement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placements = append(m.placements, ps...)
}

func (m *Memory) CandidateByURL(_ context.Context, profileURL string) (talent.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.candidateByURL[profileURL]
	if !ok {
		return talent.Candidate{}, ErrNotFound
	}
	return m.candidates[id], nil
}

func (m *Memory) Candidate(_ context.Context, id int64) (talent.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	if !ok {
		return talent.Candidate{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpsertCandidate(_ context.Context, c talent.Candidate) (talent.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.candidateByURL[c.ProfileURL]; ok {
		c.ID = id
	} else {
		m.nextCandidateID++
		c.ID = m.nextCandidateID
		m.candidateByURL[c.ProfileURL] = c.ID
	}
	m.candidates[c.ID] = c
	return c, nil
}

func (m *Memory) SaveCandidateEmbedding(_ context.Context, emb talent.CandidateEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidateEmbs[emb.CandidateID] = emb
	return nil
}

func (m *Memory) CandidateEmbedding(_ context.Context, candidateID int64) (talent.CandidateEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.candidateEmbs[candidateID]
	if !ok {
		return talent.CandidateEmbedding{}, ErrNotFound
	}
	return emb, nil
}

func (m *Memory) CreateJD(_ context.Context, jd talent.JobDescription) (talent.JobDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJDID++
	jd.ID = m.nextJDID
	m.jds[jd.ID] = jd
	return jd, nil
}

func (m *Memory) SaveJDEmbedding(_ context.Context, emb talent.JDEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jdEmbs[emb.JDID] = emb
	return nil
}

func (m *Memory) JDEmbedding(_ context.Context, jdID int64) (talent.JDEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.jdEmbs[jdID]
	if !ok {
		return talent.JDEmbedding{}, ErrNotFound
	}
	return emb, nil
}

func (m *Memory) CreateRun(_ context.Context, run talent.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID.String()] = run
	return nil
}

func (m *Memory) UpdateRunStats(_ context.Context, run talent.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID.String()]; !ok {
		return ErrNotFound
	}
	m.runs[run.ID.String()] = run
	return nil
}

func (m *Memory) Run(_ context.Context, id string) (talent.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return talent.Run{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) SaveRunCandidates(_ context.Context, rows []talent.RunCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		key := row.RunID.String()
		m.runCandidates[key] = append(m.runCandidates[key], row)
	}
	return nil
}

func (m *Memory) RunCandidates(_ context.Context, runID string) ([]talent.RunCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := append([]talent.RunCandidate(nil), m.runCandidates[runID]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows, nil
}

func (m *Memory) ListPlacements(_ context.Context) ([]talent.Placement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]talent.Placement(nil), m.placements...), nil
}

func (m *Memory) PlacementsWithoutProfiles(_ context.Context) ([]talent.Placement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []talent.Placement
	for _, p := range m.placements {
		if _, ok := m.placementProfiles[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) CreatePlacementProfile(_ context.Context, pp talent.PlacementProfile) (talent.PlacementProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProfileID++
	pp.ID = m.nextProfileID
	m.placementProfiles[pp.PlacementID] = pp
	return pp, nil
}

func (m *Memory) ListPlacementEmbeddings(_ context.Context) ([]talent.PlacementEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]talent.PlacementEmbedding, 0, len(m.placementProfiles))
	for _, p := range m.placements {
		pp, ok := m.placementProfiles[p.ID]
		if !ok {
			continue
		}
		emb, ok := m.candidateEmbs[pp.CandidateID]
		if !ok {
			continue
		}
		out = append(out, talent.PlacementEmbedding{
			PlacementID: p.ID,
			CandidateID: pp.CandidateID,
			Vector:      emb.Vector,
		})
	}
	return out, nil
}

func (m *Memory) AppendTrace(_ context.Context, steps []trace.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traceSteps = append(m.traceSteps, steps...)
	return nil
}

// TraceSteps returns the appended trace, for assertions in tests.
func (m *Memory) TraceSteps() []trace.Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]trace.Step(nil), m.traceSteps...)
}

func (m *Memory) Close() {}
