package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

// pgxPool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresConfig controls the connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool pgxPool
}

// NewPostgres connects a pool and returns a Store backed by it.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (for tests).
func NewPostgresWithPool(pool pgxPool) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

const candidateColumns = `id, profile_url, name, headline, current_title, current_company,
location, years_experience, skills, domains, experience, education,
raw_text, source, last_fetched_at`

func scanCandidate(row pgx.Row) (talent.Candidate, error) {
	var (
		c                                     talent.Candidate
		skills, domains, experience, eduction []byte
	)
	err := row.Scan(
		&c.ID, &c.ProfileURL, &c.Name, &c.Headline, &c.CurrentTitle, &c.CurrentCompany,
		&c.Location, &c.YearsExperience, &skills, &domains, &experience, &eduction,
		&c.RawText, &c.Source, &c.LastFetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return talent.Candidate{}, ErrNotFound
	}
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("scan candidate: %w", err)
	}
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{skills, &c.Skills},
		{domains, &c.Domains},
		{experience, &c.Experience},
		{eduction, &c.Education},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return talent.Candidate{}, fmt.Errorf("decode candidate field: %w", err)
		}
	}
	return c, nil
}

func (p *Postgres) CandidateByURL(ctx context.Context, profileURL string) (talent.Candidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM candidates WHERE profile_url = $1`, candidateColumns)
	return scanCandidate(p.pool.QueryRow(ctx, query, profileURL))
}

func (p *Postgres) Candidate(ctx context.Context, id int64) (talent.Candidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM candidates WHERE id = $1`, candidateColumns)
	return scanCandidate(p.pool.QueryRow(ctx, query, id))
}

func (p *Postgres) UpsertCandidate(ctx context.Context, c talent.Candidate) (talent.Candidate, error) {
	skills, err := json.Marshal(orEmpty(c.Skills))
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("marshal skills: %w", err)
	}
	domains, err := json.Marshal(orEmpty(c.Domains))
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("marshal domains: %w", err)
	}
	experience, err := json.Marshal(c.Experience)
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("marshal experience: %w", err)
	}
	education, err := json.Marshal(c.Education)
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("marshal education: %w", err)
	}

	query := `
INSERT INTO candidates (
	profile_url, name, headline, current_title, current_company, location,
	years_experience, skills, domains, experience, education, raw_text,
	source, last_fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (profile_url) DO UPDATE SET
	name = EXCLUDED.name,
	headline = EXCLUDED.headline,
	current_title = EXCLUDED.current_title,
	current_company = EXCLUDED.current_company,
	location = EXCLUDED.location,
	years_experience = EXCLUDED.years_experience,
	skills = EXCLUDED.skills,
	domains = EXCLUDED.domains,
	experience = EXCLUDED.experience,
	education = EXCLUDED.education,
	raw_text = EXCLUDED.raw_text,
	source = EXCLUDED.source,
	last_fetched_at = EXCLUDED.last_fetched_at
RETURNING id`

	err = p.pool.QueryRow(ctx, query,
		c.ProfileURL, c.Name, c.Headline, c.CurrentTitle, c.CurrentCompany, c.Location,
		c.YearsExperience, skills, domains, experience, education, c.RawText,
		c.Source, c.LastFetchedAt,
	).Scan(&c.ID)
	if err != nil {
		return talent.Candidate{}, fmt.Errorf("upsert candidate: %w", err)
	}
	return c, nil
}

func (p *Postgres) SaveCandidateEmbedding(ctx context.Context, emb talent.CandidateEmbedding) error {
	vector, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	query := `
INSERT INTO candidate_embeddings (candidate_id, vector, model_name)
VALUES ($1, $2, $3)
ON CONFLICT (candidate_id) DO UPDATE SET vector = EXCLUDED.vector, model_name = EXCLUDED.model_name`
	if _, err := p.pool.Exec(ctx, query, emb.CandidateID, vector, emb.ModelName); err != nil {
		return fmt.Errorf("save candidate embedding: %w", err)
	}
	return nil
}

func (p *Postgres) CandidateEmbedding(ctx context.Context, candidateID int64) (talent.CandidateEmbedding, error) {
	var (
		emb talent.CandidateEmbedding
		raw []byte
	)
	query := `SELECT candidate_id, vector, model_name FROM candidate_embeddings WHERE candidate_id = $1`
	err := p.pool.QueryRow(ctx, query, candidateID).Scan(&emb.CandidateID, &raw, &emb.ModelName)
	if errors.Is(err, pgx.ErrNoRows) {
		return talent.CandidateEmbedding{}, ErrNotFound
	}
	if err != nil {
		return talent.CandidateEmbedding{}, fmt.Errorf("query candidate embedding: %w", err)
	}
	if err := json.Unmarshal(raw, &emb.Vector); err != nil {
		return talent.CandidateEmbedding{}, fmt.Errorf("decode vector: %w", err)
	}
	return emb, nil
}

func (p *Postgres) CreateJD(ctx context.Context, jd talent.JobDescription) (talent.JobDescription, error) {
	domains, err := json.Marshal(orEmpty(jd.Domains))
	if err != nil {
		return talent.JobDescription{}, fmt.Errorf("marshal domains: %w", err)
	}
	must, err := json.Marshal(orEmpty(jd.MustHaveSkills))
	if err != nil {
		return talent.JobDescription{}, fmt.Errorf("marshal must-have skills: %w", err)
	}
	nice, err := json.Marshal(orEmpty(jd.NiceToHaveSkills))
	if err != nil {
		return talent.JobDescription{}, fmt.Errorf("marshal nice-to-have skills: %w", err)
	}
	query := `
INSERT INTO job_descriptions (
	raw_text, title, seniority, domains, must_have_skills, nice_to_have_skills,
	min_years_experience, location, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`
	err = p.pool.QueryRow(ctx, query,
		jd.RawText, jd.Title, jd.Seniority, domains, must, nice,
		jd.MinYearsExperience, jd.Location, jd.CreatedAt,
	).Scan(&jd.ID)
	if err != nil {
		return talent.JobDescription{}, fmt.Errorf("insert job description: %w", err)
	}
	return jd, nil
}

func (p *Postgres) SaveJDEmbedding(ctx context.Context, emb talent.JDEmbedding) error {
	vector, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	query := `
INSERT INTO jd_embeddings (jd_id, vector, model_name)
VALUES ($1, $2, $3)
ON CONFLICT (jd_id) DO UPDATE SET vector = EXCLUDED.vector, model_name = EXCLUDED.model_name`
	if _, err := p.pool.Exec(ctx, query, emb.JDID, vector, emb.ModelName); err != nil {
		return fmt.Errorf("save jd embedding: %w", err)
	}
	return nil
}

func (p *Postgres) JDEmbedding(ctx context.Context, jdID int64) (talent.JDEmbedding, error) {
	var (
		emb talent.JDEmbedding
		raw []byte
	)
	query := `SELECT jd_id, vector, model_name FROM jd_embeddings WHERE jd_id = $1`
	err := p.pool.QueryRow(ctx, query, jdID).Scan(&emb.JDID, &raw, &emb.ModelName)
	if errors.Is(err, pgx.ErrNoRows) {
		return talent.JDEmbedding{}, ErrNotFound
	}
	if err != nil {
		return talent.JDEmbedding{}, fmt.Errorf("query jd embedding: %w", err)
	}
	if err := json.Unmarshal(raw, &emb.Vector); err != nil {
		return talent.JDEmbedding{}, fmt.Errorf("decode vector: %w", err)
	}
	return emb, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run talent.Run) error {
	query := `
INSERT INTO runs (
	id, jd_id, created_at, urls_found, profiles_parsed, profiles_from_cache,
	sourcing_time_ms, ranking_time_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := p.pool.Exec(ctx, query,
		run.ID, run.JDID, run.CreatedAt, run.URLsFound, run.ProfilesParsed,
		run.ProfilesFromCache, run.SourcingTimeMS, run.RankingTimeMS,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateRunStats(ctx context.Context, run talent.Run) error {
	query := `
UPDATE runs SET
	urls_found = $2,
	profiles_parsed = $3,
	profiles_from_cache = $4,
	sourcing_time_ms = $5,
	ranking_time_ms = $6
WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query,
		run.ID, run.URLsFound, run.ProfilesParsed, run.ProfilesFromCache,
		run.SourcingTimeMS, run.RankingTimeMS,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Run(ctx context.Context, id string) (talent.Run, error) {
	var run talent.Run
	query := `
SELECT id, jd_id, created_at, urls_found, profiles_parsed, profiles_from_cache,
	sourcing_time_ms, ranking_time_ms
FROM runs WHERE id = $1`
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.JDID, &run.CreatedAt, &run.URLsFound, &run.ProfilesParsed,
		&run.ProfilesFromCache, &run.SourcingTimeMS, &run.RankingTimeMS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return talent.Run{}, ErrNotFound
	}
	if err != nil {
		return talent.Run{}, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

func (p *Postgres) SaveRunCandidates(ctx context.Context, rows []talent.RunCandidate) error {
	query := `
INSERT INTO run_candidates (
	run_id, candidate_id, score, features, placement_similarity,
	closest_placement_id, explanation
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id, candidate_id) DO UPDATE SET
	score = EXCLUDED.score,
	features = EXCLUDED.features,
	placement_similarity = EXCLUDED.placement_similarity,
	closest_placement_id = EXCLUDED.closest_placement_id,
	explanation = EXCLUDED.explanation`
	for _, row := range rows {
		features, err := json.Marshal(row.Features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		explanation, err := json.Marshal(orEmpty(row.Explanation))
		if err != nil {
			return fmt.Errorf("marshal explanation: %w", err)
		}
		_, err = p.pool.Exec(ctx, query,
			row.RunID, row.CandidateID, row.Score, features,
			row.PlacementSimilarity, row.ClosestPlacementID, explanation,
		)
		if err != nil {
			return fmt.Errorf("insert run candidate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) RunCandidates(ctx context.Context, runID string) ([]talent.RunCandidate, error) {
	query := `
SELECT run_id, candidate_id, score, features, placement_similarity,
	closest_placement_id, explanation
FROM run_candidates WHERE run_id = $1
ORDER BY score DESC`
	rows, err := p.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query run candidates: %w", err)
	}
	defer rows.Close()

	var out []talent.RunCandidate
	for rows.Next() {
		var (
			rc                    talent.RunCandidate
			features, explanation []byte
		)
		err := rows.Scan(
			&rc.RunID, &rc.CandidateID, &rc.Score, &features,
			&rc.PlacementSimilarity, &rc.ClosestPlacementID, &explanation,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run candidate: %w", err)
		}
		if len(features) > 0 {
			if err := json.Unmarshal(features, &rc.Features); err != nil {
				return nil, fmt.Errorf("decode features: %w", err)
			}
		}
		if len(explanation) > 0 {
			if err := json.Unmarshal(explanation, &rc.Explanation); err != nil {
				return nil, fmt.Errorf("decode explanation: %w", err)
			}
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run candidates: %w", err)
	}
	return out, nil
}

const placementColumns = `id, name, company, job_title, position_id, placement_type,
date_posted, placement_date, start_date`

func scanPlacements(rows pgx.Rows) ([]talent.Placement, error) {
	defer rows.Close()
	var out []talent.Placement
	for rows.Next() {
		var pl talent.Placement
		err := rows.Scan(
			&pl.ID, &pl.Name, &pl.Company, &pl.JobTitle, &pl.PositionID,
			&pl.PlacementType, &pl.DatePosted, &pl.PlacementDate, &pl.StartDate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placements: %w", err)
	}
	return out, nil
}

func (p *Postgres) ListPlacements(ctx context.Context) ([]talent.Placement, error) {
	query := fmt.Sprintf(`SELECT %s FROM placements ORDER BY id`, placementColumns)
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	return scanPlacements(rows)
}

func (p *Postgres) PlacementsWithoutProfiles(ctx context.Context) ([]talent.Placement, error) {
	query := fmt.Sprintf(`
SELECT %s FROM placements p
WHERE NOT EXISTS (
	SELECT 1 FROM placement_profiles pp WHERE pp.placement_id = p.id
)
ORDER BY p.id`, placementColumns)
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query placements without profiles: %w", err)
	}
	return scanPlacements(rows)
}

func (p *Postgres) CreatePlacementProfile(ctx context.Context, pp talent.PlacementProfile) (talent.PlacementProfile, error) {
	query := `
INSERT INTO placement_profiles (placement_id, candidate_id)
VALUES ($1, $2)
RETURNING id`
	err := p.pool.QueryRow(ctx, query, pp.PlacementID, pp.CandidateID).Scan(&pp.ID)
	if err != nil {
		return talent.PlacementProfile{}, fmt.Errorf("insert placement profile: %w", err)
	}
	return pp, nil
}

func (p *Postgres) ListPlacementEmbeddings(ctx context.Context) ([]talent.PlacementEmbedding, error) {
	query := `
SELECT pp.placement_id, pp.candidate_id, ce.vector
FROM placement_profiles pp
JOIN candidate_embeddings ce ON ce.candidate_id = pp.candidate_id
ORDER BY pp.placement_id`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query placement embeddings: %w", err)
	}
	defer rows.Close()

	var out []talent.PlacementEmbedding
	for rows.Next() {
		var (
			emb talent.PlacementEmbedding
			raw []byte
		)
		if err := rows.Scan(&emb.PlacementID, &emb.CandidateID, &raw); err != nil {
			return nil, fmt.Errorf("scan placement embedding: %w", err)
		}
		if err := json.Unmarshal(raw, &emb.Vector); err != nil {
			return nil, fmt.Errorf("decode vector: %w", err)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placement embeddings: %w", err)
	}
	return out, nil
}

func (p *Postgres) AppendTrace(ctx context.Context, steps []trace.Step) error {
	query := `
INSERT INTO run_trace (run_id, seq, stage, detail, at)
VALUES ($1, $2, $3, $4, $5)`
	for _, step := range steps {
		detail, err := json.Marshal(step.Detail)
		if err != nil {
			return fmt.Errorf("marshal trace detail: %w", err)
		}
		if _, err := p.pool.Exec(ctx, query, step.RunID, step.Seq, step.Stage, detail, step.At); err != nil {
			return fmt.Errorf("insert trace step: %w", err)
		}
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
