// Package talent defines core types shared across subsystems.
package talent

import (
	"time"

	"github.com/google/uuid"
)

// Vector is a fixed-length embedding produced by the embedding service.
type Vector []float32

// Role is one entry in a candidate's work history.
type Role struct {
	Title       string  `json:"title"`
	Company     string  `json:"company"`
	Location    string  `json:"location,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	Current     bool    `json:"is_current"`
	Years       float64 `json:"years,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Education is one entry in a candidate's education history.
type Education struct {
	School    string `json:"school,omitempty"`
	Degree    string `json:"degree,omitempty"`
	Field     string `json:"field,omitempty"`
	StartYear int    `json:"start_year,omitempty"`
	EndYear   int    `json:"end_year,omitempty"`
}

// Candidate is a public professional profile keyed by its URL. A URL maps to
// at most one Candidate; records are refreshed in place when the TTL expires
// and are never deleted by this subsystem.
type Candidate struct {
	ID              int64       `json:"id"`
	ProfileURL      string      `json:"profile_url"`
	Name            string      `json:"name"`
	Headline        string      `json:"headline,omitempty"`
	CurrentTitle    string      `json:"current_title,omitempty"`
	CurrentCompany  string      `json:"current_company,omitempty"`
	Location        string      `json:"location,omitempty"`
	YearsExperience float64     `json:"years_experience,omitempty"`
	Skills          []string    `json:"skills"`
	Domains         []string    `json:"domains"`
	Experience      []Role      `json:"experience"`
	Education       []Education `json:"education"`
	RawText         string      `json:"raw_text"`
	Source          string      `json:"source"`
	LastFetchedAt   time.Time   `json:"last_fetched_at"`
}

// CandidateEmbedding attaches one vector to a candidate. It is written at
// creation and not proactively replaced on refresh.
type CandidateEmbedding struct {
	CandidateID int64  `json:"candidate_id"`
	Vector      Vector `json:"vector"`
	ModelName   string `json:"model_name"`
}

// JobDescription holds the parsed role requirements for a sourcing run.
type JobDescription struct {
	ID                 int64     `json:"id"`
	RawText            string    `json:"raw_text"`
	Title              string    `json:"title"`
	Seniority          string    `json:"seniority"`
	Domains            []string  `json:"domains"`
	MustHaveSkills     []string  `json:"must_have_skills"`
	NiceToHaveSkills   []string  `json:"nice_to_have_skills"`
	MinYearsExperience int       `json:"min_years_experience"`
	Location           string    `json:"location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// JDEmbedding is the single embedding of a job description's condensed summary.
type JDEmbedding struct {
	JDID      int64  `json:"jd_id"`
	Vector    Vector `json:"vector"`
	ModelName string `json:"model_name"`
}

// Placement is a historical successful hire.
type Placement struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Company       string `json:"company"`
	JobTitle      string `json:"job_title"`
	PositionID    string `json:"position_id,omitempty"`
	PlacementType string `json:"placement_type,omitempty"`
	DatePosted    string `json:"date_posted,omitempty"`
	PlacementDate string `json:"placement_date,omitempty"`
	StartDate     string `json:"start_date,omitempty"`
}

// PlacementProfile links a Placement to the synthesized Candidate used as a
// similarity anchor.
type PlacementProfile struct {
	ID          int64 `json:"id"`
	PlacementID int64 `json:"placement_id"`
	CandidateID int64 `json:"candidate_id"`
}

// PlacementEmbedding is the vector of a placement's synthesized profile,
// denormalized for similarity scoring.
type PlacementEmbedding struct {
	PlacementID int64  `json:"placement_id"`
	CandidateID int64  `json:"candidate_id"`
	Vector      Vector `json:"vector"`
}

// Run is one end-to-end sourcing execution for a single job description.
type Run struct {
	ID                uuid.UUID `json:"id"`
	JDID              int64     `json:"jd_id"`
	CreatedAt         time.Time `json:"created_at"`
	URLsFound         int       `json:"urls_found"`
	ProfilesParsed    int       `json:"profiles_parsed"`
	ProfilesFromCache int       `json:"profiles_from_cache"`
	SourcingTimeMS    int64     `json:"sourcing_time_ms"`
	RankingTimeMS     int64     `json:"ranking_time_ms"`
}

// RunCandidate is the per-run, per-candidate scoring row. Score is only
// meaningful once Features is populated.
type RunCandidate struct {
	RunID               uuid.UUID          `json:"run_id"`
	CandidateID         int64              `json:"candidate_id"`
	Score               float64            `json:"score"`
	Features            map[string]float64 `json:"features"`
	PlacementSimilarity float64            `json:"placement_similarity"`
	ClosestPlacementID  *int64             `json:"closest_placement_id,omitempty"`
	Explanation         []string           `json:"explanation,omitempty"`
}

// SearchResult is one hit returned by the web search service.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
