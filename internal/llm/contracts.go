package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// ParsedJD is the job-description contract record.
type ParsedJD struct {
	Title              string   `json:"title"`
	Seniority          string   `json:"seniority"`
	Domains            []string `json:"domains"`
	MustHaveSkills     []string `json:"must_have_skills"`
	NiceToHaveSkills   []string `json:"nice_to_have_skills"`
	MinYearsExperience int      `json:"min_years_experience"`
	Location           string   `json:"location"`
	Summary            string   `json:"summary"`
}

// applyDefaults fills every optional field so downstream code never sees nil.
func (p *ParsedJD) applyDefaults() {
	if p.Title == "" {
		p.Title = "Unknown Role"
	}
	if p.Seniority == "" {
		p.Seniority = "unknown"
	}
	if p.Domains == nil {
		p.Domains = []string{}
	}
	if p.MustHaveSkills == nil {
		p.MustHaveSkills = []string{}
	}
	if p.NiceToHaveSkills == nil {
		p.NiceToHaveSkills = []string{}
	}
	if p.MinYearsExperience < 0 {
		p.MinYearsExperience = 0
	}
}

// Enrichment is the profile contract record, shared by enrichment and
// placement synthesis.
type Enrichment struct {
	Name            string             `json:"name"`
	Headline        string             `json:"headline"`
	Summary         string             `json:"summary"`
	CurrentTitle    string             `json:"current_title"`
	CurrentCompany  string             `json:"current_company"`
	Location        string             `json:"location"`
	YearsExperience float64            `json:"years_experience"`
	Skills          []string           `json:"skills"`
	Domains         []string           `json:"domains"`
	Experience      []talent.Role      `json:"experience"`
	Education       []talent.Education `json:"education"`
}

func (e *Enrichment) applyDefaults() {
	if e.Skills == nil {
		e.Skills = []string{}
	}
	if e.Domains == nil {
		e.Domains = []string{}
	}
	if e.Experience == nil {
		e.Experience = []talent.Role{}
	}
	if e.Education == nil {
		e.Education = []talent.Education{}
	}
	if e.YearsExperience < 0 {
		e.YearsExperience = 0
	}
}

const parseJDSystem = `You are a recruiting analyst. Extract structured requirements
from the job description. Respond with a single JSON object with keys:
title, seniority, domains, must_have_skills, nice_to_have_skills,
min_years_experience, location, summary. The summary is a 2-3 sentence
condensed description of the ideal candidate. Use empty values when the
text does not say.`

// ParseJD extracts role requirements from raw job-description text.
func (c *Client) ParseJD(ctx context.Context, rawText string) (ParsedJD, error) {
	var out ParsedJD
	if err := c.completeJSON(ctx, "parse_jd", parseJDSystem, rawText, &out); err != nil {
		return ParsedJD{}, err
	}
	out.applyDefaults()
	return out, nil
}

const enrichSystem = `You are a sourcing analyst. Extract a structured candidate
profile from the text below. Respond with a single JSON object with keys:
name, headline, summary, current_title, current_company, location,
years_experience, skills, domains, experience, education. Each experience
entry has title, company, location, start_date, end_date, is_current,
description. Each education entry has school, degree, field. Use empty
values when the text does not say; never invent employers.`

// EnrichProfile extracts a candidate record from a profile text corpus.
func (c *Client) EnrichProfile(ctx context.Context, corpus string) (Enrichment, error) {
	var out Enrichment
	if err := c.completeJSON(ctx, "enrich_profile", enrichSystem, corpus, &out); err != nil {
		return Enrichment{}, err
	}
	out.applyDefaults()
	return out, nil
}

const queriesSystem = `You are a sourcing strategist. Produce web search queries that
find public professional profiles for the role described. Respond with a
single JSON object: {"queries": ["...", ...]}. Queries must differ from
each other in emphasis (title synonyms, domain terms, geography).`

type queriesRecord struct {
	Queries []string `json:"queries"`
}

// GenerateQueries returns up to n search queries for a role summary.
func (c *Client) GenerateQueries(ctx context.Context, jdSummary string, n int) ([]string, error) {
	user := fmt.Sprintf("Role:\n%s\n\nProduce %d queries.", jdSummary, n)
	var out queriesRecord
	if err := c.completeJSON(ctx, "generate_queries", queriesSystem, user, &out); err != nil {
		return nil, err
	}
	return trimQueries(out.Queries, n), nil
}

const refineSystem = `You are a sourcing strategist mid-search. Given the role and the
current coverage summary, produce refined web search queries that close the
coverage gaps. Respond with a single JSON object: {"queries": ["...", ...]}.`

// RefineQueries returns up to n refined queries conditioned on coverage.
func (c *Client) RefineQueries(ctx context.Context, jdSummary, coverageSummary string, n int) ([]string, error) {
	user := fmt.Sprintf("Role:\n%s\n\nCoverage so far:\n%s\n\nProduce %d refined queries.",
		jdSummary, coverageSummary, n)
	var out queriesRecord
	if err := c.completeJSON(ctx, "refine_queries", refineSystem, user, &out); err != nil {
		return nil, err
	}
	return trimQueries(out.Queries, n), nil
}

const synthesizeSystem = `You are a recruiting analyst. Given a past successful hire's
name, title and company, write a plausible structured profile for the person
as they likely were when placed. Respond with the same JSON object shape as a
candidate profile: name, headline, summary, current_title, current_company,
location, years_experience, skills, domains, experience, education.`

// SynthesizeProfile generates a placement anchor profile for a past hire.
func (c *Client) SynthesizeProfile(ctx context.Context, name, jobTitle, company string) (Enrichment, error) {
	user := fmt.Sprintf("Name: %s\nTitle: %s\nCompany: %s", name, jobTitle, company)
	var out Enrichment
	if err := c.completeJSON(ctx, "synthesize_profile", synthesizeSystem, user, &out); err != nil {
		return Enrichment{}, err
	}
	out.applyDefaults()
	if out.Name == "" {
		out.Name = name
	}
	if out.CurrentTitle == "" {
		out.CurrentTitle = jobTitle
	}
	if out.CurrentCompany == "" {
		out.CurrentCompany = company
	}
	return out, nil
}

func trimQueries(qs []string, n int) []string {
	out := make([]string, 0, n)
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == n {
			break
		}
	}
	return out
}
