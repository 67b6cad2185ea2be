// Package scoring computes per-candidate fit scores against a job
// description and its historical placement anchors.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// Feature weights. The similarity pair and the heuristic group are additive
// and intentionally not renormalized, so a strong candidate can score above
// 1.0.
const (
	weightSimJD         = 0.70
	weightSimIdeal      = 0.30
	weightExperienceOK  = 0.15
	weightSkillsOverlap = 0.15
	weightDomainMatch   = 0.10
	weightLevelMatch    = 0.10
	weightTenure        = 0.05

	idealTopK = 3
)

// Result is one candidate's score breakdown.
type Result struct {
	Score               float64
	Features            map[string]float64
	PlacementSimilarity float64
	ClosestPlacementID  *int64
	Explanation         []string
}

// Engine scores candidates for a single job description. Construct one per
// run after the JD embedding and placement anchors are loaded.
type Engine struct {
	jd         talent.JobDescription
	jdVec      talent.Vector
	ideal      talent.Vector
	placements []talent.PlacementEmbedding
}

// NewEngine builds the ideal embedding (centroid of the top-K placement
// vectors by similarity to the JD vector) and retains the placement anchors
// for closest-placement labeling.
func NewEngine(jd talent.JobDescription, jdVec talent.Vector, placements []talent.PlacementEmbedding) *Engine {
	return &Engine{
		jd:         jd,
		jdVec:      jdVec,
		ideal:      idealEmbedding(jdVec, placements),
		placements: placements,
	}
}

// Cosine returns the cosine similarity of two vectors, or 0 when either has
// zero norm or the lengths differ.
func Cosine(a, b talent.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func idealEmbedding(jdVec talent.Vector, placements []talent.PlacementEmbedding) talent.Vector {
	if len(jdVec) == 0 || len(placements) == 0 {
		return nil
	}
	ranked := make([]talent.PlacementEmbedding, len(placements))
	copy(ranked, placements)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Cosine(jdVec, ranked[i].Vector) > Cosine(jdVec, ranked[j].Vector)
	})
	k := idealTopK
	if k > len(ranked) {
		k = len(ranked)
	}
	centroid := make(talent.Vector, len(jdVec))
	counted := 0
	for _, p := range ranked[:k] {
		if len(p.Vector) != len(centroid) {
			continue
		}
		for i, v := range p.Vector {
			centroid[i] += v
		}
		counted++
	}
	if counted == 0 {
		return nil
	}
	for i := range centroid {
		centroid[i] /= float32(counted)
	}
	return centroid
}

// Score computes the full feature vector, aggregate score, closest placement
// and explanation for one candidate.
func (e *Engine) Score(c talent.Candidate, candVec talent.Vector) Result {
	simJD := Cosine(e.jdVec, candVec)
	simIdeal := 0.0
	if len(e.ideal) > 0 {
		simIdeal = Cosine(e.ideal, candVec)
	}

	experienceOK := 0.5
	if e.jd.MinYearsExperience > 0 {
		experienceOK = math.Min(1, c.YearsExperience/float64(e.jd.MinYearsExperience))
	}

	skillsOverlap, matched := skillsOverlapScore(e.jd.MustHaveSkills, c.Skills)
	domainMatch := domainMatchScore(e.jd.Domains, c.RawText)
	levelMatch := levelMatchScore(e.jd.Title, c.CurrentTitle)
	tenure := 0.5

	score := weightSimJD*simJD +
		weightSimIdeal*simIdeal +
		weightExperienceOK*experienceOK +
		weightSkillsOverlap*skillsOverlap +
		weightDomainMatch*domainMatch +
		weightLevelMatch*levelMatch +
		weightTenure*tenure

	closestID, closestSim := e.closestPlacement(candVec)

	res := Result{
		Score: score,
		Features: map[string]float64{
			"sim_jd":         simJD,
			"sim_ideal":      simIdeal,
			"experience_ok":  experienceOK,
			"skills_overlap": skillsOverlap,
			"domain_match":   domainMatch,
			"level_match":    levelMatch,
			"tenure_score":   tenure,
		},
		PlacementSimilarity: closestSim,
		ClosestPlacementID:  closestID,
	}
	res.Explanation = e.explain(c, res, matched)
	return res
}

// closestPlacement returns the single most similar placement anchor. Ties
// keep the first-encountered placement.
func (e *Engine) closestPlacement(candVec talent.Vector) (*int64, float64) {
	var (
		bestID  *int64
		bestSim float64
	)
	for _, p := range e.placements {
		sim := Cosine(p.Vector, candVec)
		if bestID == nil || sim > bestSim {
			id := p.PlacementID
			bestID = &id
			bestSim = sim
		}
	}
	return bestID, bestSim
}

func skillsOverlapScore(mustHave, skills []string) (float64, []string) {
	if len(mustHave) == 0 {
		return 0.5, nil
	}
	have := make(map[string]bool, len(skills))
	for _, s := range skills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var matched []string
	for _, s := range mustHave {
		if have[strings.ToLower(strings.TrimSpace(s))] {
			matched = append(matched, s)
		}
	}
	return float64(len(matched)) / float64(len(mustHave)), matched
}

func domainMatchScore(domains []string, rawText string) float64 {
	if len(domains) == 0 {
		return 0.5
	}
	text := strings.ToLower(rawText)
	hits := 0
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" && strings.Contains(text, d) {
			hits++
		}
	}
	return float64(hits) / float64(len(domains))
}

func titleLevel(title string) int {
	t := strings.ToLower(title)
	for _, kw := range []string{"vp", "vice president", "chief", "cmo", "ceo"} {
		if strings.Contains(t, kw) {
			return 4
		}
	}
	if strings.Contains(t, "director") {
		return 3
	}
	for _, kw := range []string{"manager", "lead", "supervisor"} {
		if strings.Contains(t, kw) {
			return 2
		}
	}
	return 1
}

func levelMatchScore(jdTitle, candidateTitle string) float64 {
	diff := math.Abs(float64(titleLevel(jdTitle) - titleLevel(candidateTitle)))
	return math.Max(0, 1-diff/3)
}

// explain produces the ordered bullet list shown alongside a score.
func (e *Engine) explain(c talent.Candidate, res Result, matchedSkills []string) []string {
	var bullets []string

	role := c.CurrentTitle
	if role == "" {
		role = "unknown role"
	}
	if c.CurrentCompany != "" {
		role += " at " + c.CurrentCompany
	}
	bullets = append(bullets, fmt.Sprintf("%.0f years of experience; currently %s", c.YearsExperience, role))

	if len(e.jd.MustHaveSkills) > 0 {
		samples := matchedSkills
		if len(samples) > 4 {
			samples = samples[:4]
		}
		line := fmt.Sprintf("Matches %d of %d must-have skills", len(matchedSkills), len(e.jd.MustHaveSkills))
		if len(samples) > 0 {
			line += ": " + strings.Join(samples, ", ")
		}
		bullets = append(bullets, line)
	}

	if res.Features["domain_match"] > 0.4 && len(e.jd.Domains) > 0 {
		bullets = append(bullets, "Background aligns with target domains: "+strings.Join(e.jd.Domains, ", "))
	}

	if res.Features["sim_ideal"] > 0.5 && res.ClosestPlacementID != nil {
		bullets = append(bullets, fmt.Sprintf("Similar to a previously placed candidate (similarity %.2f)", res.PlacementSimilarity))
	}

	return bullets
}
