// Package variant implements C7: RSA/landing-page variant generation
// with pairwise-similarity guards against the control.
package variant

import (
	"fmt"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/rng"
)

// Strategy is a creative angle a variant is generated under.
type Strategy string

const (
	StrategyBenefitLed        Strategy = "benefit_led"
	StrategyProofLed          Strategy = "proof_led"
	StrategyDiverse           Strategy = "diverse"
	StrategyConversionFocused Strategy = "conversion_focused"
)

// DefaultSimilarityThreshold is the pairwise-with-control ceiling.
const DefaultSimilarityThreshold = 0.9

// MaxRegenerateAttempts bounds how many times a violating variant is
// regenerated before being discarded.
const MaxRegenerateAttempts = 3

// CreativePool supplies candidate copy fragments a strategy draws from.
// A real deployment seeds this from product copywriting guidelines; tests
// and local runs use a small static pool.
type CreativePool struct {
	Headlines    []string
	Descriptions []string
	Subheadlines []string
	CTAs         []string
}

// Generator produces variants for an experiment's control creative.
type Generator struct {
	pool           CreativePool
	anchor         string
	src            rng.Source
	similarityCeil float64
}

// New returns a Generator drawing from pool, pinning anchor as the
// first RSA headline, sampling from src.
func New(pool CreativePool, anchor string, src rng.Source) *Generator {
	return &Generator{pool: pool, anchor: anchor, src: src, similarityCeil: DefaultSimilarityThreshold}
}

// GenerateRSA produces one RSA variant per strategy, regenerating (up to
// MaxRegenerateAttempts) or discarding any variant whose similarity to
// control exceeds the configured threshold.
func (g *Generator) GenerateRSA(control model.Variant, strategies []Strategy) []model.Variant {
	var out []model.Variant
	for i, strat := range strategies {
		variant, ok := g.generateOneRSA(control, strat, i)
		if ok {
			out = append(out, variant)
		}
	}
	return out
}

func (g *Generator) generateOneRSA(control model.Variant, strat Strategy, index int) (model.Variant, bool) {
	for attempt := 0; attempt < MaxRegenerateAttempts; attempt++ {
		candidate := g.draftRSA(strat, index, attempt)
		sim := RSASimilarity(control, candidate)
		candidate.SimilarityToControl = sim
		if sim <= g.similarityCeil {
			return candidate, true
		}
	}
	return model.Variant{}, false
}

func (g *Generator) draftRSA(strat Strategy, index, attempt int) model.Variant {
	headlines := []string{g.anchor}
	headlines = append(headlines, g.pickN(g.pool.Headlines, 4, int(strat[0])+attempt)...)
	if len(headlines) < 3 {
		headlines = append(headlines, fmt.Sprintf("%s option %d", strat, index))
	}

	descriptions := g.pickN(g.pool.Descriptions, 3, int(strat[0])+attempt+1)
	if len(descriptions) < 2 {
		descriptions = append(descriptions, fmt.Sprintf("%s description", strat))
	}

	return model.Variant{
		ID:           fmt.Sprintf("rsa-%s-%d", strat, index),
		Name:         fmt.Sprintf("%s variant %d", strat, index),
		Weight:       1.0,
		Headlines:    dedupe(headlines),
		Descriptions: dedupe(descriptions),
	}
}

// GenerateLandingPage produces one landing-page variant per strategy,
// applying the same similarity guard using LandingPageSimilarity.
func (g *Generator) GenerateLandingPage(control model.Variant, strategies []Strategy) []model.Variant {
	var out []model.Variant
	for i, strat := range strategies {
		for attempt := 0; attempt < MaxRegenerateAttempts; attempt++ {
			candidate := g.draftLandingPage(strat, i, attempt)
			sim := LandingPageSimilarity(control, candidate)
			candidate.SimilarityToControl = sim
			if sim <= g.similarityCeil {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

func (g *Generator) draftLandingPage(strat Strategy, index, attempt int) model.Variant {
	sub := g.pick(g.pool.Subheadlines, int(strat[0])+attempt)
	cta := g.pick(g.pool.CTAs, int(strat[0])+attempt+1)
	return model.Variant{
		ID:           fmt.Sprintf("lp-%s-%d", strat, index),
		Name:         fmt.Sprintf("%s landing page %d", strat, index),
		Weight:       1.0,
		ContentPath:  fmt.Sprintf("/variants/%s-%d", strat, index),
		RoutingRules: []string{sub, cta},
	}
}

func (g *Generator) pickN(pool []string, n, salt int) []string {
	if len(pool) == 0 {
		return nil
	}
	start := salt % len(pool)
	if g.src != nil {
		start = g.src.Intn(len(pool))
	}
	var out []string
	for i := 0; i < n && i < len(pool); i++ {
		out = append(out, pool[(start+i)%len(pool)])
	}
	return out
}

func (g *Generator) pick(pool []string, salt int) string {
	if len(pool) == 0 {
		return ""
	}
	idx := salt % len(pool)
	if g.src != nil {
		idx = g.src.Intn(len(pool))
	}
	return pool[idx]
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// RSASimilarity is the fraction of identical normalized entries across
// headlines ∪ descriptions between a and b.
func RSASimilarity(a, b model.Variant) float64 {
	setA := normalizedSet(append(append([]string{}, a.Headlines...), a.Descriptions...))
	setB := normalizedSet(append(append([]string{}, b.Headlines...), b.Descriptions...))
	return jaccardLike(setA, setB)
}

// LandingPageSimilarity is the normalized aggregate similarity over
// {headline, subheadline, cta} between two landing-page variants. This
// generator models headline/subheadline/cta as RoutingRules[0] (sub) and
// RoutingRules[1] (cta) plus ContentPath standing in for headline.
func LandingPageSimilarity(a, b model.Variant) float64 {
	fieldsA := []string{a.ContentPath}
	fieldsA = append(fieldsA, a.RoutingRules...)
	fieldsB := []string{b.ContentPath}
	fieldsB = append(fieldsB, b.RoutingRules...)

	n := len(fieldsA)
	if len(fieldsB) < n {
		n = len(fieldsB)
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += normalizedLevenshteinSimilarity(fieldsA[i], fieldsB[i])
	}
	return sum / float64(n)
}

// normalizedSet returns the set of normalized (lowercased, trimmed)
// entries, used for the fraction-identical metric.
func normalizedSet(entries []string) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return out
}

// jaccardLike returns the fraction of entries shared between a and b,
// relative to the larger set, matching "fraction of identical
// normalized entries."
func jaccardLike(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}

// normalizedLevenshteinSimilarity returns 1 - (editDistance / maxLen), a
// normalized Levenshtein-based similarity in [0,1].
func normalizedLevenshteinSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
