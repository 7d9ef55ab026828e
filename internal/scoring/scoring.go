// Package scoring implements C4: the multi-factor keyword scoring
// engine.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/model"
)

// Engine scores keyword records using a fixed set of weights and
// dictionaries against a deterministic multi-factor formula.
type Engine struct {
	weights      config.ScoringWeights
	intentTiers  []config.IntentDictionary
	serpWeights  config.SERPFeatureWeights
	sourcePenalty config.SourcePenalties
}

// New returns a scoring Engine configured with the given weights and
// dictionaries.
func New(weights config.ScoringWeights, intentTiers []config.IntentDictionary, serpWeights config.SERPFeatureWeights, sourcePenalty config.SourcePenalties) *Engine {
	return &Engine{weights: weights, intentTiers: intentTiers, serpWeights: serpWeights, sourcePenalty: sourcePenalty}
}

// Score assigns final_score, intent_score, and recommended_match_type
// on a copy of rec and returns it.
func (e *Engine) Score(rec model.KeywordRecord) model.KeywordRecord {
	words := significantWordCount(rec.Keyword)

	v := volumeTerm(rec.Volume)
	i := e.intentTerm(rec.Keyword)
	l := longTailTerm(words)
	c := competitionTerm(rec.Competition)
	s := e.serpTerm(rec.SERPFeatures)
	p := e.sourcePenalty[string(rec.DataSource)]

	raw := e.weights.Volume*v + e.weights.Intent*i + e.weights.LongTail*l -
		e.weights.Competition*c - e.weights.SERP*s - e.weights.Source*p

	rec.IntentScore = i
	rec.FinalScore = round3(clamp01(raw))
	rec.RecommendedMatchType = recommendMatchType(i, words, c)
	return rec
}

// ScoreAll scores every record and returns them sorted by final_score
// desc, then keyword asc, then primary market asc's
// determinism requirement.
func (e *Engine) ScoreAll(records []model.KeywordRecord) []model.KeywordRecord {
	out := make([]model.KeywordRecord, len(records))
	for i, rec := range records {
		out[i] = e.Score(rec)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].FinalScore != out[b].FinalScore {
			return out[a].FinalScore > out[b].FinalScore
		}
		if out[a].Keyword != out[b].Keyword {
			return out[a].Keyword < out[b].Keyword
		}
		return out[a].PrimaryMarket < out[b].PrimaryMarket
	})
	return out
}

func volumeTerm(volume *int64) float64 {
	v := int64(1)
	if volume != nil && *volume > 1 {
		v = *volume
	}
	term := math.Log10(float64(v)) / 10
	return clamp(term, 0, 1)
}

// intentTerm finds the longest matching phrase across every dictionary
// tier and returns that tier's multiplier. A keyword matching no phrase
// falls back to the lowest tier's multiplier (1.0 by default).
func (e *Engine) intentTerm(keyword string) float64 {
	lower := strings.ToLower(keyword)
	bestLen := -1
	bestMultiplier := 1.0
	fallback := 1.0

	for _, tier := range e.intentTiers {
		if len(tier.Phrases) == 0 {
			fallback = tier.Multiplier
			continue
		}
		for _, phrase := range tier.Phrases {
			p := strings.ToLower(phrase)
			if p == "" || !strings.Contains(lower, p) {
				continue
			}
			if len(p) > bestLen {
				bestLen = len(p)
				bestMultiplier = tier.Multiplier
			}
		}
	}

	if bestLen < 0 {
		return fallback
	}
	return bestMultiplier
}

// stopWords are excluded from the significant-word count used by the
// long-tail term and match-type recommendation, per the worked example
// in ("webp to png chrome extension" counts as 4 words).
var stopWords = map[string]bool{
	"to": true, "the": true, "a": true, "an": true,
	"of": true, "for": true, "and": true, "or": true,
}

func significantWordCount(keyword string) int {
	n := 0
	for _, field := range strings.Fields(keyword) {
		if !stopWords[strings.ToLower(field)] {
			n++
		}
	}
	return n
}

func longTailTerm(words int) float64 {
	switch {
	case words >= 5:
		return 0.4
	case words == 4:
		return 0.3
	case words == 3:
		return 0.2
	default:
		return 0
	}
}

func competitionTerm(competition *float64) float64 {
	if competition == nil {
		return 0
	}
	return *competition
}

// serpTerm applies the diminishing-returns accumulation over matched
// SERP features in their configured weight order, then clamps to [0,1].
func (e *Engine) serpTerm(features []string) float64 {
	matched := make(map[string]bool, len(features))
	for _, f := range features {
		matched[f] = true
	}

	keys := make([]string, 0, len(e.serpWeights))
	for k := range e.serpWeights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return e.serpWeights[keys[i]] > e.serpWeights[keys[j]] })

	s := 0.0
	for _, k := range keys {
		if !matched[k] {
			continue
		}
		w := e.serpWeights[k]
		s = s + w*(1-0.5*s)
	}
	return clamp01(s)
}

func recommendMatchType(intent float64, words int, competition float64) model.MatchType {
	switch {
	case intent >= 2.0 && words >= 3:
		return model.MatchExact
	case intent >= 1.5 || words >= 2:
		return model.MatchPhrase
	case competition <= 0.4:
		return model.MatchBroad
	default:
		return model.MatchPhrase
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
