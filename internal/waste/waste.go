// Package waste implements C11: the search-term waste analyzer.
package waste

import (
	"sort"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// Thresholds configures the high-cost and low-CTR categorizations and the
// confidence of direct negatives; the poor-quality category uses fixed
// thresholds (at least 10 clicks and $5 cost with zero conversions).
type Thresholds struct {
	MinCost          float64
	MinImpressions   int64
	LowCTR           float64
	DirectNegativeConfidence float64
}

// DefaultThresholds returns reasonable default waste thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCost:                  20,
		MinImpressions:           1000,
		LowCTR:                   0.01,
		DirectNegativeConfidence: 0.8,
	}
}

// wasteIndicators is the static broad-negative watchlist
// §4.10.
var wasteIndicators = []string{"crack", "torrent", "virus", "keygen", "hack", "free download illegal"}

// Analyzer categorizes search-term rows and derives negative-keyword
// recommendations.
type Analyzer struct {
	thresholds Thresholds
}

// New returns an Analyzer configured with thresholds.
func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Analyze produces a WasteReport from rows.
func (a *Analyzer) Analyze(rows []model.SearchTermRow) model.WasteReport {
	var report model.WasteReport

	for _, row := range rows {
		switch {
		case row.Cost >= a.thresholds.MinCost && row.Conversions == 0:
			report.HighCostNoConvert = append(report.HighCostNoConvert, row)
		}
		if row.Impressions >= a.thresholds.MinImpressions && row.CTR() < a.thresholds.LowCTR {
			report.LowCtrHighImpr = append(report.LowCtrHighImpr, row)
		}
		if row.Clicks >= 10 && row.Conversions == 0 && row.Cost >= 5 {
			report.PoorQuality = append(report.PoorQuality, row)
		}
	}

	var negatives []model.NegativeRecommendation
	negatives = append(negatives, a.directNegatives(report.HighCostNoConvert)...)
	negatives = append(negatives, a.ngramNegatives(rows)...)
	negatives = append(negatives, a.broadNegatives(rows)...)

	sort.SliceStable(negatives, func(i, j int) bool {
		return negatives[i].EstimatedSavings > negatives[j].EstimatedSavings
	})
	report.Negatives = negatives

	var total float64
	for _, row := range rows {
		if row.Conversions == 0 {
			total += row.Cost
		}
	}
	report.TotalWastedCost = total

	return report
}

func (a *Analyzer) directNegatives(rows []model.SearchTermRow) []model.NegativeRecommendation {
	var out []model.NegativeRecommendation
	for _, row := range rows {
		out = append(out, model.NegativeRecommendation{
			Term:             row.Term,
			MatchType:        model.MatchExact,
			Level:            model.LevelAdGroup,
			Campaign:         row.Campaign,
			AdGroup:          row.AdGroup,
			EstimatedSavings: row.Cost,
			Confidence:       a.thresholds.DirectNegativeConfidence,
			Reason:           "high cost with zero conversions",
		})
	}
	return out
}

type ngramAccumulator struct {
	count int
	cost  float64
	campaign string
	adGroup  string
}

// ngramNegatives mines unigrams, bigrams, and trigrams across all rows;
// any n-gram appearing in ≥3 distinct terms with ≥$20 aggregate wasted
// cost becomes a phrase negative at campaign level.
func (a *Analyzer) ngramNegatives(rows []model.SearchTermRow) []model.NegativeRecommendation {
	acc := make(map[string]*ngramAccumulator)
	seenPerTerm := make(map[string]map[string]bool)

	for _, row := range rows {
		if row.Conversions > 0 {
			continue
		}
		tokens := strings.Fields(strings.ToLower(row.Term))
		for n := 1; n <= 3; n++ {
			for _, gram := range ngrams(tokens, n) {
				if seenPerTerm[gram] == nil {
					seenPerTerm[gram] = make(map[string]bool)
				}
				if seenPerTerm[gram][row.Term] {
					continue
				}
				seenPerTerm[gram][row.Term] = true

				a2, ok := acc[gram]
				if !ok {
					a2 = &ngramAccumulator{campaign: row.Campaign, adGroup: row.AdGroup}
					acc[gram] = a2
				}
				a2.count++
				a2.cost += row.Cost
			}
		}
	}

	var out []model.NegativeRecommendation
	for gram, a2 := range acc {
		if a2.count >= 3 && a2.cost >= 20 {
			out = append(out, model.NegativeRecommendation{
				Term:             gram,
				MatchType:        model.MatchPhrase,
				Level:            model.LevelCampaign,
				Campaign:         a2.campaign,
				EstimatedSavings: a2.cost,
				Confidence:       0.6,
				Reason:           "recurring low-value phrase across search terms",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

func ngrams(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	var out []string
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// broadNegatives flags terms containing a static waste-indicator phrase
// with ≥$10 aggregate cost, applied at campaign level with broad match.
func (a *Analyzer) broadNegatives(rows []model.SearchTermRow) []model.NegativeRecommendation {
	costByIndicator := make(map[string]float64)
	campaignByIndicator := make(map[string]string)

	for _, row := range rows {
		lower := strings.ToLower(row.Term)
		for _, indicator := range wasteIndicators {
			if strings.Contains(lower, indicator) {
				costByIndicator[indicator] += row.Cost
				campaignByIndicator[indicator] = row.Campaign
			}
		}
	}

	var out []model.NegativeRecommendation
	for indicator, cost := range costByIndicator {
		if cost >= 10 {
			out = append(out, model.NegativeRecommendation{
				Term:             indicator,
				MatchType:        model.MatchBroad,
				Level:            model.LevelCampaign,
				Campaign:         campaignByIndicator[indicator],
				EstimatedSavings: cost,
				Confidence:       0.9,
				Reason:           "matches known low-intent/abuse indicator",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}
