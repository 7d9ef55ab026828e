package connector

import (
	"context"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// EstimatedConnector is the lowest-precedence fallback source: it
// derives volume/competition heuristically from seed queries alone, so
// it never fails and always has something to contribute when KWP/GSC
// are unavailable or quota-exhausted.
type EstimatedConnector struct{}

// NewEstimatedConnector returns the heuristic fallback connector.
func NewEstimatedConnector() *EstimatedConnector {
	return &EstimatedConnector{}
}

func (c *EstimatedConnector) Name() string             { return "estimated" }
func (c *EstimatedConnector) Source() model.DataSource { return model.SourceEstimated }

// Fetch never errors: it produces one heuristic record per seed, with
// volume and competition derived from the seed's length and word count
// so results are stable and at least directionally plausible.
func (c *EstimatedConnector) Fetch(_ context.Context, market string, seeds []string) ([]model.KeywordRecord, error) {
	records := make([]model.KeywordRecord, 0, len(seeds))
	for _, seed := range seeds {
		seed = strings.ToLower(strings.TrimSpace(seed))
		if seed == "" {
			continue
		}
		vol := estimateVolume(seed)
		comp := estimateCompetition(seed)
		records = append(records, model.KeywordRecord{
			Keyword:       seed,
			DataSource:    model.SourceEstimated,
			Markets:       []string{market},
			PrimaryMarket: market,
			Volume:        &vol,
			Competition:   &comp,
		})
	}
	return records, nil
}

// estimateVolume is a crude heuristic: shorter, broader phrases are
// assumed higher volume than long, specific ones.
func estimateVolume(seed string) int64 {
	words := len(strings.Fields(seed))
	base := int64(5000)
	for i := 1; i < words; i++ {
		base /= 2
	}
	if base < 10 {
		base = 10
	}
	return base
}

// estimateCompetition assumes broader (fewer-word) phrases are more
// contested.
func estimateCompetition(seed string) float64 {
	words := len(strings.Fields(seed))
	switch {
	case words <= 1:
		return 0.8
	case words == 2:
		return 0.5
	case words == 3:
		return 0.3
	default:
		return 0.15
	}
}
