package plan

import (
	"sort"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// Diff is the supplemented diff.json artifact: a structural comparison
// between consecutive runs of the same product, keyed by
// (keyword, primary_market) per the KeywordRecord uniqueness invariant.
type Diff struct {
	Added    []model.KeywordRecord `json:"added"`
	Removed  []model.KeywordRecord `json:"removed"`
	Rescored []RescoredKeyword     `json:"rescored"`
}

// RescoredKeyword reports a keyword whose final_score moved between
// runs.
type RescoredKeyword struct {
	Keyword       string  `json:"keyword"`
	PrimaryMarket string  `json:"primary_market"`
	PreviousScore float64 `json:"previous_score"`
	CurrentScore  float64 `json:"current_score"`
}

// BuildDiff compares previous against current and returns the
// structural diff, sorted for determinism.
func BuildDiff(previous, current *Plan) Diff {
	prevByKey := make(map[model.Key]model.KeywordRecord, len(previous.Keywords))
	for _, r := range previous.Keywords {
		prevByKey[r.KeyOf()] = r
	}
	currByKey := make(map[model.Key]model.KeywordRecord, len(current.Keywords))
	for _, r := range current.Keywords {
		currByKey[r.KeyOf()] = r
	}

	var diff Diff
	for key, curr := range currByKey {
		prev, existed := prevByKey[key]
		if !existed {
			diff.Added = append(diff.Added, curr)
			continue
		}
		if prev.FinalScore != curr.FinalScore {
			diff.Rescored = append(diff.Rescored, RescoredKeyword{
				Keyword:       key.Keyword,
				PrimaryMarket: key.PrimaryMarket,
				PreviousScore: prev.FinalScore,
				CurrentScore:  curr.FinalScore,
			})
		}
	}
	for key, prev := range prevByKey {
		if _, stillPresent := currByKey[key]; !stillPresent {
			diff.Removed = append(diff.Removed, prev)
		}
	}

	sort.Slice(diff.Added, func(i, j int) bool { return keywordLess(diff.Added[i], diff.Added[j]) })
	sort.Slice(diff.Removed, func(i, j int) bool { return keywordLess(diff.Removed[i], diff.Removed[j]) })
	sort.Slice(diff.Rescored, func(i, j int) bool {
		if diff.Rescored[i].Keyword != diff.Rescored[j].Keyword {
			return diff.Rescored[i].Keyword < diff.Rescored[j].Keyword
		}
		return diff.Rescored[i].PrimaryMarket < diff.Rescored[j].PrimaryMarket
	})
	return diff
}

func keywordLess(a, b model.KeywordRecord) bool {
	if a.Keyword != b.Keyword {
		return a.Keyword < b.Keyword
	}
	return a.PrimaryMarket < b.PrimaryMarket
}
