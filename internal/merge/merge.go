// Package merge implements C3: the precedence merger that combines
// per-source keyword lists into one deduplicated list
// §4.2.
package merge

import (
	"sort"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// DuplicateDiagnostic records one resolved duplicate: the winning source
// and which lower-precedence sources backfilled absent fields.
type DuplicateDiagnostic struct {
	Keyword       string   `json:"keyword"`
	PrimaryMarket string   `json:"primary_market"`
	WinningSource string   `json:"winning_source"`
	FilledFrom    []string `json:"filled_from,omitempty"`
}

// Result is the merger's output: the merged list plus diagnostics.
type Result struct {
	Records            []model.KeywordRecord
	SourceCounts       map[model.DataSource]int
	DuplicatesResolved int
	Diagnostics        []DuplicateDiagnostic
}

// Merge combines lists (one per connector, any order) into a single
// deduplicated list keyed by (keyword, primary_market), applying KWP >
// GSC > ESTIMATED precedence. The winning record's absent quantitative
// fields (volume, cpc, competition, serp_features) are backfilled from
// lower-precedence duplicates.
func Merge(lists ...[]model.KeywordRecord) Result {
	sourceCounts := make(map[model.DataSource]int)
	byKey := make(map[model.Key]*model.KeywordRecord)
	order := make([]model.Key, 0)
	diagByKey := make(map[model.Key]*DuplicateDiagnostic)

	for _, list := range lists {
		for _, rec := range list {
			rec := rec
			sourceCounts[rec.DataSource]++
			key := rec.KeyOf()

			existing, ok := byKey[key]
			if !ok {
				byKey[key] = &rec
				order = append(order, key)
				continue
			}

			diag := diagByKey[key]
			if diag == nil {
				diag = &DuplicateDiagnostic{Keyword: key.Keyword, PrimaryMarket: key.PrimaryMarket}
				diagByKey[key] = diag
			}

			winner := existing
			loser := &rec
			if rec.DataSource.Precedence() < existing.DataSource.Precedence() {
				winner, loser = &rec, existing
			}

			filled := backfill(winner, loser)
			if filled {
				diag.FilledFrom = append(diag.FilledFrom, string(loser.DataSource))
			}
			diag.WinningSource = string(winner.DataSource)
			byKey[key] = winner
		}
	}

	records := make([]model.KeywordRecord, 0, len(order))
	var diagnostics []DuplicateDiagnostic
	for _, key := range order {
		records = append(records, *byKey[key])
		if diag, ok := diagByKey[key]; ok {
			diagnostics = append(diagnostics, *diag)
		}
	}

	sort.Slice(diagnostics, func(i, j int) bool {
		if diagnostics[i].Keyword != diagnostics[j].Keyword {
			return diagnostics[i].Keyword < diagnostics[j].Keyword
		}
		return diagnostics[i].PrimaryMarket < diagnostics[j].PrimaryMarket
	})

	return Result{
		Records:            records,
		SourceCounts:       sourceCounts,
		DuplicatesResolved: len(diagnostics),
		Diagnostics:        diagnostics,
	}
}

// backfill copies absent quantitative fields on winner from loser,
// returning true if anything was filled.
func backfill(winner, loser *model.KeywordRecord) bool {
	filled := false
	if winner.Volume == nil && loser.Volume != nil {
		v := *loser.Volume
		winner.Volume = &v
		filled = true
	}
	if winner.CPC == nil && loser.CPC != nil {
		v := *loser.CPC
		winner.CPC = &v
		filled = true
	}
	if winner.Competition == nil && loser.Competition != nil {
		v := *loser.Competition
		winner.Competition = &v
		filled = true
	}
	if len(winner.SERPFeatures) == 0 && len(loser.SERPFeatures) > 0 {
		winner.SERPFeatures = append([]string(nil), loser.SERPFeatures...)
		filled = true
	}
	markets := make(map[string]bool, len(winner.Markets))
	for _, m := range winner.Markets {
		markets[m] = true
	}
	for _, m := range loser.Markets {
		if !markets[m] {
			winner.Markets = append(winner.Markets, m)
			markets[m] = true
			filled = true
		}
	}
	return filled
}
