// Package model holds the data types shared across the marketing-intelligence
// core. Keyword/Cluster/PlanSummary are derived per run and
// are immutable once emitted; Experiment and ApprovalRequest mutate only
// through the explicit operations their owning packages expose.
package model

// DataSource identifies the provenance of a KeywordRecord, used by the
// precedence merger (C3) and the scoring engine's source penalty term.
type DataSource string

const (
	SourceKWP       DataSource = "KWP"
	SourceGSC       DataSource = "GSC"
	SourceEstimated DataSource = "ESTIMATED"
)

// Precedence returns the merge precedence rank for a source: lower is
// higher priority. KWP > GSC > ESTIMATED.
func (d DataSource) Precedence() int {
	switch d {
	case SourceKWP:
		return 0
	case SourceGSC:
		return 1
	case SourceEstimated:
		return 2
	default:
		return 3
	}
}

// MatchType is the recommended ad-platform match type for a keyword.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPhrase MatchType = "phrase"
	MatchBroad  MatchType = "broad"
)

// KeywordRecord is a single scored keyword, normalized to lowercase NFC.
type KeywordRecord struct {
	Keyword              string            `json:"keyword"`
	DataSource           DataSource        `json:"data_source"`
	Markets              []string          `json:"markets"`
	PrimaryMarket        string            `json:"primary_market"`
	Volume               *int64            `json:"volume,omitempty"`
	CPC                  *float64          `json:"cpc,omitempty"`
	Competition          *float64          `json:"competition,omitempty"`
	IntentScore          float64           `json:"intent_score"`
	FinalScore           float64           `json:"final_score"`
	RecommendedMatchType MatchType         `json:"recommended_match_type"`
	SERPFeatures         []string          `json:"serp_features"`
	Cluster              string            `json:"cluster,omitempty"`
}

// Key identifies a KeywordRecord for uniqueness/merge purposes: the
// invariant "across a merged set, (keyword, primary_market) is unique."
type Key struct {
	Keyword       string
	PrimaryMarket string
}

// KeyOf returns the uniqueness key of a record.
func (k KeywordRecord) KeyOf() Key {
	return Key{Keyword: k.Keyword, PrimaryMarket: k.PrimaryMarket}
}

// WordCount returns the number of whitespace-separated tokens in the
// keyword. The scoring engine does not use it; its long-tail and intent
// terms count significant words (stop words excluded) on their own.
func (k KeywordRecord) WordCount() int {
	n := 0
	inWord := false
	for _, r := range k.Keyword {
		if r == ' ' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// HasSERPFeature reports whether the record carries the named SERP feature.
func (k KeywordRecord) HasSERPFeature(name string) bool {
	for _, f := range k.SERPFeatures {
		if f == name {
			return true
		}
	}
	return false
}
