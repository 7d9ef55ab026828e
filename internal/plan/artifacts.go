package plan

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// ArtifactNames are the fixed filenames written under
// plans/<product>/<YYYY-MM-DD>/.
const (
	FileKeywords          = "keywords.csv"
	FileAds               = "ads.json"
	FileSEOPages          = "seo_pages.md"
	FileCompetitors       = "competitors.md"
	FileNegatives         = "negatives.txt"
	FileGoogleAdsScript   = "google-ads-script.js"
	FileSummary           = "summary.json"
	FileDiff              = "diff.json"
	FileClaimsValidation  = "claims-validation.json"
)

// Emit writes every plan artifact into dir, atomically (temp file plus
// rename) so a reader never observes a partially-written file. previous
// is the prior run's plan for the same product, if any; when nil,
// diff.json is omitted's "optional" diff artifact.
func Emit(dir string, p *Plan, previous *Plan, claims ClaimsValidationReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("plan: create output dir: %w", err)
	}

	writers := []func() (string, []byte, error){
		func() (string, []byte, error) { b, err := renderKeywordsCSV(p.Keywords); return FileKeywords, b, err },
		func() (string, []byte, error) { b, err := renderAdsJSON(p.Clusters); return FileAds, b, err },
		func() (string, []byte, error) { return FileSEOPages, renderSEOPages(p.Clusters), nil },
		func() (string, []byte, error) { return FileCompetitors, renderCompetitors(p.Competitors), nil },
		func() (string, []byte, error) { return FileNegatives, renderNegatives(p.Keywords), nil },
		func() (string, []byte, error) { return FileGoogleAdsScript, renderGoogleAdsScript(p.Summary.Product, p.Clusters), nil },
		func() (string, []byte, error) { b, err := renderSummaryJSON(p.Summary); return FileSummary, b, err },
		func() (string, []byte, error) { b, err := renderClaimsValidationJSON(claims); return FileClaimsValidation, b, err },
	}

	for _, w := range writers {
		name, contents, err := w()
		if err != nil {
			return fmt.Errorf("plan: render %s: %w", name, err)
		}
		if err := writeAtomic(filepath.Join(dir, name), contents); err != nil {
			return fmt.Errorf("plan: write %s: %w", name, err)
		}
	}

	if previous != nil {
		diff := BuildDiff(previous, p)
		b, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return fmt.Errorf("plan: render %s: %w", FileDiff, err)
		}
		if err := writeAtomic(filepath.Join(dir, FileDiff), b); err != nil {
			return fmt.Errorf("plan: write %s: %w", FileDiff, err)
		}
	}

	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so concurrent readers never see a truncated
// file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func renderKeywordsCSV(records []model.KeywordRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"keyword", "data_source", "primary_market", "volume", "cpc", "competition", "final_score", "recommended_match_type", "cluster"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.Keyword,
			string(r.DataSource),
			r.PrimaryMarket,
			formatInt64Ptr(r.Volume),
			formatMoneyPtr(r.CPC),
			formatRatePtr(r.Competition),
			strconv.FormatFloat(r.FinalScore, 'f', 3, 64),
			string(r.RecommendedMatchType),
			r.Cluster,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatMoneyPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(round2(*v), 'f', 2, 64)
}

func formatRatePtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(round4(*v), 'f', 4, 64)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// adGroupDoc is the JSON shape of ads.json: one ad group per cluster.
type adGroupDoc struct {
	Clusters []adGroupCluster `json:"clusters"`
}

type adGroupCluster struct {
	Name        string   `json:"name"`
	UseCase     string   `json:"use_case"`
	LandingPage string   `json:"landing_page,omitempty"`
	TotalVolume int64    `json:"total_volume"`
	Keywords    []string `json:"keywords"`
	MatchTypes  []string `json:"match_types"`
}

func renderAdsJSON(clusters []model.Cluster) ([]byte, error) {
	doc := adGroupDoc{}
	for _, c := range clusters {
		entry := adGroupCluster{
			Name:        c.Name,
			UseCase:     c.UseCase,
			LandingPage: c.LandingPage,
			TotalVolume: c.TotalVolume,
		}
		for _, kw := range c.Keywords {
			entry.Keywords = append(entry.Keywords, kw.Keyword)
			entry.MatchTypes = append(entry.MatchTypes, string(kw.RecommendedMatchType))
		}
		doc.Clusters = append(doc.Clusters, entry)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func renderSEOPages(clusters []model.Cluster) []byte {
	var b strings.Builder
	b.WriteString("# Landing Page Briefs\n\n")
	for _, c := range clusters {
		fmt.Fprintf(&b, "## %s\n\n", c.Name)
		fmt.Fprintf(&b, "- Use case: %s\n", c.UseCase)
		if c.LandingPage != "" {
			fmt.Fprintf(&b, "- Target page: %s\n", c.LandingPage)
		}
		fmt.Fprintf(&b, "- Total monthly volume: %d\n\n", c.TotalVolume)
		b.WriteString("Primary keywords:\n\n")
		for _, kw := range c.PrimaryKeywords {
			fmt.Fprintf(&b, "- %s (score %.3f)\n", kw.Keyword, kw.FinalScore)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderCompetitors(summaries []CompetitorSummary) []byte {
	var b strings.Builder
	b.WriteString("# Competitor Map\n\n")
	if len(summaries) == 0 {
		b.WriteString("No competitor data collected for this run.\n")
		return []byte(b.String())
	}
	for _, s := range summaries {
		fmt.Fprintf(&b, "## %s\n\n", s.Domain)
		fmt.Fprintf(&b, "- Appearances: %d\n", s.Appearances)
		fmt.Fprintf(&b, "- Best position: %d\n", s.BestPosition)
		if len(s.SampleKeywords) > 0 {
			fmt.Fprintf(&b, "- Sample keywords: %s\n", strings.Join(s.SampleKeywords, ", "))
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderNegatives(records []model.KeywordRecord) []byte {
	seen := map[string]struct{}{}
	var lines []string
	for _, r := range records {
		if r.FinalScore < 0.05 {
			if _, ok := seen[r.Keyword]; !ok {
				seen[r.Keyword] = struct{}{}
				lines = append(lines, r.Keyword)
			}
		}
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n") + "\n")
}

func renderGoogleAdsScript(product string, clusters []model.Cluster) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "// Generated Google Ads script for %s\n", product)
	b.WriteString("function main() {\n")
	for _, c := range clusters {
		fmt.Fprintf(&b, "  Logger.log(%q); // %d keywords, volume %d\n", c.Name, len(c.Keywords), c.TotalVolume)
	}
	b.WriteString("}\n")
	return []byte(b.String())
}

func renderSummaryJSON(summary model.PlanSummary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

// ClaimsValidationReport is the supplemented artifact recording the
// evidence behind the guardrail system's claims-freshness rule: per
// campaign, whether a validation record exists and how old it is.
type ClaimsValidationReport struct {
	GeneratedAt string                  `json:"generated_at"`
	Campaigns   []ClaimsValidationEntry `json:"campaigns"`
}

// ClaimsValidationEntry is one campaign's freshness evidence.
type ClaimsValidationEntry struct {
	Campaign    string `json:"campaign"`
	ValidatedAt string `json:"validated_at,omitempty"`
	AgeDays     int    `json:"age_days,omitempty"`
	Fresh       bool   `json:"fresh"`
	Reason      string `json:"reason,omitempty"`
}

func renderClaimsValidationJSON(report ClaimsValidationReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}
