// Package clustering implements C5: assigning each scored keyword to
// exactly one use-case cluster and, where possible, a landing page.
package clustering

import (
	"sort"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/model"
)

const miscClusterName = "misc"

// defaultMinClusterSize is used when the product config does not
// specify one.
const defaultMinClusterSize = 2

// Engine assigns keywords to clusters and landing pages using the
// product's use-case vocabulary and target pages.
type Engine struct {
	product        config.ProductConfig
	minClusterSize int
}

// New returns a clustering Engine configured from product.
func New(product config.ProductConfig) *Engine {
	size := product.MinClusterSize
	if size <= 0 {
		size = defaultMinClusterSize
	}
	return &Engine{product: product, minClusterSize: size}
}

// Cluster groups records into named use-case clusters, absorbs
// under-sized clusters into their nearest neighbor (by shared keyword
// prefix) or into the residual "misc" cluster, and assigns a landing
// page to each. Output is deterministic: clusters are sorted by name,
// with the residual "misc" cluster (if any) last, and each cluster's keywords are sorted by score desc then keyword asc
// (callers are expected to pass already-scored, already-sorted records
// through unchanged, but Cluster re-sorts defensively).
func (e *Engine) Cluster(records []model.KeywordRecord) []model.Cluster {
	buckets := make(map[string][]model.KeywordRecord)
	for _, rec := range records {
		useCase := e.useCaseFor(rec.Keyword)
		buckets[useCase] = append(buckets[useCase], rec)
	}

	names := sortedKeys(buckets)
	misc := buckets[miscClusterName]
	delete(buckets, miscClusterName)
	names = removeName(names, miscClusterName)

	for _, name := range names {
		if len(buckets[name]) >= e.minClusterSize {
			continue
		}
		target := nearestNeighbor(name, names, buckets, e.minClusterSize)
		if target != "" {
			buckets[target] = append(buckets[target], buckets[name]...)
		} else {
			misc = append(misc, buckets[name]...)
		}
		delete(buckets, name)
	}

	finalNames := sortedKeys(buckets)
	clusters := make([]model.Cluster, 0, len(finalNames)+1)
	for _, name := range finalNames {
		clusters = append(clusters, e.buildCluster(name, buckets[name]))
	}
	if len(misc) > 0 {
		clusters = append(clusters, e.buildCluster(miscClusterName, misc))
	}
	return clusters
}

func (e *Engine) buildCluster(name string, records []model.KeywordRecord) model.Cluster {
	sorted := append([]model.KeywordRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FinalScore != sorted[j].FinalScore {
			return sorted[i].FinalScore > sorted[j].FinalScore
		}
		return sorted[i].Keyword < sorted[j].Keyword
	})

	var total int64
	for _, rec := range sorted {
		if rec.Volume != nil {
			total += *rec.Volume
		}
	}

	primary := sorted
	if len(primary) > 5 {
		primary = primary[:5]
	}

	return model.Cluster{
		Name:            name,
		UseCase:         name,
		PrimaryKeywords: append([]model.KeywordRecord(nil), primary...),
		Keywords:        sorted,
		TotalVolume:     total,
		LandingPage:     e.landingPageFor(name, sorted),
	}
}

// useCaseFor derives a use-case token from configured target pages'
// UseCase hints, falling back to the keyword's first significant token.
func (e *Engine) useCaseFor(keyword string) string {
	lower := strings.ToLower(keyword)
	for _, tp := range e.product.TargetPages {
		if tp.UseCase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(tp.UseCase)) {
			return tp.UseCase
		}
	}
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return miscClusterName
	}
	return fields[0]
}

// nearestNeighbor finds another cluster name sharing the longest
// literal prefix with name, excluding clusters that are themselves
// below minSize. Returns "" if none qualifies.
func nearestNeighbor(name string, candidates []string, buckets map[string][]model.KeywordRecord, minSize int) string {
	best := ""
	bestLen := -1
	for _, c := range candidates {
		if c == name || len(buckets[c]) < minSize {
			continue
		}
		l := commonPrefixLen(name, c)
		if l > bestLen {
			bestLen = l
			best = c
		}
	}
	return best
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// landingPageFor assigns a target page URL via exact use-case match
// first, then longest-prefix match against configured target pages.
func (e *Engine) landingPageFor(useCase string, records []model.KeywordRecord) string {
	lowerUseCase := strings.ToLower(useCase)
	for _, tp := range e.product.TargetPages {
		if strings.ToLower(tp.UseCase) == lowerUseCase {
			return tp.URL
		}
	}

	best := ""
	bestLen := -1
	for _, tp := range e.product.TargetPages {
		l := commonPrefixLen(lowerUseCase, strings.ToLower(tp.UseCase))
		if l > bestLen {
			bestLen = l
			best = tp.URL
		}
	}
	if bestLen > 0 {
		return best
	}

	if len(records) > 0 {
		for _, tp := range e.product.TargetPages {
			if strings.Contains(strings.ToLower(records[0].Keyword), strings.ToLower(tp.UseCase)) {
				return tp.URL
			}
		}
	}
	return ""
}

func sortedKeys(m map[string][]model.KeywordRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func removeName(names []string, target string) []string {
	out := names[:0]
	for _, n := range names {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}
