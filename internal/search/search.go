// Package search matches and ranks drug records against a free-text query.
//
// Matching is a substring test over several fields. Latin-script fields
// (reference name, reference brands, classes) compare case-insensitively;
// local-language fields (local name, local brands) compare exactly.
package search

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pharmref-mcp-server/internal/domain"
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether the drug matches the query. A blank query matches
// every drug.
func Matches(drug *domain.Drug, query string) bool {
	q := normalize(query)
	if q == "" {
		return true
	}
	raw := strings.TrimSpace(query)

	if strings.Contains(normalize(drug.NameEN), q) {
		return true
	}
	if strings.Contains(drug.NameLocal, raw) {
		return true
	}
	if anyContains(drug.BrandNamesLocal, raw, false) {
		return true
	}
	if anyContains(drug.BrandNamesEN, q, true) {
		return true
	}
	if strings.Contains(normalize(drug.DrugClass), q) {
		return true
	}
	return drug.DrugClassEN != "" && strings.Contains(normalize(drug.DrugClassEN), q)
}

func anyContains(values []string, needle string, fold bool) bool {
	for _, v := range values {
		if fold {
			v = normalize(v)
		}
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

// Filter returns the drugs matching the query, keeping input order.
func Filter(drugs []domain.Drug, query string) []domain.Drug {
	if normalize(query) == "" {
		return drugs
	}
	out := make([]domain.Drug, 0, len(drugs))
	for i := range drugs {
		if Matches(&drugs[i], query) {
			out = append(out, drugs[i])
		}
	}
	return out
}

// SortByRelevance returns a sorted copy of drugs. Ties after the name and
// brand checks fall back to Korean collation of the local name.
func SortByRelevance(drugs []domain.Drug, query string) []domain.Drug {
	out := append([]domain.Drug(nil), drugs...)
	q := normalize(query)
	if q == "" {
		return out
	}
	raw := strings.TrimSpace(query)

	// Collators keep internal buffers, so each sort gets its own.
	col := collate.New(language.Korean)

	keys := func(d *domain.Drug) [6]bool {
		en := normalize(d.NameEN)
		return [6]bool{
			en == q,
			d.NameLocal == raw,
			strings.HasPrefix(en, q),
			strings.HasPrefix(d.NameLocal, raw),
			anyContains(d.BrandNamesEN, q, true),
			anyContains(d.BrandNamesLocal, raw, false),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := keys(&out[i]), keys(&out[j])
		for n := range ki {
			if ki[n] != kj[n] {
				return ki[n]
			}
		}
		return col.CompareString(out[i].NameLocal, out[j].NameLocal) < 0
	})
	return out
}

// Search filters and ranks drugs, truncating to limit when limit > 0.
// A blank query returns nil.
func Search(drugs []domain.Drug, query string, limit int) []domain.Drug {
	if normalize(query) == "" {
		return nil
	}
	ranked := SortByRelevance(Filter(drugs, query), query)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Segment is a piece of text, flagged when it matched the query.
type Segment struct {
	Text    string `json:"text"`
	Matched bool   `json:"matched"`
}

// Highlight splits text around the first case-insensitive occurrence of
// query.
func Highlight(text, query string) []Segment {
	if strings.TrimSpace(query) == "" {
		return []Segment{{Text: text}}
	}

	tr, qr := []rune(text), []rune(query)
	start := -1
	for i := 0; i+len(qr) <= len(tr); i++ {
		if strings.EqualFold(string(tr[i:i+len(qr)]), query) {
			start = i
			break
		}
	}
	if start < 0 {
		return []Segment{{Text: text}}
	}

	end := start + len(qr)
	var segments []Segment
	if start > 0 {
		segments = append(segments, Segment{Text: string(tr[:start])})
	}
	segments = append(segments, Segment{Text: string(tr[start:end]), Matched: true})
	if end < len(tr) {
		segments = append(segments, Segment{Text: string(tr[end:])})
	}
	return segments
}
