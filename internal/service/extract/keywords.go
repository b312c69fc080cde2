package extract

import (
	"context"
	"sort"
)

// keywords ranks content tokens by frequency, breaking ties by first
// occurrence.
func keywords(ctx context.Context, text string, limit int) ([]string, error) {
	tokens := contentTokens(text)

	counts := make(map[string]int, len(tokens))
	first := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, seen := first[t]; !seen {
			first[t] = i
		}
		counts[t]++
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := make([]string, 0, len(counts))
	for t := range counts {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return first[a] < first[b]
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
