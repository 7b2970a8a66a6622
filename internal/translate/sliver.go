package translate

import "go.uber.org/zap"

// Factor is one directional correspondence entry: the share of Src's
// extent that falls in Dst.
type Factor struct {
	Src string
	Dst string
	Val float64
}

// thresholdEps keeps factors sitting exactly on the sliver boundary:
// 1-tolerance is not exact in binary for common tolerances like 0.98.
const thresholdEps = 1e-9

// filterSlivers drops, per source zone, factors below 1-tolerance. These
// are boundary-misalignment artifacts, not genuine shared area. Survivors
// are rescaled so each source zone's factors again sum to one. A source
// zone whose factors are all below the threshold keeps its single largest
// factor instead of vanishing from the table. A factor at the threshold
// survives.
func filterSlivers(factors []Factor, tolerance float64) []Factor {
	threshold := 1 - tolerance - thresholdEps
	groups, order := groupBySrc(factors)

	var out []Factor
	var dropped, fallbacks int
	for _, src := range order {
		g := groups[src]
		var kept []Factor
		for _, f := range g {
			if f.Val >= threshold {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			// All overlaps for this source are slivers; keep the best one
			// so the zone still translates somewhere.
			best := g[0]
			for _, f := range g[1:] {
				if f.Val > best.Val {
					best = f
				}
			}
			kept = []Factor{best}
			fallbacks++
		}
		dropped += len(g) - len(kept)

		var sum float64
		for _, f := range kept {
			sum += f.Val
		}
		for _, f := range kept {
			if sum > 0 {
				f.Val /= sum
			}
			out = append(out, f)
		}
	}
	if dropped > 0 || fallbacks > 0 {
		zap.L().Info("sliver factors removed",
			zap.Int("dropped", dropped),
			zap.Int("fallback_zones", fallbacks),
			zap.Float64("threshold", threshold),
		)
	}
	return out
}

// groupBySrc buckets factors by source zone, preserving first-seen order.
func groupBySrc(factors []Factor) (map[string][]Factor, []string) {
	groups := make(map[string][]Factor)
	var order []string
	for _, f := range factors {
		if _, ok := groups[f.Src]; !ok {
			order = append(order, f.Src)
		}
		groups[f.Src] = append(groups[f.Src], f)
	}
	return groups, order
}
