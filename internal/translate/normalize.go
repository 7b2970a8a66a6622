package translate

// normalize rescales factors so each source zone's factors sum to exactly
// one, removing the drift left by geometric noise or weighted aggregation.
// Source zones whose factors sum to zero cannot be normalized; their rows
// are removed and their ids returned so they reach the missing-zone
// report.
func normalize(factors []Factor) (out []Factor, zeroSum []string) {
	groups, order := groupBySrc(factors)
	for _, src := range order {
		g := groups[src]
		var sum float64
		for _, f := range g {
			sum += f.Val
		}
		if sum <= 0 {
			zeroSum = append(zeroSum, src)
			continue
		}
		for _, f := range g {
			f.Val /= sum
			out = append(out, f)
		}
	}
	return out, zeroSum
}
