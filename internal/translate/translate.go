package translate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/zoning"
)

// Options control the correspondence pipeline. The zero value is not
// useful; construct from config defaults.
type Options struct {
	Rounding        bool    // normalize each source zone's factors to sum to 1
	FilterSlivers   bool    // drop sub-tolerance overlap artifacts
	SliverTolerance float64 // e.g. 0.98 drops factors below 0.02
	PointHandling   bool    // resolve point and sub-tolerance zones by containment
	PointTolerance  float64 // area below which a polygon zone is treated as a point
	Workers         int     // overlay parallelism; <=0 means GOMAXPROCS
}

// ConfigHash returns a stable digest of the options that affect factor
// values, for use in cache keys.
func (o Options) ConfigHash() string {
	s := fmt.Sprintf("rounding=%t|slivers=%t|tol=%s|points=%t|ptol=%s",
		o.Rounding, o.FilterSlivers, formatFloat(o.SliverTolerance),
		o.PointHandling, formatFloat(o.PointTolerance))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

// pointConfigHash digests only the options that change which zones enter
// an overlay, so zone-to-lower overlays stay reusable across sliver and
// rounding changes.
func (o Options) pointConfigHash() string {
	s := fmt.Sprintf("points=%t|ptol=%s", o.PointHandling, formatFloat(o.PointTolerance))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

func formatFloat(f float64) string { return fmt.Sprintf("%g", f) }

// CacheInfo carries the metadata a cache stores alongside a factor table.
type CacheInfo struct {
	Zone1      string
	Zone2      string
	Method     string
	ConfigHash string
}

// Cache memoises overlays and factor tables across runs. Implementations
// must be safe for concurrent use. A nil Cache disables reuse; every run
// recomputes.
type Cache interface {
	// Overlay returns the tiles stored under key, computing and storing
	// them on a miss. The bool reports a hit.
	Overlay(ctx context.Context, key string, compute func(context.Context) ([]model.Tile, error)) ([]model.Tile, bool, error)
	// Factors returns the factor table stored under key, computing and
	// storing it on a miss. The bool reports a hit.
	Factors(ctx context.Context, key string, info CacheInfo, compute func(context.Context) ([]model.PairFactor, error)) ([]model.PairFactor, bool, error)
}

// Translator runs zone correspondence computations.
type Translator struct {
	opts  Options
	cache Cache
	log   *zap.Logger
}

// New builds a Translator. cache may be nil.
func New(opts Options, cache Cache) *Translator {
	return &Translator{
		opts:  opts,
		cache: cache,
		log:   zap.L().With(zap.String("component", "translate")),
	}
}

// Spatial computes a pure area-based correspondence between two zone
// systems: each factor is the share of the source zone's area lying in
// the target zone.
func (t *Translator) Spatial(ctx context.Context, zs1, zs2 *zoning.ZoneSystem) (*model.Result, error) {
	fp1, err := zoning.Fingerprint(zs1)
	if err != nil {
		return nil, err
	}
	fp2, err := zoning.Fingerprint(zs2)
	if err != nil {
		return nil, err
	}

	key := digest("factors", fp1, fp2, string(model.ModeSpatial), t.opts.ConfigHash())
	info := CacheInfo{Zone1: zs1.Name, Zone2: zs2.Name, Method: string(model.ModeSpatial), ConfigHash: t.opts.ConfigHash()}
	pairs, hit, err := t.cachedFactors(ctx, key, info, func(ctx context.Context) ([]model.PairFactor, error) {
		return t.computeSpatial(ctx, zs1, zs2)
	})
	if err != nil {
		return nil, err
	}

	res := &model.Result{
		Zone1Name: zs1.Name,
		Zone2Name: zs2.Name,
		Mode:      model.ModeSpatial,
		Pairs:     pairs,
		Missing:   detectMissing(zs1.IDs(), zs2.IDs(), pairs),
		CacheHit:  hit,
	}
	t.finishLog(res)
	return res, nil
}

// Weighted computes a correspondence weighted by an attribute carried on
// a lower zoning layer. Each factor is the share of the source zone's
// attribute mass (population, employment, ...) lying in the target zone.
func (t *Translator) Weighted(ctx context.Context, zs1, zs2 *zoning.ZoneSystem, lower *zoning.LowerZoneSystem, method string) (*model.Result, error) {
	if method == "" {
		return nil, eris.New("translate: weighting method name is required")
	}
	fp1, err := zoning.Fingerprint(zs1)
	if err != nil {
		return nil, err
	}
	fp2, err := zoning.Fingerprint(zs2)
	if err != nil {
		return nil, err
	}
	fpl, err := zoning.Fingerprint(&lower.ZoneSystem)
	if err != nil {
		return nil, err
	}
	fpw := zoning.WeightsFingerprint(lower)

	key := digest("factors", fp1, fp2, fpl, fpw, method, t.opts.ConfigHash())
	info := CacheInfo{Zone1: zs1.Name, Zone2: zs2.Name, Method: method, ConfigHash: t.opts.ConfigHash()}
	pairs, hit, err := t.cachedFactors(ctx, key, info, func(ctx context.Context) ([]model.PairFactor, error) {
		return t.computeWeighted(ctx, zs1, zs2, lower, fp1, fp2, fpl)
	})
	if err != nil {
		return nil, err
	}

	res := &model.Result{
		Zone1Name: zs1.Name,
		Zone2Name: zs2.Name,
		Mode:      model.ModeWeighted,
		Method:    method,
		Pairs:     pairs,
		Missing:   detectMissing(zs1.IDs(), zs2.IDs(), pairs),
		CacheHit:  hit,
	}
	t.finishLog(res)
	return res, nil
}

// computeSpatial runs the full spatial pipeline: overlay, raw factors per
// direction, sliver filtering, normalization and point merging.
func (t *Translator) computeSpatial(ctx context.Context, zs1, zs2 *zoning.ZoneSystem) ([]model.PairFactor, error) {
	area1, pts1 := splitPointZones(zs1.Zones, t.opts.PointHandling, t.opts.PointTolerance)
	area2, pts2 := splitPointZones(zs2.Zones, t.opts.PointHandling, t.opts.PointTolerance)

	tiles, _, _, err := Overlay(ctx, area1, area2, t.opts.Workers)
	if err != nil {
		return nil, eris.Wrap(err, "translate: spatial overlay")
	}

	fwd := directionalFactors(tiles, forward, areaDenominator(zs1))
	rev := directionalFactors(tiles, reverse, areaDenominator(zs2))
	fwd, rev = t.refine(fwd, rev)
	fwd, rev = mergePointFactors(fwd, rev, pts1, pts2, area1, area2)

	return assemblePairs(fwd, rev)
}

// computeWeighted runs the weighted pipeline. Both zone-to-lower overlays
// are independently cacheable since they depend only on geometry, not on
// weights or filter settings.
func (t *Translator) computeWeighted(ctx context.Context, zs1, zs2 *zoning.ZoneSystem, lower *zoning.LowerZoneSystem, fp1, fp2, fpl string) ([]model.PairFactor, error) {
	area1, pts1 := splitPointZones(zs1.Zones, t.opts.PointHandling, t.opts.PointTolerance)
	area2, pts2 := splitPointZones(zs2.Zones, t.opts.PointHandling, t.opts.PointTolerance)

	ov1, _, err := t.cachedOverlay(ctx, digest("overlay", fp1, fpl, t.opts.pointConfigHash()), func(ctx context.Context) ([]model.Tile, error) {
		tiles, _, err := overlayLower(ctx, area1, lower, t.opts.Workers)
		return tiles, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "translate: %s to lower overlay", zs1.Name)
	}
	ov2, _, err := t.cachedOverlay(ctx, digest("overlay", fp2, fpl, t.opts.pointConfigHash()), func(ctx context.Context) ([]model.Tile, error) {
		tiles, _, err := overlayLower(ctx, area2, lower, t.opts.Workers)
		return tiles, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "translate: %s to lower overlay", zs2.Name)
	}

	tiles := aggregateMass(ov1, ov2, lower)

	fwd := directionalFactors(tiles, forward, massDenominator(tiles, forward))
	rev := directionalFactors(tiles, reverse, massDenominator(tiles, reverse))
	fwd, rev = t.refine(fwd, rev)
	fwd, rev = mergePointFactors(fwd, rev, pts1, pts2, area1, area2)

	return assemblePairs(fwd, rev)
}

// refine applies sliver filtering and normalization to both directions
// independently, per the configured options.
func (t *Translator) refine(fwd, rev []Factor) ([]Factor, []Factor) {
	if t.opts.FilterSlivers {
		fwd = filterSlivers(fwd, t.opts.SliverTolerance)
		rev = filterSlivers(rev, t.opts.SliverTolerance)
	}
	if t.opts.Rounding {
		var zero1, zero2 []string
		fwd, zero1 = normalize(fwd)
		rev, zero2 = normalize(rev)
		if len(zero1) > 0 || len(zero2) > 0 {
			t.log.Warn("source zones with zero factor sum removed",
				zap.Strings("zone1", zero1), zap.Strings("zone2", zero2))
		}
	}
	return fwd, rev
}

type direction int

const (
	forward direction = iota // zone 1 as source
	reverse                  // zone 2 as source
)

// directionalFactors turns tiles into one direction's raw factors. Tile
// masses for the same pair are summed first, then divided by the source
// zone's denominator. Zones with a non-positive denominator produce no
// factors and fall through to the missing-zone report.
func directionalFactors(tiles []model.Tile, dir direction, denom func(src string) float64) []Factor {
	type pair struct{ src, dst string }
	sums := make(map[pair]float64)
	var order []pair
	for _, t := range tiles {
		p := pair{src: t.Zone1, dst: t.Zone2}
		if dir == reverse {
			p = pair{src: t.Zone2, dst: t.Zone1}
		}
		if _, ok := sums[p]; !ok {
			order = append(order, p)
		}
		sums[p] += t.Mass
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].src != order[j].src {
			return order[i].src < order[j].src
		}
		return order[i].dst < order[j].dst
	})

	factors := make([]Factor, 0, len(order))
	for _, p := range order {
		d := denom(p.src)
		if d <= 0 {
			continue
		}
		factors = append(factors, Factor{Src: p.src, Dst: p.dst, Val: sums[p] / d})
	}
	return factors
}

// areaDenominator divides by the source zone's full polygon area, so a
// zone partially outside the other system keeps a factor sum below one
// until normalization.
func areaDenominator(zs *zoning.ZoneSystem) func(string) float64 {
	return func(id string) float64 {
		z, ok := zs.Zone(id)
		if !ok {
			return 0
		}
		return z.Area
	}
}

// massDenominator divides by the source zone's total attribute mass
// across all tiles.
func massDenominator(tiles []model.Tile, dir direction) func(string) float64 {
	totals := make(map[string]float64)
	for _, t := range tiles {
		src := t.Zone1
		if dir == reverse {
			src = t.Zone2
		}
		totals[src] += t.Mass
	}
	return func(id string) float64 { return totals[id] }
}

// mergePointFactors resolves point zones by containment and splices the
// resulting unit factors into both directions. A point zone maps wholly
// into its containing zone. The mirrored factor is only added when the
// containing zone has no area-based factors of its own in that direction,
// which covers the case of two point layers describing the same sites
// under different ids; a container holding several points splits its
// mirrored factor equally among them, keeping its outgoing sum at one.
func mergePointFactors(fwd, rev []Factor, pts1, pts2 []pointZone, area1, area2 []zoning.Zone) ([]Factor, []Factor) {
	hasFwd := make(map[string]bool, len(fwd))
	for _, f := range fwd {
		hasFwd[f.Src] = true
	}
	hasRev := make(map[string]bool, len(rev))
	for _, f := range rev {
		hasRev[f.Src] = true
	}

	pairs1, _ := resolvePoints(pts1, area2)
	for _, pr := range pairs1 {
		fwd = append(fwd, Factor{Src: pr[0], Dst: pr[1], Val: 1})
	}
	rev = append(rev, mirrorFactors(pairs1, hasRev)...)

	pairs2, _ := resolvePoints(pts2, area1)
	for _, pr := range pairs2 {
		rev = append(rev, Factor{Src: pr[0], Dst: pr[1], Val: 1})
	}
	fwd = append(fwd, mirrorFactors(pairs2, hasFwd)...)

	return fwd, rev
}

// mirrorFactors builds the container-to-point factors for resolved point
// pairs, skipping containers that already carry area-based factors and
// splitting each remaining container's unit evenly across its points.
func mirrorFactors(pairs [][2]string, has map[string]bool) []Factor {
	counts := make(map[string]int)
	for _, pr := range pairs {
		counts[pr[1]]++
	}
	var out []Factor
	for _, pr := range pairs {
		point, container := pr[0], pr[1]
		if has[container] {
			continue
		}
		out = append(out, Factor{Src: container, Dst: point, Val: 1 / float64(counts[container])})
	}
	return out
}

// assemblePairs merges the two directional factor sets into pair rows and
// validates every value. Non-finite or negative factors indicate a
// geometry or aggregation defect and abort the run; values a hair above
// one are clamped.
func assemblePairs(fwd, rev []Factor) ([]model.PairFactor, error) {
	type key struct{ z1, z2 string }
	rows := make(map[key]*model.PairFactor)
	var order []key

	add := func(z1, z2 string) *model.PairFactor {
		k := key{z1, z2}
		if r, ok := rows[k]; ok {
			return r
		}
		r := &model.PairFactor{Zone1: z1, Zone2: z2}
		rows[k] = r
		order = append(order, k)
		return r
	}

	for _, f := range fwd {
		if err := checkFactor(f); err != nil {
			return nil, err
		}
		add(f.Src, f.Dst).Forward = clamp1(f.Val)
	}
	for _, f := range rev {
		if err := checkFactor(f); err != nil {
			return nil, err
		}
		add(f.Dst, f.Src).Reverse = clamp1(f.Val)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].z1 != order[j].z1 {
			return order[i].z1 < order[j].z1
		}
		return order[i].z2 < order[j].z2
	})
	pairs := make([]model.PairFactor, len(order))
	for i, k := range order {
		pairs[i] = *rows[k]
	}
	return pairs, nil
}

func checkFactor(f Factor) error {
	if math.IsNaN(f.Val) || math.IsInf(f.Val, 0) || f.Val < 0 {
		return eris.Errorf("translate: invalid factor %g for %s -> %s", f.Val, f.Src, f.Dst)
	}
	if f.Val > 1+1e-6 {
		return eris.Errorf("translate: factor %g for %s -> %s exceeds 1", f.Val, f.Src, f.Dst)
	}
	return nil
}

// clamp1 trims float noise just above one.
func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func (t *Translator) cachedFactors(ctx context.Context, key string, info CacheInfo, compute func(context.Context) ([]model.PairFactor, error)) ([]model.PairFactor, bool, error) {
	if t.cache == nil {
		pairs, err := compute(ctx)
		return pairs, false, err
	}
	return t.cache.Factors(ctx, key, info, compute)
}

func (t *Translator) cachedOverlay(ctx context.Context, key string, compute func(context.Context) ([]model.Tile, error)) ([]model.Tile, bool, error) {
	if t.cache == nil {
		tiles, err := compute(ctx)
		return tiles, false, err
	}
	return t.cache.Overlay(ctx, key, compute)
}

// finishLog emits the run summary, including the factor-sum audit over
// both directions.
func (t *Translator) finishLog(res *model.Result) {
	var sumFwd, sumRev float64
	srcs1, srcs2 := make(map[string]bool), make(map[string]bool)
	for _, p := range res.Pairs {
		sumFwd += p.Forward
		sumRev += p.Reverse
		if p.Forward > 0 {
			srcs1[p.Zone1] = true
		}
		if p.Reverse > 0 {
			srcs2[p.Zone2] = true
		}
	}
	t.log.Info("translation complete",
		zap.String("zone1", res.Zone1Name),
		zap.String("zone2", res.Zone2Name),
		zap.String("mode", string(res.Mode)),
		zap.Int("pairs", len(res.Pairs)),
		zap.Bool("cache_hit", res.CacheHit),
		zap.Float64("forward_sum", sumFwd),
		zap.Int("forward_sources", len(srcs1)),
		zap.Float64("reverse_sum", sumRev),
		zap.Int("reverse_sources", len(srcs2)),
		zap.Int("missing_zone1", len(res.Missing.Zone1)),
		zap.Int("missing_zone2", len(res.Missing.Zone2)),
	)

	low1, low2 := lowSumZones(res.Pairs)
	if len(low1) > 0 || len(low2) > 0 {
		t.log.Warn("source zones with factor sum below one",
			zap.Strings("zone1", low1),
			zap.Strings("zone2", low2),
		)
	}
}

// lowSumZones returns, per direction, the source zones whose outgoing
// factors sum to less than one. These only occur with rounding disabled
// or after cross-system coverage gaps; zones with no factors at all are
// the missing report's business, not this audit's.
func lowSumZones(pairs []model.PairFactor) (zone1, zone2 []string) {
	const floor = 1 - 1e-6
	fwd := make(map[string]float64)
	rev := make(map[string]float64)
	for _, p := range pairs {
		if p.Forward > 0 {
			fwd[p.Zone1] += p.Forward
		}
		if p.Reverse > 0 {
			rev[p.Zone2] += p.Reverse
		}
	}
	for id, sum := range fwd {
		if sum < floor {
			zone1 = append(zone1, id)
		}
	}
	for id, sum := range rev {
		if sum < floor {
			zone2 = append(zone2, id)
		}
	}
	sort.Strings(zone1)
	sort.Strings(zone2)
	return zone1, zone2
}

// digest builds a cache key from its parts.
func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
