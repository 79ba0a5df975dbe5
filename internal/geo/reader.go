package geo

import (
	"context"
	"sort"
	"time"

	"tamaqBack/internal/repo"
)

// Config bounds the proximity search and the re-rank.
type Config struct {
	// RadiiKM is the ascending expansion sequence; the search stops at the
	// first radius with at least one eligible candidate.
	RadiiKM []float64
	// Staleness drops drivers whose last heartbeat is older than this.
	Staleness time.Duration
	// Overfetch multiplies the requested k when querying Redis so the
	// re-rank has material to work with.
	Overfetch int
	// ToleranceKM is the hard distance window past the closest candidate.
	ToleranceKM float64
	// RatingWeight scales the (5.0 - avg) penalty inside the window.
	RatingWeight float64
	// MinTrustCount is the rating count below which a driver gets zero
	// penalty and distance alone decides.
	MinTrustCount int64
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		RadiiKM:       []float64{5, 10, 15},
		Staleness:     5 * time.Minute,
		Overfetch:     3,
		ToleranceKM:   0.7,
		RatingWeight:  0.5,
		MinTrustCount: 10,
	}
}

// unboundedRadiusKM is the fallback when no configured radius yields a
// candidate; effectively the whole planet, ordered by distance.
const unboundedRadiusKM = 20000

// RatingSource supplies cumulative rating counters for a candidate set.
type RatingSource interface {
	RatingsByIDs(ctx context.Context, ids []int64) (map[int64]repo.RatingInfo, error)
}

// Reader is the driver proximity search: expanding radii over the free set,
// staleness filtering, then a two-stage re-rank.
type Reader struct {
	loc     *Locator
	ratings RatingSource
	cfg     Config
}

func NewReader(loc *Locator, ratings RatingSource, cfg Config) *Reader {
	if cfg.Overfetch <= 0 {
		cfg.Overfetch = 1
	}
	return &Reader{loc: loc, ratings: ratings, cfg: cfg}
}

// Nearest returns up to k candidates for a pickup point, excluding the
// given driver ids. An empty result is a valid answer, not an error.
func (r *Reader) Nearest(ctx context.Context, city string, lon, lat float64, k int, exclude map[int64]struct{}) ([]Candidate, error) {
	fetch := k * r.cfg.Overfetch

	var cands []Candidate
	for _, radius := range append(append([]float64{}, r.cfg.RadiiKM...), unboundedRadiusKM) {
		found, err := r.loc.SearchFree(ctx, city, lon, lat, radius, fetch+len(exclude))
		if err != nil {
			return nil, err
		}
		found, err = r.filterEligible(ctx, city, found, exclude)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			cands = found
			break
		}
	}
	if len(cands) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.DriverID
	}
	ratings, err := r.ratings.RatingsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range cands {
		info := ratings[cands[i].DriverID]
		cands[i].RatingCount = info.RatingCount
		if info.RatingCount > 0 {
			cands[i].AvgRating = float64(info.RatingTotal) / float64(info.RatingCount)
		}
	}

	return Rerank(cands, k, r.cfg.ToleranceKM, r.cfg.RatingWeight, r.cfg.MinTrustCount), nil
}

func (r *Reader) filterEligible(ctx context.Context, city string, cands []Candidate, exclude map[int64]struct{}) ([]Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.DriverID)
	}
	seen, err := r.loc.LastSeen(ctx, city, ids)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-r.cfg.Staleness)

	out := cands[:0]
	for _, c := range cands {
		if _, skip := exclude[c.DriverID]; skip {
			continue
		}
		at, ok := seen[c.DriverID]
		if !ok || at.Before(cutoff) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Rerank applies the two-stage ordering: a hard distance window of
// tolerance km past the closest candidate, then a soft rating penalty
// inside it. When the window holds fewer than k candidates the plain k
// nearest win instead. Distance is never traded away by more than the
// tolerance for a better rating.
func Rerank(cands []Candidate, k int, toleranceKM, ratingWeight float64, minTrust int64) []Candidate {
	if len(cands) == 0 || k <= 0 {
		return nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].DistanceKM < cands[j].DistanceKM })

	closest := cands[0].DistanceKM
	window := 0
	for window < len(cands) && cands[window].DistanceKM <= closest+toleranceKM {
		window++
	}

	if window < k {
		if len(cands) > k {
			cands = cands[:k]
		}
		for i := range cands {
			cands[i].Score = cands[i].DistanceKM
		}
		return cands
	}

	scored := cands[:window]
	for i := range scored {
		scored[i].Score = scored[i].DistanceKM
		if scored[i].RatingCount >= minTrust {
			scored[i].Score += (5.0 - scored[i].AvgRating) * ratingWeight
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
