package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xyz-asif/rewardz/internal/features/reports"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/tokens"
)

// ScoringWeights are the points each factor can contribute
type ScoringWeights struct {
	Species      float64
	BreedExact   float64
	BreedPartial float64
	Color        float64
	Proximity    float64
	Temporal     float64
	EarlyFound   float64
	Microchip    float64
	PhotoLabels  float64

	// SpeciesMismatchFactor scales every other factor when species differ
	SpeciesMismatchFactor float64
	// SpeciesMismatchCap bounds the total when species differ. Keep it below
	// the orchestrator's MinScore so a mismatch is never stored.
	SpeciesMismatchCap float64

	ProximityCutoffKm float64
	TemporalFullDays  float64
	TemporalZeroDays  float64
	EarlyGraceDays    float64
}

// DefaultWeights returns the production weights
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Species:               40,
		BreedExact:            20,
		BreedPartial:          10,
		Color:                 10,
		Proximity:             20,
		Temporal:              10,
		EarlyFound:            -5,
		Microchip:             30,
		PhotoLabels:           5,
		SpeciesMismatchFactor: 0.25,
		SpeciesMismatchCap:    15,
		ProximityCutoffKm:     50,
		TemporalFullDays:      3,
		TemporalZeroDays:      14,
		EarlyGraceDays:        1,
	}
}

// Scorer rates how likely a lost and a found report describe the same pet.
// It is safe for concurrent use.
type Scorer struct {
	w      ScoringWeights
	high   float64
	medium float64
}

// NewScorer builds a scorer. Non-positive thresholds fall back to 70 and 40.
func NewScorer(w ScoringWeights, high, medium float64) *Scorer {
	if high <= 0 {
		high = 70
	}
	if medium <= 0 {
		medium = 40
	}
	if medium > high {
		medium, high = high, medium
	}
	return &Scorer{w: w, high: high, medium: medium}
}

var defaultScorer = NewScorer(DefaultWeights(), 70, 40)

// MatchScore scores a against b with the default weights
func MatchScore(a, b *reports.Report) float64 {
	return defaultScorer.Score(a, b).Score
}

type factor struct {
	points float64
	reason string
}

// Score compares two reports of opposite type. Same-type or nil input scores
// 0 with no reasons.
func (s *Scorer) Score(a, b *reports.Report) Result {
	if a == nil || b == nil || a.Type == b.Type {
		return Result{Score: 0, Confidence: ConfidenceLow, Reasons: []string{}}
	}

	lost, found := a, b
	if a.Type == reports.TypeFound {
		lost, found = b, a
	}

	var factors []factor
	scale := 1.0
	ceiling := 100.0

	if sameText(lost.Species, found.Species) {
		factors = append(factors, factor{s.w.Species, "Same species: " + strings.TrimSpace(lost.Species)})
	} else {
		scale = s.w.SpeciesMismatchFactor
		if s.w.SpeciesMismatchCap > 0 {
			ceiling = s.w.SpeciesMismatchCap
		}
	}

	add := func(points float64, reason string) {
		factors = append(factors, factor{points * scale, reason})
	}

	if pts, reason := s.breed(lost.Breed, found.Breed); pts != 0 {
		add(pts, reason)
	}
	if similarText(lost.Color, found.Color) {
		add(s.w.Color, fmt.Sprintf("Similar color: %s / %s", strings.TrimSpace(lost.Color), strings.TrimSpace(found.Color)))
	}
	if pts, reason := s.proximity(lost, found); pts != 0 {
		add(pts, reason)
	}
	if pts, reason := s.temporal(lost, found); pts != 0 {
		add(pts, reason)
	}
	if lost.MicrochipID != "" && sameText(lost.MicrochipID, found.MicrochipID) {
		add(s.w.Microchip, "Same microchip")
	}
	if shared := tokens.Overlap(lost.PhotoLabels, found.PhotoLabels); len(shared) > 0 {
		pts := math.Min(s.w.PhotoLabels, float64(len(shared)))
		add(pts, "Similar photo: "+strings.Join(shared, ", "))
	}

	total := 0.0
	for _, f := range factors {
		total += f.points
	}
	total = math.Max(0, math.Min(ceiling, total))

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].points > factors[j].points
	})
	reasons := []string{}
	for _, f := range factors {
		if f.points >= 1 {
			reasons = append(reasons, f.reason)
		}
	}

	return Result{Score: total, Confidence: s.Tier(total), Reasons: reasons}
}

// Tier buckets a score
func (s *Scorer) Tier(score float64) string {
	switch {
	case score >= s.high:
		return ConfidenceHigh
	case score >= s.medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (s *Scorer) breed(lost, found string) (float64, string) {
	l, f := normalize(lost), normalize(found)
	if l == "" || f == "" {
		return 0, ""
	}
	if l == f {
		return s.w.BreedExact, "Same breed: " + strings.TrimSpace(lost)
	}
	if similarText(lost, found) {
		return s.w.BreedPartial, fmt.Sprintf("Similar breed: %s / %s", strings.TrimSpace(lost), strings.TrimSpace(found))
	}
	return 0, ""
}

func (s *Scorer) proximity(lost, found *reports.Report) (float64, string) {
	from, ok := location(lost)
	if !ok {
		return 0, ""
	}
	to, ok := location(found)
	if !ok {
		return 0, ""
	}

	d := geo.HaversineKm(from, to)
	if d >= s.w.ProximityCutoffKm {
		return 0, ""
	}
	pts := s.w.Proximity * (1 - d/s.w.ProximityCutoffKm)
	if d < 1 {
		return pts, fmt.Sprintf("Found within %.0f m", math.Max(1, math.Round(d*1000)))
	}
	return pts, fmt.Sprintf("Found within %.1f km", d)
}

func (s *Scorer) temporal(lost, found *reports.Report) (float64, string) {
	lostAt, foundAt := lost.ReferenceTime(), found.ReferenceTime()
	if lostAt.IsZero() || foundAt.IsZero() {
		return 0, ""
	}

	days := foundAt.Sub(lostAt).Hours() / 24
	if days < -s.w.EarlyGraceDays {
		return s.w.EarlyFound, "Found before the pet was reported lost"
	}

	gap := math.Abs(days)
	switch {
	case gap <= s.w.TemporalFullDays:
		return s.w.Temporal, "Found within " + dayCount(int(math.Max(1, math.Ceil(gap))))
	case gap < s.w.TemporalZeroDays:
		span := s.w.TemporalZeroDays - s.w.TemporalFullDays
		pts := s.w.Temporal * (s.w.TemporalZeroDays - gap) / span
		return pts, "Found within " + dayCount(int(math.Ceil(gap)))
	default:
		return 0, ""
	}
}

func dayCount(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// location prefers the true point and falls back to the public one
func location(r *reports.Report) (geo.Coordinates, bool) {
	if c, ok := r.TrueCoordinates(); ok {
		return c, true
	}
	return r.PublicCoordinates()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sameText(a, b string) bool {
	a, b = normalize(a), normalize(b)
	return a != "" && a == b
}

// similarText is substring containment either way or a shared token
func similarText(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return len(tokens.Overlap(tokens.Tokenize(a), tokens.Tokenize(b))) > 0
}
