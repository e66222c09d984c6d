package evaluator

import (
	"fmt"
	"math"

	"github.com/nerrad567/medwatch/internal/profile"
)

// Tier is a classification bucket.
type Tier string

// Tiers, from best to worst.
const (
	TierOK       Tier = "OK"
	TierWarn     Tier = "WARN"
	TierCritical Tier = "CRITICAL"
)

// Severity orders tiers so callers can compare them.
func (t Tier) Severity() int {
	switch t {
	case TierOK:
		return 0
	case TierWarn:
		return 1
	case TierCritical:
		return 2
	default:
		return -1
	}
}

// Classification constants.
const (
	// edgeFraction is the share of an envelope's width treated as near-edge.
	edgeFraction = 0.10

	// minHumidityMargin floors the humidity near-edge margin, in %RH.
	minHumidityMargin = 1.0

	// humidityPenalty is the stability points lost per %RH outside the band.
	humidityPenalty = 2.0

	tempWeight     = 0.65
	humidityWeight = 0.35
)

// Result is the outcome of a classification.
type Result struct {
	Tier      Tier `json:"tier"`
	Stability int  `json:"stability"`
}

// Classify maps a reading pair onto a tier and a 0-100 stability score.
//
// Bounds are exclusive: temp == p.TMin is in range (at most WARN).
func Classify(temp, hum float64, p profile.Profile) Result {
	return Result{
		Tier:      classifyTier(temp, hum, p),
		Stability: Stability(temp, hum, p),
	}
}

func classifyTier(temp, hum float64, p profile.Profile) Tier {
	if temp < p.TMin || temp > p.TMax || hum < p.UMin || hum > p.UMax {
		return TierCritical
	}

	tMargin := edgeFraction * p.TempWidth()
	if temp-p.TMin < tMargin || p.TMax-temp < tMargin {
		return TierWarn
	}

	uMargin := math.Max(minHumidityMargin, edgeFraction*p.HumidityWidth())
	if hum-p.UMin < uMargin || p.UMax-hum < uMargin {
		return TierWarn
	}

	return TierOK
}

// Stability blends closeness to the optimum temperature (65%) with
// humidity containment (35%). Halves round away from zero.
func Stability(temp, hum float64, p profile.Profile) int {
	tScore := math.Max(0, 100-math.Abs(temp-p.TOptimum)/p.TempWidth()*100)

	uScore := 100.0
	if hum < p.UMin {
		uScore -= humidityPenalty * (p.UMin - hum)
	}
	if hum > p.UMax {
		uScore -= humidityPenalty * (hum - p.UMax)
	}
	uScore = math.Max(0, uScore)

	s := int(math.Round(tempWeight*tScore + humidityWeight*uScore))
	return min(100, max(0, s))
}

// Evaluation is a classified pair together with its captions.
type Evaluation struct {
	Profile profile.Profile
	Result  Result
	Label   string
	Alert   string
}

// Evaluate looks up id and classifies the pair. The second result is
// false when the profile is unknown, in which case no classification
// is made.
func Evaluate(temp, hum float64, id string) (Evaluation, bool) {
	p, ok := profile.Lookup(id)
	if !ok {
		return Evaluation{}, false
	}
	r := Classify(temp, hum, p)
	return Evaluation{
		Profile: p,
		Result:  r,
		Label:   Label(p, r.Tier),
		Alert:   Alert(temp, hum, p, r),
	}, true
}

// Alert returns the operator-facing alert line for a result, or "" when
// the tier is OK.
func Alert(temp, hum float64, p profile.Profile, r Result) string {
	switch r.Tier {
	case TierCritical:
		return fmt.Sprintf("CRITICAL: %s out of range! T=%.1f°C U=%.0f%%", p.Name, temp, hum)
	case TierWarn:
		return fmt.Sprintf("WARNING: %s approaching limits. T=%.1f°C U=%.0f%%", p.Name, temp, hum)
	default:
		return ""
	}
}

// Label returns the short status caption for a profile and tier,
// e.g. "Vacinas - Safe".
func Label(p profile.Profile, t Tier) string {
	switch t {
	case TierCritical:
		return p.Name + " - Critical"
	case TierWarn:
		return p.Name + " - Warning"
	default:
		return p.Name + " - Safe"
	}
}
