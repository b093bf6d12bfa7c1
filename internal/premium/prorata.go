package premium

import "math"

// StandardCoverDays is the annual policy period pro-rata scales against.
const StandardCoverDays = 365

// ProRata scales a net premium by elapsed cover days against the standard
// 365-day period. The ratio is kept unrounded internally; only the
// resulting premium is rounded. Non-positive inputs are caller
// precondition violations, not empty cases.
func ProRata(netPremiumDue float64, coverDays int) (ProRataResult, error) {
	if coverDays <= 0 {
		return ProRataResult{}, &ValidationError{Stage: "pro-rata calculator", Field: "coverDays", Reason: "must be positive"}
	}
	if netPremiumDue <= 0 || math.IsNaN(netPremiumDue) || math.IsInf(netPremiumDue, 0) {
		return ProRataResult{}, &ValidationError{Stage: "pro-rata calculator", Field: "netPremiumDue", Reason: "must be positive"}
	}
	factor := float64(coverDays) / float64(StandardCoverDays)
	proRata := Round2(netPremiumDue * factor)
	return ProRataResult{
		NetPremiumDue:  netPremiumDue,
		ProRataPremium: proRata,
		PremiumDue:     proRata,
		CoverDays:      coverDays,
		IsProRated:     coverDays != StandardCoverDays,
	}, nil
}
