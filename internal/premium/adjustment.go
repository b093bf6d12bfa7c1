package premium

import "math"

const stageAdjustment = "adjustment engine"

// ApplyAdjustments cascades an ordered list of percentage adjustments over
// a starting premium. Discounts run strictly before loadings; within each
// kind the caller's declaration order is preserved. Each step's rate is a
// percentage of the running premium after every prior step, not of the
// starting premium, so reordering changes the result.
//
// The engine has no knowledge of scope: section and proposal adjustments
// both call it, only with different rate sets.
func ApplyAdjustments(startingPremium float64, adjustments []Adjustment) (AdjustmentResult, error) {
	if startingPremium < 0 || math.IsNaN(startingPremium) || math.IsInf(startingPremium, 0) {
		return AdjustmentResult{}, &ValidationError{Stage: stageAdjustment, Field: "startingPremium", Reason: "must be a non-negative number"}
	}
	for _, adj := range adjustments {
		if adj.Kind != KindDiscount && adj.Kind != KindLoading {
			return AdjustmentResult{}, &ValidationError{Stage: stageAdjustment, Field: adj.Name, Reason: "has unknown adjustment kind"}
		}
		if adj.Rate < 0 || adj.Rate > 100 || math.IsNaN(adj.Rate) {
			return AdjustmentResult{}, &ValidationError{Stage: stageAdjustment, Field: adj.Name, Reason: "rate must be within [0, 100]"}
		}
	}

	result := AdjustmentResult{
		StartingPremium:  startingPremium,
		DiscountsApplied: []AdjustmentStep{},
		LoadingsApplied:  []AdjustmentStep{},
	}

	running := startingPremium
	for _, adj := range adjustments {
		if adj.Kind != KindDiscount {
			continue
		}
		amount := Round2(running * adj.Rate / 100)
		running = Round2(running - amount)
		result.DiscountsApplied = append(result.DiscountsApplied, AdjustmentStep{
			Name:                   adj.Name,
			Rate:                   adj.Rate,
			Amount:                 amount,
			PremiumAfterAdjustment: running,
		})
	}
	for _, adj := range adjustments {
		if adj.Kind != KindLoading {
			continue
		}
		amount := Round2(running * adj.Rate / 100)
		running = Round2(running + amount)
		result.LoadingsApplied = append(result.LoadingsApplied, AdjustmentStep{
			Name:                   adj.Name,
			Rate:                   adj.Rate,
			Amount:                 amount,
			PremiumAfterAdjustment: running,
		})
	}

	if running < 0 {
		return AdjustmentResult{}, &InvariantError{Stage: stageAdjustment, Detail: "final net premium below zero", Value: running}
	}
	result.FinalNetPremium = running
	return result, nil
}

// SectionAdjustments expands a section's flat rate set into the fixed
// declaration order: Special, Deductible, Spread, LTA and Other discounts,
// then Theft, SRCC and Other loadings. Zero rates are omitted so the audit
// trail only records steps that moved the premium.
func SectionAdjustments(rates SectionRates) []Adjustment {
	ordered := []Adjustment{
		{Name: "Special Discount", Rate: rates.SpecialDiscountRate, Kind: KindDiscount},
		{Name: "Deductible Discount", Rate: rates.DeductibleDiscountRate, Kind: KindDiscount},
		{Name: "Spread Discount", Rate: rates.SpreadDiscountRate, Kind: KindDiscount},
		{Name: "LTA Discount", Rate: rates.LTADiscountRate, Kind: KindDiscount},
		{Name: "Other Discounts", Rate: rates.OtherDiscountsRate, Kind: KindDiscount},
		{Name: "Theft Loading", Rate: rates.TheftLoadingRate, Kind: KindLoading},
		{Name: "SRCC Loading", Rate: rates.SRCCLoadingRate, Kind: KindLoading},
		{Name: "Other Loadings", Rate: rates.OtherLoadingsRate, Kind: KindLoading},
	}
	out := make([]Adjustment, 0, len(ordered))
	for _, adj := range ordered {
		if adj.Rate != 0 {
			out = append(out, adj)
		}
	}
	return out
}

// ProposalAdjustments expands the proposal-scope rate set, which only
// carries other discounts and other loadings.
func ProposalAdjustments(otherDiscountsRate, otherLoadingsRate float64) []Adjustment {
	out := make([]Adjustment, 0, 2)
	if otherDiscountsRate != 0 {
		out = append(out, Adjustment{Name: "Other Discounts", Rate: otherDiscountsRate, Kind: KindDiscount})
	}
	if otherLoadingsRate != 0 {
		out = append(out, Adjustment{Name: "Other Loadings", Rate: otherLoadingsRate, Kind: KindLoading})
	}
	return out
}
