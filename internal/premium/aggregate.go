package premium

// AggregateSection sums a section's calculated items into authoritative
// totals. Items that have not been calculated yet contribute zero. The
// constituents are already rounded, so the sums are not rounded again.
func AggregateSection(items []RiskItem) SectionTotals {
	var totals SectionTotals
	for _, it := range items {
		totals.SumInsured += it.TotalSumInsured
		totals.GrossPremium += it.TotalGrossPremium
		totals.NetPremium += it.NetPremiumAfterDiscounts
	}
	return totals
}

// AggregateProposal rolls per-section figures up into proposal-wide
// totals. The basis argument forces callers to state whether the
// aggregate premium sums net or gross section premiums.
func AggregateProposal(sections []SectionFigures, basis PremiumBasis) (ProposalAggregate, error) {
	if basis != BasisNet && basis != BasisGross {
		return ProposalAggregate{}, &ValidationError{Stage: "multi-section aggregator", Field: "basis", Reason: "must be net or gross"}
	}
	agg := ProposalAggregate{
		SectionCount: len(sections),
		Sections:     append([]SectionFigures(nil), sections...),
	}
	for _, s := range sections {
		agg.TotalSumInsured += s.SumInsured
		if basis == BasisGross {
			agg.TotalAggregatePremium += s.GrossPremium
		} else {
			agg.TotalAggregatePremium += s.NetPremium
		}
	}
	return agg, nil
}
