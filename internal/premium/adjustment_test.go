package premium_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/premium"
)

func TestCascadingDiscountsCompound(t *testing.T) {
	result, err := premium.ApplyAdjustments(1000, []premium.Adjustment{
		{Name: "A", Rate: 10, Kind: premium.KindDiscount},
		{Name: "B", Rate: 10, Kind: premium.KindDiscount},
	})
	require.NoError(t, err)

	// Each step applies to the running premium, so two 10% discounts land
	// on 810.00 rather than the flat-sum 800.00.
	require.Equal(t, 810.00, result.FinalNetPremium)
	require.Len(t, result.DiscountsApplied, 2)
	require.Equal(t, 100.00, result.DiscountsApplied[0].Amount)
	require.Equal(t, 900.00, result.DiscountsApplied[0].PremiumAfterAdjustment)
	require.Equal(t, 90.00, result.DiscountsApplied[1].Amount)
	require.Equal(t, 810.00, result.DiscountsApplied[1].PremiumAfterAdjustment)
}

func TestDiscountsRunBeforeLoadings(t *testing.T) {
	// Declaration order interleaves the kinds; the engine still applies
	// every discount before any loading.
	result, err := premium.ApplyAdjustments(1000, []premium.Adjustment{
		{Name: "Theft Loading", Rate: 10, Kind: premium.KindLoading},
		{Name: "Special Discount", Rate: 10, Kind: premium.KindDiscount},
	})
	require.NoError(t, err)

	require.Equal(t, 1000.00, result.StartingPremium)
	require.Equal(t, 900.00, result.DiscountsApplied[0].PremiumAfterAdjustment)
	require.Equal(t, 90.00, result.LoadingsApplied[0].Amount)
	require.Equal(t, 990.00, result.FinalNetPremium)
}

func TestAdjustmentRoundingPerStep(t *testing.T) {
	result, err := premium.ApplyAdjustments(333.33, []premium.Adjustment{
		{Name: "A", Rate: 3, Kind: premium.KindDiscount},
		{Name: "B", Rate: 7, Kind: premium.KindDiscount},
	})
	require.NoError(t, err)

	// 333.33 * 3% = 10.00 (9.9999 rounded), running 323.33
	// 323.33 * 7% = 22.63, running 300.70
	require.Equal(t, 10.00, result.DiscountsApplied[0].Amount)
	require.Equal(t, 323.33, result.DiscountsApplied[0].PremiumAfterAdjustment)
	require.Equal(t, 22.63, result.DiscountsApplied[1].Amount)
	require.Equal(t, 300.70, result.FinalNetPremium)
}

func TestApplyAdjustmentsEmptyList(t *testing.T) {
	result, err := premium.ApplyAdjustments(500, nil)
	require.NoError(t, err)
	require.Equal(t, 500.00, result.FinalNetPremium)
	require.Empty(t, result.DiscountsApplied)
	require.Empty(t, result.LoadingsApplied)
}

func TestApplyAdjustmentsRejectsBadInput(t *testing.T) {
	_, err := premium.ApplyAdjustments(-1, nil)
	require.ErrorIs(t, err, premium.ErrValidation)

	_, err = premium.ApplyAdjustments(1000, []premium.Adjustment{{Name: "A", Rate: -5, Kind: premium.KindDiscount}})
	require.ErrorIs(t, err, premium.ErrValidation)

	_, err = premium.ApplyAdjustments(1000, []premium.Adjustment{{Name: "A", Rate: 5, Kind: "rebate"}})
	require.ErrorIs(t, err, premium.ErrValidation)
}

func TestSectionAdjustmentsOrderAndZeroSkip(t *testing.T) {
	adjustments := premium.SectionAdjustments(premium.SectionRates{
		SpecialDiscountRate: 5,
		LTADiscountRate:     2,
		TheftLoadingRate:    3,
	})

	require.Len(t, adjustments, 3)
	require.Equal(t, "Special Discount", adjustments[0].Name)
	require.Equal(t, "LTA Discount", adjustments[1].Name)
	require.Equal(t, "Theft Loading", adjustments[2].Name)
	require.Equal(t, premium.KindLoading, adjustments[2].Kind)
}

func TestProposalAdjustmentsScope(t *testing.T) {
	adjustments := premium.ProposalAdjustments(2.5, 1)
	require.Len(t, adjustments, 2)
	require.Equal(t, premium.KindDiscount, adjustments[0].Kind)
	require.Equal(t, premium.KindLoading, adjustments[1].Kind)

	require.Empty(t, premium.ProposalAdjustments(0, 0))
}

func TestSectionAndProposalScopesShareEngine(t *testing.T) {
	sectionResult, err := premium.ApplyAdjustments(2000, premium.SectionAdjustments(premium.SectionRates{OtherDiscountsRate: 10}))
	require.NoError(t, err)
	proposalResult, err := premium.ApplyAdjustments(2000, premium.ProposalAdjustments(10, 0))
	require.NoError(t, err)
	require.Equal(t, sectionResult.FinalNetPremium, proposalResult.FinalNetPremium)
}
