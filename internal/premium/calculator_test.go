package premium_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/premium"
)

func TestCalculateItemBaseCase(t *testing.T) {
	item := premium.RiskItem{
		SectionID:       "sec-1",
		SMICode:         "SMI-01",
		ItemDescription: "Office building",
		ActualValue:     100000,
		ItemRate:        2,
		MultiplyRate:    1,
		FEADiscountRate: 5,
	}

	calc, err := premium.CalculateItem(item, 100)
	require.NoError(t, err)

	require.Equal(t, 2000.00, calc.ActualPremium)
	require.Equal(t, 100.00, calc.FEADiscountAmount)
	require.Equal(t, 1900.00, calc.NetPremiumAfterDiscounts)
	require.Equal(t, 100000.00, calc.ShareValue)
	require.Equal(t, 1900.00, calc.PremiumValue)
	require.Equal(t, 100000.00, calc.TotalSumInsured)
	require.NotEmpty(t, calc.ActualPremiumFormula)
}

func TestCalculateItemWithStock(t *testing.T) {
	item := premium.RiskItem{
		SectionID:    "sec-1",
		ActualValue:  50000,
		ItemRate:     2,
		MultiplyRate: 1,
		Stock: &premium.StockItem{
			SumInsured:   10000,
			DiscountRate: 20,
		},
	}

	calc, err := premium.CalculateItem(item, 100)
	require.NoError(t, err)

	// stock gross 200.00, stock discount 40.00
	require.Equal(t, 1000.00, calc.ActualPremium)
	require.Equal(t, 200.00, calc.Stock.GrossPremium)
	require.Equal(t, 40.00, calc.Stock.DiscountAmount)
	require.Equal(t, 160.00, calc.Stock.NetPremium)
	require.Equal(t, 60000.00, calc.TotalSumInsured)
	require.Equal(t, 1200.00, calc.TotalGrossPremium)
	require.Equal(t, 40.00, calc.StockDiscountAmount)
	require.Equal(t, 1160.00, calc.NetPremiumAfterDiscounts)
	require.Equal(t, calc.ItemRate, calc.Stock.Rate)
}

func TestCalculateItemProportionShare(t *testing.T) {
	item := premium.RiskItem{
		SectionID:    "sec-1",
		ActualValue:  100000,
		ItemRate:     2,
		MultiplyRate: 1,
	}

	calc, err := premium.CalculateItem(item, 60)
	require.NoError(t, err)
	require.Equal(t, 60000.00, calc.ShareValue)
	require.Equal(t, 1200.00, calc.PremiumValue)
}

func TestCalculateItemDeterministic(t *testing.T) {
	item := premium.RiskItem{
		SectionID:       "sec-1",
		ActualValue:     123456.78,
		ItemRate:        1.375,
		MultiplyRate:    1.1,
		FEADiscountRate: 2.5,
	}

	first, err := premium.CalculateItem(item, 80)
	require.NoError(t, err)
	second, err := premium.CalculateItem(item, 80)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCalculateItemRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		item premium.RiskItem
		rate float64
	}{
		{"negative actual value", premium.RiskItem{ActualValue: -1, ItemRate: 2, MultiplyRate: 1}, 100},
		{"negative item rate", premium.RiskItem{ActualValue: 1000, ItemRate: -2, MultiplyRate: 1}, 100},
		{"negative multiply rate", premium.RiskItem{ActualValue: 1000, ItemRate: 2, MultiplyRate: -1}, 100},
		{"zero proportion rate", premium.RiskItem{ActualValue: 1000, ItemRate: 2, MultiplyRate: 1}, 0},
		{"negative stock sum", premium.RiskItem{ActualValue: 1000, ItemRate: 2, MultiplyRate: 1, Stock: &premium.StockItem{SumInsured: -5}}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := premium.CalculateItem(tc.item, tc.rate)
			require.Error(t, err)
			require.ErrorIs(t, err, premium.ErrValidation)
		})
	}
}

func TestCalculateItemNegativeNetIsInvariantError(t *testing.T) {
	item := premium.RiskItem{
		SectionID:       "sec-1",
		ActualValue:     1000,
		ItemRate:        2,
		MultiplyRate:    1,
		FEADiscountRate: 150,
	}

	_, err := premium.CalculateItem(item, 100)
	require.Error(t, err)
	require.ErrorIs(t, err, premium.ErrInvariant)
}

func TestCalculateItemsTotals(t *testing.T) {
	items := []premium.RiskItem{
		{SectionID: "sec-1", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1, FEADiscountRate: 5},
		{SectionID: "sec-1", ActualValue: 50000, ItemRate: 1, MultiplyRate: 1},
	}

	calc, totals, err := premium.CalculateItems(items, 100)
	require.NoError(t, err)
	require.Len(t, calc, 2)
	require.Equal(t, 150000.00, totals.TotalActualValue)
	require.Equal(t, 2500.00, totals.TotalActualPremium)
	require.Equal(t, 2400.00, totals.TotalNetPremiumAfterDiscounts)
}

func TestCalculateItemsAbortsOnFirstInvalid(t *testing.T) {
	items := []premium.RiskItem{
		{SectionID: "sec-1", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1},
		{SectionID: "sec-1", ActualValue: -1, ItemRate: 2, MultiplyRate: 1},
	}

	_, _, err := premium.CalculateItems(items, 100)
	require.Error(t, err)

	var verr *premium.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "actualValue", verr.Field)
}
