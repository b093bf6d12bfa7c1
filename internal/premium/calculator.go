package premium

import (
	"fmt"
	"math"
)

const stageRiskItem = "risk item calculator"

// BatchTotals summarises one calculated batch for the response envelope.
type BatchTotals struct {
	TotalActualValue              float64 `json:"totalActualValue"`
	TotalActualPremium            float64 `json:"totalActualPremium"`
	TotalNetPremiumAfterDiscounts float64 `json:"totalNetPremiumAfterDiscounts"`
}

// CalculateItem computes the derived premium fields of a single risk item
// against the proposal's co-insurance proportion rate. The input item is
// not mutated; a copy with the derived block filled in is returned.
//
// Identical inputs always produce byte-identical output.
func CalculateItem(it RiskItem, proportionRate float64) (RiskItem, error) {
	if err := validateItem(it, proportionRate); err != nil {
		return RiskItem{}, err
	}

	actualPremium := Round2(it.ActualValue * it.ItemRate / 100 * it.MultiplyRate)
	it.ActualPremium = actualPremium
	it.ActualPremiumFormula = fmt.Sprintf("%.2f x %.4f%% x %.2f = %.2f",
		it.ActualValue, it.ItemRate, it.MultiplyRate, actualPremium)

	it.TotalSumInsured = it.ActualValue
	it.TotalGrossPremium = actualPremium
	it.StockDiscountAmount = 0

	if it.Stock != nil {
		stock := *it.Stock
		stock.Rate = it.ItemRate
		stock.GrossPremium = Round2(stock.SumInsured * it.ItemRate / 100)
		stock.DiscountAmount = Round2(stock.GrossPremium * stock.DiscountRate / 100)
		stock.NetPremium = stock.GrossPremium - stock.DiscountAmount
		it.Stock = &stock

		it.TotalSumInsured = it.ActualValue + stock.SumInsured
		it.TotalGrossPremium = actualPremium + stock.GrossPremium
		it.StockDiscountAmount = stock.DiscountAmount
	}

	it.FEADiscountAmount = Round2(actualPremium * it.FEADiscountRate / 100)

	net := Round2(it.TotalGrossPremium - it.FEADiscountAmount - it.StockDiscountAmount)
	if net < 0 {
		return RiskItem{}, &InvariantError{
			Stage:  stageRiskItem,
			Detail: "net premium after discounts below zero",
			Value:  net,
		}
	}
	it.NetPremiumAfterDiscounts = net

	it.ShareValue = Round2(it.TotalSumInsured * proportionRate / 100)
	it.PremiumValue = Round2(net * proportionRate / 100)

	return it, nil
}

// CalculateItems runs CalculateItem over a batch and accumulates the
// response totals. The first invalid item aborts the batch; committed
// session state is never touched by a failed run.
func CalculateItems(items []RiskItem, proportionRate float64) ([]RiskItem, BatchTotals, error) {
	out := make([]RiskItem, 0, len(items))
	var totals BatchTotals
	for i, it := range items {
		calc, err := CalculateItem(it, proportionRate)
		if err != nil {
			return nil, BatchTotals{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		out = append(out, calc)
		totals.TotalActualValue += calc.ActualValue
		totals.TotalActualPremium += calc.ActualPremium
		totals.TotalNetPremiumAfterDiscounts += calc.NetPremiumAfterDiscounts
	}
	return out, totals, nil
}

func validateItem(it RiskItem, proportionRate float64) error {
	checks := []struct {
		field string
		value float64
	}{
		{"actualValue", it.ActualValue},
		{"itemRate", it.ItemRate},
		{"multiplyRate", it.MultiplyRate},
		{"feaDiscountRate", it.FEADiscountRate},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ValidationError{Stage: stageRiskItem, Field: c.field, Reason: "is not a number"}
		}
		if c.value < 0 {
			return &ValidationError{Stage: stageRiskItem, Field: c.field, Reason: "must not be negative"}
		}
	}
	if it.Stock != nil {
		if it.Stock.SumInsured < 0 || math.IsNaN(it.Stock.SumInsured) || math.IsInf(it.Stock.SumInsured, 0) {
			return &ValidationError{Stage: stageRiskItem, Field: "stock.sumInsured", Reason: "must be a non-negative number"}
		}
		if it.Stock.DiscountRate < 0 || math.IsNaN(it.Stock.DiscountRate) || math.IsInf(it.Stock.DiscountRate, 0) {
			return &ValidationError{Stage: stageRiskItem, Field: "stock.discountRate", Reason: "must be a non-negative number"}
		}
	}
	if proportionRate <= 0 || proportionRate > 100 || math.IsNaN(proportionRate) {
		return &ValidationError{Stage: stageRiskItem, Field: "proportionRate", Reason: "must be within (0, 100]"}
	}
	return nil
}
