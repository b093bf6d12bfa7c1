// Package reconcile folds batches of authoritative calculation results
// back into a locally edited, order-preserving risk item list. Local items
// carry no stable primary key, so correlation runs through a prioritized
// matcher chain with an explicit append fallback.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-polis/internal/premium"
)

// ErrMalformedItem marks an incoming item that cannot be matched at all,
// such as one missing its section id. It fails that item only; the rest
// of the batch still merges.
var ErrMalformedItem = errors.New("malformed calculated item")

// Rule identifies which matcher resolved an incoming item.
type Rule string

const (
	// RuleExact matches on section id, SMI code and trimmed description.
	RuleExact Rule = "section-smi-description"
	// RuleSectionSMI matches on section id and SMI code alone.
	RuleSectionSMI Rule = "section-smi"
	// RuleSectionDescription matches on section id and trimmed description.
	RuleSectionDescription Rule = "section-description"
	// RuleNextUncalculated claims the first local item still awaiting its
	// first calculation result.
	RuleNextUncalculated Rule = "next-uncalculated"
	// RuleReplay recognises a result that was already applied on a
	// previous run of the same batch.
	RuleReplay Rule = "replay"
	// RuleAppend falls back to appending the incoming item as new.
	RuleAppend Rule = "append"
)

// Outcome records how one incoming item was handled.
type Outcome struct {
	Rule  Rule  `json:"rule"`
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// Report summarises a merge batch.
type Report struct {
	Merged   int       `json:"merged"`
	Appended int       `json:"appended"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// MergeBatch merges incoming calculated items into the local list and
// returns the updated list. Each incoming item is tried against the
// matcher chain in priority order, stopping at the first rule that yields
// exactly one unclaimed candidate. A matched local item is claimed for
// the rest of the batch, so a second incoming item that would hit the
// same candidate under a rule falls through to lower-priority rules or to
// append instead of overwriting the first merge.
//
// Merging overwrites only calculator-derived fields; everything the user
// owns, including edits made while the calculation was in flight, is left
// untouched. Applying the same batch twice yields the same final list.
func MergeBatch(local []premium.RiskItem, incoming []premium.RiskItem) ([]premium.RiskItem, Report) {
	report := Report{Outcomes: make([]Outcome, 0, len(incoming))}
	claimed := make(map[int]bool, len(incoming))

	for _, in := range incoming {
		if strings.TrimSpace(in.SectionID) == "" {
			report.Failed++
			report.Outcomes = append(report.Outcomes, Outcome{
				Rule:  RuleAppend,
				Index: -1,
				Err:   fmt.Errorf("missing section id: %w", ErrMalformedItem),
			})
			continue
		}

		rule, idx := match(local, claimed, in)
		if idx >= 0 {
			claimed[idx] = true
			mergeDerived(&local[idx], in)
			report.Merged++
			report.Outcomes = append(report.Outcomes, Outcome{Rule: rule, Index: idx})
			continue
		}

		appended := in
		appended.ItemNo = len(local) + 1
		local = append(local, appended)
		claimed[len(local)-1] = true
		report.Appended++
		report.Outcomes = append(report.Outcomes, Outcome{Rule: RuleAppend, Index: len(local) - 1})
	}
	return local, report
}

func match(local []premium.RiskItem, claimed map[int]bool, in premium.RiskItem) (Rule, int) {
	inDesc := strings.TrimSpace(in.ItemDescription)

	type matcher struct {
		rule Rule
		fn   func(premium.RiskItem) bool
	}
	chain := []matcher{
		{RuleExact, func(it premium.RiskItem) bool {
			return it.SectionID == in.SectionID && it.SMICode == in.SMICode &&
				strings.TrimSpace(it.ItemDescription) == inDesc
		}},
		{RuleSectionSMI, func(it premium.RiskItem) bool {
			return it.SectionID == in.SectionID && it.SMICode == in.SMICode
		}},
		{RuleSectionDescription, func(it premium.RiskItem) bool {
			return it.SectionID == in.SectionID && strings.TrimSpace(it.ItemDescription) == inDesc
		}},
	}

	for _, m := range chain {
		idx := -1
		count := 0
		for i := range local {
			if claimed[i] || !m.fn(local[i]) {
				continue
			}
			count++
			if idx < 0 {
				idx = i
			}
		}
		// A rule only resolves when it singles out one candidate;
		// ambiguity falls through to the next rule.
		if count == 1 {
			return m.rule, idx
		}
	}

	// Next uncalculated slot in the section.
	for i := range local {
		if claimed[i] {
			continue
		}
		if local[i].SectionID == in.SectionID && !local[i].Calculated() {
			return RuleNextUncalculated, i
		}
	}

	// Replay guard: the same result was applied by an earlier run of this
	// batch, so re-applying must not append a duplicate.
	for i := range local {
		if claimed[i] {
			continue
		}
		if local[i].SectionID == in.SectionID && sameDerived(local[i], in) {
			return RuleReplay, i
		}
	}

	return RuleAppend, -1
}

// mergeDerived overwrites the authoritative calculator output on dst.
// Identity fields are adopted only when the local ones are blank (an item
// matched through the uncalculated slot never had them), which keeps
// replays re-matching the same item instead of appending.
func mergeDerived(dst *premium.RiskItem, src premium.RiskItem) {
	dst.ActualPremium = src.ActualPremium
	dst.ActualPremiumFormula = src.ActualPremiumFormula
	dst.TotalSumInsured = src.TotalSumInsured
	dst.TotalGrossPremium = src.TotalGrossPremium
	dst.StockDiscountAmount = src.StockDiscountAmount
	dst.FEADiscountAmount = src.FEADiscountAmount
	dst.NetPremiumAfterDiscounts = src.NetPremiumAfterDiscounts
	dst.ShareValue = src.ShareValue
	dst.PremiumValue = src.PremiumValue

	if dst.SMICode == "" {
		dst.SMICode = src.SMICode
	}
	if strings.TrimSpace(dst.ItemDescription) == "" {
		dst.ItemDescription = src.ItemDescription
	}
	if dst.Stock != nil && src.Stock != nil {
		dst.Stock.Rate = src.Stock.Rate
		dst.Stock.GrossPremium = src.Stock.GrossPremium
		dst.Stock.DiscountAmount = src.Stock.DiscountAmount
		dst.Stock.NetPremium = src.Stock.NetPremium
	}
}

func sameDerived(local, in premium.RiskItem) bool {
	return local.ActualPremium == in.ActualPremium &&
		local.TotalGrossPremium == in.TotalGrossPremium &&
		local.NetPremiumAfterDiscounts == in.NetPremiumAfterDiscounts &&
		local.ShareValue == in.ShareValue &&
		local.PremiumValue == in.PremiumValue
}

// Renumber rewrites itemNo sequentially after an explicit removal.
func Renumber(items []premium.RiskItem) {
	for i := range items {
		items[i].ItemNo = i + 1
	}
}
