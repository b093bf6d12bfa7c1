// Package proposal owns the mutable proposal-editing session: an ordered
// set of sections and risk items that user edits and asynchronous
// calculation results both flow into. Every mutation goes through one
// apply path that re-derives section and proposal aggregates, so derived
// sums never silently diverge from the items beneath them.
package proposal

import (
	"time"

	"github.com/noah-isme/backend-polis/internal/premium"
)

// Section is one product section inside an editing session. SectionID
// comes from an external catalog and is stable; items beneath it are not.
type Section struct {
	SectionID   string               `json:"sectionId"`
	SectionName string               `json:"sectionName"`
	Location    string               `json:"location"`
	Items       []premium.RiskItem   `json:"items"`
	Rates       premium.SectionRates `json:"rates"`

	// Authoritative aggregates, rebuilt from the items on every apply.
	SumInsured   float64                   `json:"sectionSumInsured"`
	GrossPremium float64                   `json:"sectionPremium"`
	NetPremium   float64                   `json:"sectionNetPremium"`
	Adjustment   *premium.AdjustmentResult `json:"adjustment,omitempty"`

	// Sequence discipline for in-flight calculation batches. A result
	// tagged with a sequence at or below LastAppliedSeq is stale and is
	// discarded rather than merged.
	LastAppliedSeq int64 `json:"lastAppliedSeq"`
	NextSeq        int64 `json:"nextSeq"`
}

// Session is the transient editing state for one proposal. It is stored
// as a single document so a per-proposal lock makes every
// read-modify-write atomic across the API and the calculation worker.
type Session struct {
	ProposalNo         string    `json:"proposalNo"`
	SubRisk            string    `json:"subRisk"`
	ProportionRate     float64   `json:"proportionRate"`
	CoverDays          int       `json:"coverDays"`
	OtherDiscountsRate float64   `json:"otherDiscountsRate"`
	OtherLoadingsRate  float64   `json:"otherLoadingsRate"`
	Sections           []Section `json:"sections"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// FindSection returns a pointer into the session's section list.
func (s *Session) FindSection(sectionID string) *Section {
	for i := range s.Sections {
		if s.Sections[i].SectionID == sectionID {
			return &s.Sections[i]
		}
	}
	return nil
}

// Figures snapshots the section for proposal-wide aggregation.
func (sec *Section) Figures() premium.SectionFigures {
	return premium.SectionFigures{
		SectionID:     sec.SectionID,
		SectionName:   sec.SectionName,
		Location:      sec.Location,
		SumInsured:    sec.SumInsured,
		GrossPremium:  sec.GrossPremium,
		NetPremium:    sec.NetPremium,
		RiskItemCount: len(sec.Items),
	}
}

// refresh recomputes the section aggregates from its current items and
// re-runs the section-scope adjustment pass. Section sums always come
// from the local items; server-reported totals are only a cross-check.
func (sec *Section) refresh() error {
	totals := premium.AggregateSection(sec.Items)
	sec.SumInsured = totals.SumInsured
	sec.GrossPremium = totals.GrossPremium

	adjustments := premium.SectionAdjustments(sec.Rates)
	if len(adjustments) == 0 {
		sec.Adjustment = nil
		sec.NetPremium = totals.NetPremium
		return nil
	}
	result, err := premium.ApplyAdjustments(totals.NetPremium, adjustments)
	if err != nil {
		return err
	}
	sec.Adjustment = &result
	sec.NetPremium = result.FinalNetPremium
	return nil
}
