package premium

// StockItem is a goods-in-trade sub-line nested under a risk item. It
// mirrors the parent item's rate and contributes its own sum insured and
// discount into the parent's totals without being aggregable on its own.
type StockItem struct {
	SumInsured   float64 `json:"sumInsured"`
	Rate         float64 `json:"rate"`
	DiscountRate float64 `json:"discountRate"`

	GrossPremium   float64 `json:"grossPremium"`
	DiscountAmount float64 `json:"discountAmount"`
	NetPremium     float64 `json:"netPremium"`
}

// RiskItem is a single insurable item inside a proposal section. Items
// carry no stable primary key; the combination of section, SMI code,
// description and actual value is only good enough for matching.
//
// The block of derived fields is authoritative calculator output and is
// written exclusively by calculation results flowing through the
// reconciliation merger. Everything else is owned by the editing session.
type RiskItem struct {
	ItemNo          int        `json:"itemNo"`
	SectionID       string     `json:"sectionId"`
	SMICode         string     `json:"smiCode"`
	ItemDescription string     `json:"itemDescription"`
	ActualValue     float64    `json:"actualValue"`
	ItemRate        float64    `json:"itemRate"`
	MultiplyRate    float64    `json:"multiplyRate"`
	FEADiscountRate float64    `json:"feaDiscountRate"`
	Stock           *StockItem `json:"stock,omitempty"`

	// Derived fields, calculator output only.
	ActualPremium            float64 `json:"actualPremium"`
	ActualPremiumFormula     string  `json:"actualPremiumFormula"`
	TotalSumInsured          float64 `json:"totalSumInsured"`
	TotalGrossPremium        float64 `json:"totalGrossPremium"`
	StockDiscountAmount      float64 `json:"stockDiscountAmount"`
	FEADiscountAmount        float64 `json:"feaDiscountAmount"`
	NetPremiumAfterDiscounts float64 `json:"netPremiumAfterDiscounts"`
	ShareValue               float64 `json:"shareValue"`
	PremiumValue             float64 `json:"premiumValue"`

	// Locally owned UI state, never touched by merges.
	Collapsed bool `json:"collapsed,omitempty"`
}

// Calculated reports whether the item already carries calculator output.
func (it RiskItem) Calculated() bool {
	return it.ActualPremium != 0
}

// AdjustmentKind distinguishes premium reductions from surcharges.
type AdjustmentKind string

const (
	// KindDiscount reduces the running premium.
	KindDiscount AdjustmentKind = "discount"
	// KindLoading increases the running premium.
	KindLoading AdjustmentKind = "loading"
)

// Adjustment is one named percentage step in an adjustment pass.
type Adjustment struct {
	Name string         `json:"name"`
	Rate float64        `json:"rate"`
	Kind AdjustmentKind `json:"kind"`
}

// AdjustmentStep records one applied adjustment in the audit trail.
type AdjustmentStep struct {
	Name                   string  `json:"name"`
	Rate                   float64 `json:"rate"`
	Amount                 float64 `json:"amount"`
	PremiumAfterAdjustment float64 `json:"premiumAfterAdjustment"`
}

// AdjustmentResult is the ordered audit trail of a full adjustment run.
// It is produced fresh on every run and never partially mutated.
type AdjustmentResult struct {
	StartingPremium  float64          `json:"startingPremium"`
	DiscountsApplied []AdjustmentStep `json:"discountsApplied"`
	LoadingsApplied  []AdjustmentStep `json:"loadingsApplied"`
	FinalNetPremium  float64          `json:"finalNetPremium"`
}

// SectionRates is the flat rate set an underwriter enters for one section.
// Zero rates are skipped when the ordered adjustment list is built.
type SectionRates struct {
	SpecialDiscountRate    float64 `json:"specialDiscountRate"`
	DeductibleDiscountRate float64 `json:"deductibleDiscountRate"`
	SpreadDiscountRate     float64 `json:"spreadDiscountRate"`
	LTADiscountRate        float64 `json:"ltaDiscountRate"`
	OtherDiscountsRate     float64 `json:"otherDiscountsRate"`
	TheftLoadingRate       float64 `json:"theftLoadingRate"`
	SRCCLoadingRate        float64 `json:"srccLoadingRate"`
	OtherLoadingsRate      float64 `json:"otherLoadingsRate"`
}

// SectionTotals aggregates the calculated items of one section.
type SectionTotals struct {
	SumInsured   float64 `json:"sumInsured"`
	GrossPremium float64 `json:"grossPremium"`
	NetPremium   float64 `json:"netPremium"`
}

// SectionFigures carries one section's authoritative post-adjustment
// figures into the proposal-wide aggregation.
type SectionFigures struct {
	SectionID     string  `json:"sectionId"`
	SectionName   string  `json:"sectionName"`
	Location      string  `json:"location"`
	SumInsured    float64 `json:"sectionSumInsured"`
	GrossPremium  float64 `json:"sectionPremium"`
	NetPremium    float64 `json:"sectionNetPremium"`
	RiskItemCount int     `json:"riskItemCount"`
}

// PremiumBasis selects which per-section premium the proposal aggregate
// sums. Callers must be explicit; there is no default.
type PremiumBasis string

const (
	// BasisNet sums each section's net premium after adjustments.
	BasisNet PremiumBasis = "net"
	// BasisGross sums each section's gross premium.
	BasisGross PremiumBasis = "gross"
)

// ProposalAggregate is the proposal-wide rollup of all sections.
type ProposalAggregate struct {
	TotalSumInsured       float64          `json:"totalSumInsured"`
	TotalAggregatePremium float64          `json:"totalAggregatePremium"`
	SectionCount          int              `json:"sectionCount"`
	Sections              []SectionFigures `json:"sections"`
}

// ProRataResult scales a net premium by elapsed cover days.
type ProRataResult struct {
	NetPremiumDue  float64 `json:"netPremiumDue"`
	ProRataPremium float64 `json:"proRataPremium"`
	PremiumDue     float64 `json:"premiumDue"`
	CoverDays      int     `json:"coverDays"`
	IsProRated     bool    `json:"isProRated"`
}
