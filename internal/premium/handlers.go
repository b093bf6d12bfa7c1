package premium

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-polis/internal/common"
)

// Handler exposes the stateless calculation operations. Each endpoint is
// a pure function over its payload; no session state is touched.
type Handler struct {
	Validator *validator.Validate
}

func (h *Handler) validate(v any) error {
	if h == nil || h.Validator == nil {
		return nil
	}
	return h.Validator.Struct(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

// writeCalcError maps calculation failures onto the API error shape.
// Invalid inputs and broken computation invariants are distinct: the
// first is the caller's fault, the second means the figures cannot be
// trusted and nothing was produced.
func writeCalcError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", verr.Error(), map[string]any{
			"stage": verr.Stage,
			"field": verr.Field,
		})
		return
	}
	var ierr *InvariantError
	if errors.As(err, &ierr) {
		common.JSONError(w, http.StatusUnprocessableEntity, "COMPUTATION_INVARIANT", ierr.Error(), map[string]any{
			"stage": ierr.Stage,
			"value": ierr.Value,
		})
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

type riskItemsRequest struct {
	ProportionRate float64    `json:"proportionRate" validate:"gt=0,lte=100"`
	Items          []RiskItem `json:"items" validate:"required,min=1"`
}

// CalculateRiskItems runs the item calculator over a batch.
func (h *Handler) CalculateRiskItems(w http.ResponseWriter, r *http.Request) {
	var req riskItemsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	items, totals, err := CalculateItems(req.Items, req.ProportionRate)
	if err != nil {
		writeCalcError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"items":  items,
		"totals": totals,
	}})
}

type sectionAggregateRequest struct {
	Items []RiskItem `json:"items" validate:"required"`
}

// AggregateSectionItems sums calculated items into section totals.
func (h *Handler) AggregateSectionItems(w http.ResponseWriter, r *http.Request) {
	var req sectionAggregateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": AggregateSection(req.Items)})
}

type sectionAdjustmentRequest struct {
	NetPremium float64      `json:"netPremium" validate:"gte=0"`
	Rates      SectionRates `json:"rates"`
}

// AdjustSection cascades the section-scope discounts and loadings over a
// starting net premium.
func (h *Handler) AdjustSection(w http.ResponseWriter, r *http.Request) {
	var req sectionAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	result, err := ApplyAdjustments(req.NetPremium, SectionAdjustments(req.Rates))
	if err != nil {
		writeCalcError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type multiSectionRequest struct {
	Basis    PremiumBasis     `json:"basis" validate:"required"`
	Sections []SectionFigures `json:"sections" validate:"required"`
}

// AggregateSections rolls section figures up to proposal level.
func (h *Handler) AggregateSections(w http.ResponseWriter, r *http.Request) {
	var req multiSectionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	agg, err := AggregateProposal(req.Sections, req.Basis)
	if err != nil {
		writeCalcError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": agg})
}

type proposalAdjustmentRequest struct {
	AggregatePremium   float64 `json:"aggregatePremium" validate:"gte=0"`
	OtherDiscountsRate float64 `json:"otherDiscountsRate" validate:"gte=0,lte=100"`
	OtherLoadingsRate  float64 `json:"otherLoadingsRate" validate:"gte=0,lte=100"`
}

// AdjustProposal applies the proposal-scope discount and loading pass.
func (h *Handler) AdjustProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	result, err := ApplyAdjustments(req.AggregatePremium,
		ProposalAdjustments(req.OtherDiscountsRate, req.OtherLoadingsRate))
	if err != nil {
		writeCalcError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type proRataRequest struct {
	NetPremiumDue float64 `json:"netPremiumDue" validate:"gt=0"`
	CoverDays     int     `json:"coverDays" validate:"gt=0"`
}

// ProRataPremium scales an annual premium to the cover period.
func (h *Handler) ProRataPremium(w http.ResponseWriter, r *http.Request) {
	var req proRataRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	result, err := ProRata(req.NetPremiumDue, req.CoverDays)
	if err != nil {
		writeCalcError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}
