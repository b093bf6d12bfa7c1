package proposal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-polis/internal/common"
	"github.com/noah-isme/backend-polis/internal/premium"
)

// Handler wires the proposal editing session to HTTP.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

func (h *Handler) validateStruct(v any) error {
	if h == nil || h.Validator == nil {
		return nil
	}
	return h.Validator.Struct(v)
}

// writeError maps session failures onto the API error shape.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "proposal session not found", nil)
	case errors.Is(err, ErrSectionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "section not found", nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "risk item not found", nil)
	case errors.Is(err, ErrExists), errors.Is(err, ErrSectionExists):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrStaleResult):
		// Informational: the session is intact, the response was simply late.
		common.JSONError(w, http.StatusConflict, "STALE_RESULT", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, premium.ErrValidation):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, premium.ErrInvariant):
		common.JSONError(w, http.StatusUnprocessableEntity, "COMPUTATION_INVARIANT", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process request", nil)
	}
}

type createRequest struct {
	ProposalNo     string  `json:"proposalNo" validate:"required"`
	SubRisk        string  `json:"subRisk"`
	ProportionRate float64 `json:"proportionRate" validate:"gt=0,lte=100"`
	CoverDays      int     `json:"coverDays" validate:"gt=0"`
}

// Create opens an editing session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "proposal service not configured", nil)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validateStruct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	sess, err := h.Svc.Create(r.Context(), CreateParams{
		ProposalNo:     req.ProposalNo,
		SubRisk:        req.SubRisk,
		ProportionRate: req.ProportionRate,
		CoverDays:      req.CoverDays,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sess})
}

// Get returns the session snapshot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "proposalNo"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

type addSectionRequest struct {
	SectionID   string `json:"sectionId" validate:"required"`
	SectionName string `json:"sectionName"`
	Location    string `json:"location"`
}

// AddSection appends a catalog section to the session.
func (h *Handler) AddSection(w http.ResponseWriter, r *http.Request) {
	var req addSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validateStruct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	sess, err := h.Svc.AddSection(r.Context(), chi.URLParam(r, "proposalNo"), AddSectionParams{
		SectionID:   req.SectionID,
		SectionName: req.SectionName,
		Location:    req.Location,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sess})
}

type addItemRequest struct {
	SMICode         string             `json:"smiCode"`
	ItemDescription string             `json:"itemDescription"`
	ActualValue     float64            `json:"actualValue" validate:"gte=0"`
	ItemRate        float64            `json:"itemRate" validate:"gte=0"`
	MultiplyRate    float64            `json:"multiplyRate" validate:"gte=0"`
	FEADiscountRate float64            `json:"feaDiscountRate" validate:"gte=0,lte=100"`
	Stock           *premium.StockItem `json:"stock"`
}

// AddItem appends a risk item to a section.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validateStruct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	sess, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"), premium.RiskItem{
		SMICode:         req.SMICode,
		ItemDescription: req.ItemDescription,
		ActualValue:     req.ActualValue,
		ItemRate:        req.ItemRate,
		MultiplyRate:    req.MultiplyRate,
		FEADiscountRate: req.FEADiscountRate,
		Stock:           req.Stock,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sess})
}

type updateItemRequest struct {
	SMICode         *string            `json:"smiCode"`
	ItemDescription *string            `json:"itemDescription"`
	ActualValue     *float64           `json:"actualValue"`
	ItemRate        *float64           `json:"itemRate"`
	MultiplyRate    *float64           `json:"multiplyRate"`
	FEADiscountRate *float64           `json:"feaDiscountRate"`
	Stock           *premium.StockItem `json:"stock"`
	RemoveStock     bool               `json:"removeStock"`
	Collapsed       *bool              `json:"collapsed"`
}

// UpdateItem patches the locally-owned fields of a risk item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemNo, err := strconv.Atoi(chi.URLParam(r, "itemNo"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item number", nil)
		return
	}
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	sess, err := h.Svc.UpdateItem(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"), itemNo, ItemEdit{
		SMICode:         req.SMICode,
		ItemDescription: req.ItemDescription,
		ActualValue:     req.ActualValue,
		ItemRate:        req.ItemRate,
		MultiplyRate:    req.MultiplyRate,
		FEADiscountRate: req.FEADiscountRate,
		Stock:           req.Stock,
		RemoveStock:     req.RemoveStock,
		Collapsed:       req.Collapsed,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// RemoveItem deletes a risk item and renumbers the remainder.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemNo, err := strconv.Atoi(chi.URLParam(r, "itemNo"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item number", nil)
		return
	}
	sess, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"), itemNo)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// SetSectionRates replaces a section's adjustment rate set.
func (h *Handler) SetSectionRates(w http.ResponseWriter, r *http.Request) {
	var rates premium.SectionRates
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	sess, err := h.Svc.SetSectionRates(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"), rates)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

type proposalRatesRequest struct {
	OtherDiscountsRate float64 `json:"otherDiscountsRate" validate:"gte=0,lte=100"`
	OtherLoadingsRate  float64 `json:"otherLoadingsRate" validate:"gte=0,lte=100"`
}

// SetProposalRates replaces the proposal-scope adjustment rates.
func (h *Handler) SetProposalRates(w http.ResponseWriter, r *http.Request) {
	var req proposalRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validateStruct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	sess, err := h.Svc.SetProposalRates(r.Context(), chi.URLParam(r, "proposalNo"), req.OtherDiscountsRate, req.OtherLoadingsRate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// CalculateSection schedules an asynchronous calculation batch for one
// section and returns the sequence number the response will carry.
func (h *Handler) CalculateSection(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Svc.EnqueueCalculation(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{"seq": seq}})
}

// CalculateAll schedules a calculation batch for every section.
func (h *Handler) CalculateAll(w http.ResponseWriter, r *http.Request) {
	seqs, err := h.Svc.EnqueueAll(r.Context(), chi.URLParam(r, "proposalNo"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{"seqs": seqs}})
}

type applyResultsRequest struct {
	Seq    int64                `json:"seq"`
	Items  []premium.RiskItem   `json:"items" validate:"required"`
	Totals *premium.BatchTotals `json:"totals"`
}

// ApplyResults folds an externally calculated batch into a section. The
// worker uses the same apply path internally; this endpoint exists for
// raters that push results back instead of being polled.
func (h *Handler) ApplyResults(w http.ResponseWriter, r *http.Request) {
	var req applyResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validateStruct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	report, err := h.Svc.ApplyResults(r.Context(), chi.URLParam(r, "proposalNo"), chi.URLParam(r, "sectionId"), req.Seq, req.Items, req.Totals)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// Summary returns the proposal-wide aggregate, adjustment and pro-rata
// figures.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Svc.Summarize(r.Context(), chi.URLParam(r, "proposalNo"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}
