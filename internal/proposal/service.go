package proposal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-polis/internal/lock"
	"github.com/noah-isme/backend-polis/internal/obs"
	"github.com/noah-isme/backend-polis/internal/premium"
	"github.com/noah-isme/backend-polis/internal/reconcile"
)

var (
	// ErrExists indicates an editing session is already open for the proposal.
	ErrExists = errors.New("proposal session already exists")
	// ErrSectionNotFound indicates the section is not part of the session.
	ErrSectionNotFound = errors.New("section not found")
	// ErrSectionExists indicates the section was already added.
	ErrSectionExists = errors.New("section already exists")
	// ErrItemNotFound indicates no risk item carries the given number.
	ErrItemNotFound = errors.New("risk item not found")
	// ErrStaleResult marks a calculation response that arrived behind the
	// last applied sequence number. It is informational: the response is
	// dropped, nothing is wrong with the session.
	ErrStaleResult = errors.New("stale calculation result discarded")
	// ErrInvalidInput is returned when a payload fails session-level validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Service is the single entry point for mutating a proposal editing
// session. Every mutation runs under the per-proposal lock so merges and
// user edits never interleave.
type Service struct {
	Store   Store
	Locks   lock.Locker
	LockTTL time.Duration
	Tasks   *asynq.Client
	Queue   string
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// CreateParams opens a new editing session.
type CreateParams struct {
	ProposalNo     string
	SubRisk        string
	ProportionRate float64
	CoverDays      int
}

// Create opens an editing session for a proposal.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if strings.TrimSpace(p.ProposalNo) == "" {
		return nil, fmt.Errorf("proposalNo is required: %w", ErrInvalidInput)
	}
	if p.ProportionRate <= 0 || p.ProportionRate > 100 || math.IsNaN(p.ProportionRate) {
		return nil, fmt.Errorf("proportionRate must be within (0, 100]: %w", ErrInvalidInput)
	}
	if p.CoverDays <= 0 {
		return nil, fmt.Errorf("coverDays must be positive: %w", ErrInvalidInput)
	}

	var sess *Session
	err := s.Locks.WithLock(ctx, lock.ProposalKey(p.ProposalNo), s.lockTTL(), func(ctx context.Context) error {
		exists, err := s.Store.Exists(ctx, p.ProposalNo)
		if err != nil {
			return err
		}
		if exists {
			return ErrExists
		}
		now := s.now()
		sess = &Session{
			ProposalNo:     p.ProposalNo,
			SubRisk:        p.SubRisk,
			ProportionRate: p.ProportionRate,
			CoverDays:      p.CoverDays,
			Sections:       []Section{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.Store.Save(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the current session snapshot.
func (s *Service) Get(ctx context.Context, proposalNo string) (*Session, error) {
	return s.Store.Get(ctx, proposalNo)
}

// update applies fn to the session under the proposal lock and persists
// the result. fn failures leave the stored session untouched.
func (s *Service) update(ctx context.Context, proposalNo string, fn func(*Session) error) (*Session, error) {
	var sess *Session
	err := s.Locks.WithLock(ctx, lock.ProposalKey(proposalNo), s.lockTTL(), func(ctx context.Context) error {
		loaded, err := s.Store.Get(ctx, proposalNo)
		if err != nil {
			return err
		}
		if err := fn(loaded); err != nil {
			return err
		}
		loaded.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, loaded); err != nil {
			return err
		}
		sess = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AddSectionParams describes a catalog section joining the session.
type AddSectionParams struct {
	SectionID   string
	SectionName string
	Location    string
}

// AddSection appends a section to the session.
func (s *Service) AddSection(ctx context.Context, proposalNo string, p AddSectionParams) (*Session, error) {
	if strings.TrimSpace(p.SectionID) == "" {
		return nil, fmt.Errorf("sectionId is required: %w", ErrInvalidInput)
	}
	return s.update(ctx, proposalNo, func(sess *Session) error {
		if sess.FindSection(p.SectionID) != nil {
			return ErrSectionExists
		}
		sess.Sections = append(sess.Sections, Section{
			SectionID:   p.SectionID,
			SectionName: p.SectionName,
			Location:    p.Location,
			Items:       []premium.RiskItem{},
		})
		return nil
	})
}

// AddItem appends a risk item with zeroed derived fields. The edit layer
// accepts zero values; negative money is rejected here rather than being
// coerced.
func (s *Service) AddItem(ctx context.Context, proposalNo, sectionID string, item premium.RiskItem) (*Session, error) {
	if item.ActualValue < 0 || item.ItemRate < 0 || item.MultiplyRate < 0 || item.FEADiscountRate < 0 {
		return nil, fmt.Errorf("rates and values must not be negative: %w", ErrInvalidInput)
	}
	return s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		item.SectionID = sec.SectionID
		item.ItemNo = len(sec.Items) + 1
		clearDerived(&item)
		sec.Items = append(sec.Items, item)
		return sec.refresh()
	})
}

// ItemEdit patches locally-owned fields of a risk item. Derived fields
// are calculator output and cannot be edited.
type ItemEdit struct {
	SMICode         *string
	ItemDescription *string
	ActualValue     *float64
	ItemRate        *float64
	MultiplyRate    *float64
	FEADiscountRate *float64
	Stock           *premium.StockItem
	RemoveStock     bool
	Collapsed       *bool
}

// UpdateItem applies a user edit. An outstanding calculation request is
// not cancelled; its response merges later without clobbering this edit.
func (s *Service) UpdateItem(ctx context.Context, proposalNo, sectionID string, itemNo int, edit ItemEdit) (*Session, error) {
	return s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		item := findItem(sec, itemNo)
		if item == nil {
			return ErrItemNotFound
		}
		if edit.SMICode != nil {
			item.SMICode = *edit.SMICode
		}
		if edit.ItemDescription != nil {
			item.ItemDescription = *edit.ItemDescription
		}
		if edit.ActualValue != nil {
			if *edit.ActualValue < 0 {
				return fmt.Errorf("actualValue must not be negative: %w", ErrInvalidInput)
			}
			item.ActualValue = *edit.ActualValue
		}
		if edit.ItemRate != nil {
			if *edit.ItemRate < 0 {
				return fmt.Errorf("itemRate must not be negative: %w", ErrInvalidInput)
			}
			item.ItemRate = *edit.ItemRate
		}
		if edit.MultiplyRate != nil {
			item.MultiplyRate = *edit.MultiplyRate
		}
		if edit.FEADiscountRate != nil {
			item.FEADiscountRate = *edit.FEADiscountRate
		}
		if edit.RemoveStock {
			item.Stock = nil
		} else if edit.Stock != nil {
			stock := *edit.Stock
			item.Stock = &stock
		}
		if edit.Collapsed != nil {
			item.Collapsed = *edit.Collapsed
		}
		return sec.refresh()
	})
}

// RemoveItem deletes a risk item and renumbers the remainder.
func (s *Service) RemoveItem(ctx context.Context, proposalNo, sectionID string, itemNo int) (*Session, error) {
	return s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		idx := -1
		for i := range sec.Items {
			if sec.Items[i].ItemNo == itemNo {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrItemNotFound
		}
		sec.Items = append(sec.Items[:idx], sec.Items[idx+1:]...)
		reconcile.Renumber(sec.Items)
		return sec.refresh()
	})
}

// SetSectionRates replaces a section's adjustment rate set and re-runs
// the section adjustment pass.
func (s *Service) SetSectionRates(ctx context.Context, proposalNo, sectionID string, rates premium.SectionRates) (*Session, error) {
	return s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		sec.Rates = rates
		return sec.refresh()
	})
}

// SetProposalRates replaces the proposal-scope adjustment rates.
func (s *Service) SetProposalRates(ctx context.Context, proposalNo string, otherDiscounts, otherLoadings float64) (*Session, error) {
	if otherDiscounts < 0 || otherLoadings < 0 {
		return nil, fmt.Errorf("adjustment rates must not be negative: %w", ErrInvalidInput)
	}
	return s.update(ctx, proposalNo, func(sess *Session) error {
		sess.OtherDiscountsRate = otherDiscounts
		sess.OtherLoadingsRate = otherLoadings
		return nil
	})
}

// EnqueueCalculation reserves the next sequence number for the section
// and schedules an asynchronous calculation batch. The sequence tags the
// eventual response; a response behind LastAppliedSeq will be discarded.
func (s *Service) EnqueueCalculation(ctx context.Context, proposalNo, sectionID string) (int64, error) {
	var seq int64
	_, err := s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		sec.NextSeq++
		seq = sec.NextSeq
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.Tasks != nil {
		task, err := NewCalculateSectionTask(CalculateSectionPayload{
			ProposalNo: proposalNo,
			SectionID:  sectionID,
			Seq:        seq,
		})
		if err != nil {
			return 0, err
		}
		if _, err := s.Tasks.EnqueueContext(ctx, task, asynq.Queue(s.queue())); err != nil {
			return 0, fmt.Errorf("enqueue calculation: %w", err)
		}
	}
	s.Logger.Info().Str("proposal_no", proposalNo).Str("section_id", sectionID).Int64("seq", seq).Msg("calculation enqueued")
	return seq, nil
}

// EnqueueAll schedules a calculation batch for every section and returns
// the sequence number issued per section.
func (s *Service) EnqueueAll(ctx context.Context, proposalNo string) (map[string]int64, error) {
	sess, err := s.Store.Get(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	seqs := make(map[string]int64, len(sess.Sections))
	for _, sec := range sess.Sections {
		seq, err := s.EnqueueCalculation(ctx, proposalNo, sec.SectionID)
		if err != nil {
			return seqs, err
		}
		seqs[sec.SectionID] = seq
	}
	return seqs, nil
}

// ApplyResults folds a calculated batch into the section under the
// proposal lock, enforcing the sequence discipline, and recomputes the
// section aggregates from the merged items. Server-reported totals are
// only cross-checked against the local sums, never adopted.
func (s *Service) ApplyResults(ctx context.Context, proposalNo, sectionID string, seq int64, items []premium.RiskItem, serverTotals *premium.BatchTotals) (*reconcile.Report, error) {
	var report reconcile.Report
	_, err := s.update(ctx, proposalNo, func(sess *Session) error {
		sec := sess.FindSection(sectionID)
		if sec == nil {
			return ErrSectionNotFound
		}
		if seq > 0 && seq <= sec.LastAppliedSeq {
			if obs.StaleResultsDiscarded != nil {
				obs.StaleResultsDiscarded.Inc()
			}
			s.Logger.Info().
				Str("proposal_no", proposalNo).
				Str("section_id", sectionID).
				Int64("seq", seq).
				Int64("last_applied_seq", sec.LastAppliedSeq).
				Msg("stale calculation result discarded")
			return ErrStaleResult
		}

		sec.Items, report = reconcile.MergeBatch(sec.Items, items)
		if seq > sec.LastAppliedSeq {
			sec.LastAppliedSeq = seq
		}
		if err := sec.refresh(); err != nil {
			return err
		}

		s.recordMergeOutcomes(proposalNo, sectionID, report)
		if serverTotals != nil {
			s.crossCheckTotals(proposalNo, sectionID, sec, *serverTotals)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) recordMergeOutcomes(proposalNo, sectionID string, report reconcile.Report) {
	for _, out := range report.Outcomes {
		if obs.MergeOutcomesTotal != nil {
			obs.MergeOutcomesTotal.WithLabelValues(string(out.Rule)).Inc()
		}
		if out.Err != nil {
			s.Logger.Warn().
				Str("proposal_no", proposalNo).
				Str("section_id", sectionID).
				Err(out.Err).
				Msg("calculated item skipped")
		}
	}
	if report.Appended > 0 {
		if obs.MergeAppendsTotal != nil {
			obs.MergeAppendsTotal.Add(float64(report.Appended))
		}
		s.Logger.Debug().
			Str("proposal_no", proposalNo).
			Str("section_id", sectionID).
			Int("appended", report.Appended).
			Msg("unmatched calculated items appended")
	}
}

// crossCheckTotals compares server-reported batch totals against the
// local sums. Divergence is logged, not adopted.
func (s *Service) crossCheckTotals(proposalNo, sectionID string, sec *Section, totals premium.BatchTotals) {
	var localPremium float64
	for _, it := range sec.Items {
		localPremium += it.ActualPremium
	}
	if diff := math.Abs(localPremium - totals.TotalActualPremium); diff > 0.01 {
		s.Logger.Warn().
			Str("proposal_no", proposalNo).
			Str("section_id", sectionID).
			Float64("local_premium", localPremium).
			Float64("server_premium", totals.TotalActualPremium).
			Msg("server totals diverge from local aggregation")
	}
}

// Summary is the proposal-wide rollup returned to callers.
type Summary struct {
	Aggregate  premium.ProposalAggregate `json:"aggregate"`
	Adjustment premium.AdjustmentResult  `json:"adjustment"`
	ProRata    *premium.ProRataResult    `json:"proRata,omitempty"`
}

// Summarize aggregates all sections, runs the proposal-scope adjustment
// pass and the pro-rata scaling for the session's cover period.
func (s *Service) Summarize(ctx context.Context, proposalNo string) (*Summary, error) {
	sess, err := s.Store.Get(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	figures := make([]premium.SectionFigures, 0, len(sess.Sections))
	for i := range sess.Sections {
		figures = append(figures, sess.Sections[i].Figures())
	}
	aggregate, err := premium.AggregateProposal(figures, premium.BasisNet)
	if err != nil {
		return nil, err
	}
	adjustment, err := premium.ApplyAdjustments(aggregate.TotalAggregatePremium,
		premium.ProposalAdjustments(sess.OtherDiscountsRate, sess.OtherLoadingsRate))
	if err != nil {
		return nil, err
	}
	summary := &Summary{Aggregate: aggregate, Adjustment: adjustment}
	if adjustment.FinalNetPremium > 0 {
		proRata, err := premium.ProRata(adjustment.FinalNetPremium, sess.CoverDays)
		if err != nil {
			return nil, err
		}
		summary.ProRata = &proRata
	}
	return summary, nil
}

func (s *Service) queue() string {
	if s == nil || strings.TrimSpace(s.Queue) == "" {
		return "default"
	}
	return s.Queue
}

func findItem(sec *Section, itemNo int) *premium.RiskItem {
	for i := range sec.Items {
		if sec.Items[i].ItemNo == itemNo {
			return &sec.Items[i]
		}
	}
	return nil
}

func clearDerived(item *premium.RiskItem) {
	item.ActualPremium = 0
	item.ActualPremiumFormula = ""
	item.TotalSumInsured = 0
	item.TotalGrossPremium = 0
	item.StockDiscountAmount = 0
	item.FEADiscountAmount = 0
	item.NetPremiumAfterDiscounts = 0
	item.ShareValue = 0
	item.PremiumValue = 0
	if item.Stock != nil {
		item.Stock.GrossPremium = 0
		item.Stock.DiscountAmount = 0
		item.Stock.NetPremium = 0
	}
}
