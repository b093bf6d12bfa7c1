package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-polis/internal/obs"
	"github.com/noah-isme/backend-polis/internal/premium"
	"github.com/noah-isme/backend-polis/internal/rater"
)

// TaskCalculateSection recalculates every risk item in one section.
const TaskCalculateSection = "calc:section"

// CalculateSectionPayload is the task payload for a section batch. Seq is
// the sequence number reserved at enqueue time; the apply path uses it to
// drop results that were overtaken by a newer request.
type CalculateSectionPayload struct {
	ProposalNo string `json:"proposalNo"`
	SectionID  string `json:"sectionId"`
	Seq        int64  `json:"seq"`
}

// NewCalculateSectionTask builds the asynq task for a section batch.
func NewCalculateSectionTask(p CalculateSectionPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", TaskCalculateSection, err)
	}
	return asynq.NewTask(TaskCalculateSection, payload, asynq.MaxRetry(3)), nil
}

// CalculationWorker consumes calculation tasks. Batches run through the
// local calculator unless an external rater is configured, in which case
// the rater's figures are taken as the batch result and merged the same
// way.
type CalculationWorker struct {
	Service *Service
	Rater   *rater.Client
	Logger  zerolog.Logger
}

// Register attaches the worker's handlers to an asynq mux.
func (w *CalculationWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskCalculateSection, w.HandleCalculateSection)
}

// HandleCalculateSection loads the section snapshot, calculates the
// batch, and folds the results back into the session. A stale sequence is
// an expected race, not a failure: the task succeeds and the result is
// dropped.
func (w *CalculationWorker) HandleCalculateSection(ctx context.Context, t *asynq.Task) error {
	var p CalculateSectionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TaskCalculateSection, err, asynq.SkipRetry)
	}

	started := time.Now()
	outcome := "ok"
	defer func() {
		if obs.CalcBatchesTotal != nil {
			obs.CalcBatchesTotal.WithLabelValues(outcome).Inc()
		}
		if obs.CalcBatchDuration != nil {
			obs.CalcBatchDuration.WithLabelValues(outcome).Observe(float64(time.Since(started).Milliseconds()))
		}
	}()

	sess, err := w.Service.Get(ctx, p.ProposalNo)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Session expired while the task sat in the queue.
			w.Logger.Info().Str("proposal_no", p.ProposalNo).Msg("session gone, dropping calculation task")
			outcome = "dropped"
			return nil
		}
		outcome = "error"
		return err
	}
	sec := sess.FindSection(p.SectionID)
	if sec == nil {
		w.Logger.Info().Str("proposal_no", p.ProposalNo).Str("section_id", p.SectionID).Msg("section gone, dropping calculation task")
		outcome = "dropped"
		return nil
	}

	items, totals, err := w.calculate(ctx, sess, sec)
	if err != nil {
		outcome = "error"
		if errors.Is(err, premium.ErrValidation) {
			// Bad inputs will not improve on retry.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if _, err := w.Service.ApplyResults(ctx, p.ProposalNo, p.SectionID, p.Seq, items, totals); err != nil {
		if errors.Is(err, ErrStaleResult) {
			w.Logger.Info().
				Str("proposal_no", p.ProposalNo).
				Str("section_id", p.SectionID).
				Int64("seq", p.Seq).
				Msg("calculation overtaken by newer request")
			outcome = "stale"
			return nil
		}
		outcome = "error"
		return err
	}
	return nil
}

func (w *CalculationWorker) calculate(ctx context.Context, sess *Session, sec *Section) ([]premium.RiskItem, *premium.BatchTotals, error) {
	if w.Rater != nil {
		resp, err := w.Rater.CalculateSection(ctx, rater.SectionRequest{
			ProposalNo:     sess.ProposalNo,
			SectionID:      sec.SectionID,
			ProportionRate: sess.ProportionRate,
			Items:          sec.Items,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("external rater: %w", err)
		}
		return resp.Items, &resp.Totals, nil
	}
	items, totals, err := premium.CalculateItems(sec.Items, sess.ProportionRate)
	if err != nil {
		return nil, nil, err
	}
	return items, &totals, nil
}
