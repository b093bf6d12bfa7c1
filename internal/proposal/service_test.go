package proposal_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/lock"
	"github.com/noah-isme/backend-polis/internal/premium"
	"github.com/noah-isme/backend-polis/internal/proposal"
)

func newService(t *testing.T) *proposal.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &proposal.Service{
		Store:  proposal.Store{R: client, TTL: time.Hour},
		Locks:  lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond},
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func openSession(t *testing.T, svc *proposal.Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Create(ctx, proposal.CreateParams{
		ProposalNo:     "P-100",
		SubRisk:        "fire",
		ProportionRate: 100,
		CoverDays:      365,
	})
	require.NoError(t, err)
	_, err = svc.AddSection(ctx, "P-100", proposal.AddSectionParams{
		SectionID:   "S1",
		SectionName: "Building",
		Location:    "Jakarta",
	})
	require.NoError(t, err)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)

	_, err := svc.Create(context.Background(), proposal.CreateParams{
		ProposalNo:     "P-100",
		ProportionRate: 100,
		CoverDays:      365,
	})
	require.ErrorIs(t, err, proposal.ErrExists)

	_, err = svc.AddSection(context.Background(), "P-100", proposal.AddSectionParams{SectionID: "S1"})
	require.ErrorIs(t, err, proposal.ErrSectionExists)
}

func TestCreateValidatesInputs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, proposal.CreateParams{ProposalNo: "", ProportionRate: 100, CoverDays: 365})
	require.ErrorIs(t, err, proposal.ErrInvalidInput)

	_, err = svc.Create(ctx, proposal.CreateParams{ProposalNo: "P-1", ProportionRate: 0, CoverDays: 365})
	require.ErrorIs(t, err, proposal.ErrInvalidInput)

	_, err = svc.Create(ctx, proposal.CreateParams{ProposalNo: "P-1", ProportionRate: 100, CoverDays: 0})
	require.ErrorIs(t, err, proposal.ErrInvalidInput)
}

func TestAddUpdateRemoveItem(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode:         "BLD",
		ItemDescription: "warehouse",
		ActualValue:     100000,
		ItemRate:        2,
		MultiplyRate:    1,
	})
	require.NoError(t, err)
	sess, err = svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode:     "MCH",
		ActualValue: 50000,
		ItemRate:    1,
	})
	require.NoError(t, err)
	sec := sess.FindSection("S1")
	require.Len(t, sec.Items, 2)
	require.Equal(t, 1, sec.Items[0].ItemNo)
	require.Equal(t, 2, sec.Items[1].ItemNo)

	newDesc := "main warehouse"
	sess, err = svc.UpdateItem(ctx, "P-100", "S1", 1, proposal.ItemEdit{ItemDescription: &newDesc})
	require.NoError(t, err)
	require.Equal(t, "main warehouse", sess.FindSection("S1").Items[0].ItemDescription)

	sess, err = svc.RemoveItem(ctx, "P-100", "S1", 1)
	require.NoError(t, err)
	sec = sess.FindSection("S1")
	require.Len(t, sec.Items, 1)
	require.Equal(t, 1, sec.Items[0].ItemNo)
	require.Equal(t, "MCH", sec.Items[0].SMICode)

	_, err = svc.RemoveItem(ctx, "P-100", "S1", 9)
	require.ErrorIs(t, err, proposal.ErrItemNotFound)
}

func TestEnqueueCalculationIssuesMonotonicSequences(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	seq1, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)
	seq2, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq1)
	require.Equal(t, int64(2), seq2)

	_, err = svc.EnqueueCalculation(ctx, "P-100", "missing")
	require.ErrorIs(t, err, proposal.ErrSectionNotFound)
}

func calculated(t *testing.T, items []premium.RiskItem) ([]premium.RiskItem, premium.BatchTotals) {
	t.Helper()
	out, totals, err := premium.CalculateItems(items, 100)
	require.NoError(t, err)
	return out, totals
}

func TestApplyResultsDiscardsStaleSequence(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode: "BLD", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1,
	})
	require.NoError(t, err)

	seq1, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)
	seq2, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)

	fresh, totals := calculated(t, sess.FindSection("S1").Items)
	_, err = svc.ApplyResults(ctx, "P-100", "S1", seq2, fresh, &totals)
	require.NoError(t, err)

	// A late response from the older request must not disturb the session.
	stale := make([]premium.RiskItem, len(fresh))
	copy(stale, fresh)
	stale[0].ActualPremium = 999
	_, err = svc.ApplyResults(ctx, "P-100", "S1", seq1, stale, nil)
	require.ErrorIs(t, err, proposal.ErrStaleResult)

	sess, err = svc.Get(ctx, "P-100")
	require.NoError(t, err)
	sec := sess.FindSection("S1")
	require.Equal(t, int64(seq2), sec.LastAppliedSeq)
	require.Equal(t, 2000.00, sec.Items[0].ActualPremium)
	require.Equal(t, 2000.00, sec.NetPremium)
	require.Equal(t, 100000.00, sec.SumInsured)
}

func TestApplyResultsPreservesConcurrentEdits(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode: "BLD", ItemDescription: "warehouse", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1,
	})
	require.NoError(t, err)
	seq, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)

	// Snapshot taken at enqueue time, before the user keeps editing.
	snapshot, totals := calculated(t, sess.FindSection("S1").Items)

	edited := 120000.00
	_, err = svc.UpdateItem(ctx, "P-100", "S1", 1, proposal.ItemEdit{ActualValue: &edited})
	require.NoError(t, err)

	_, err = svc.ApplyResults(ctx, "P-100", "S1", seq, snapshot, &totals)
	require.NoError(t, err)

	sess, err = svc.Get(ctx, "P-100")
	require.NoError(t, err)
	item := sess.FindSection("S1").Items[0]
	// The edit survives; only derived figures come from the response.
	require.Equal(t, 120000.00, item.ActualValue)
	require.Equal(t, 2000.00, item.ActualPremium)
}

func TestApplyResultsRunsSectionAdjustments(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode: "BLD", ActualValue: 100000, ItemRate: 1, MultiplyRate: 1,
	})
	require.NoError(t, err)
	_, err = svc.SetSectionRates(ctx, "P-100", "S1", premium.SectionRates{
		SpecialDiscountRate: 10,
		TheftLoadingRate:    10,
	})
	require.NoError(t, err)

	seq, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)
	items, totals := calculated(t, sess.FindSection("S1").Items)
	_, err = svc.ApplyResults(ctx, "P-100", "S1", seq, items, &totals)
	require.NoError(t, err)

	sess, err = svc.Get(ctx, "P-100")
	require.NoError(t, err)
	sec := sess.FindSection("S1")
	// 1000 - 10% = 900, + 10% = 990.
	require.NotNil(t, sec.Adjustment)
	require.Equal(t, 990.00, sec.NetPremium)
}

func TestSummarize(t *testing.T) {
	svc := newService(t)
	openSession(t, svc)
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "P-100", "S1", premium.RiskItem{
		SMICode: "BLD", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1, FEADiscountRate: 5,
	})
	require.NoError(t, err)
	seq, err := svc.EnqueueCalculation(ctx, "P-100", "S1")
	require.NoError(t, err)
	items, totals := calculated(t, sess.FindSection("S1").Items)
	_, err = svc.ApplyResults(ctx, "P-100", "S1", seq, items, &totals)
	require.NoError(t, err)

	summary, err := svc.Summarize(ctx, "P-100")
	require.NoError(t, err)
	require.Equal(t, 1900.00, summary.Aggregate.TotalAggregatePremium)
	require.Equal(t, 1900.00, summary.Adjustment.FinalNetPremium)
	require.NotNil(t, summary.ProRata)
	require.False(t, summary.ProRata.IsProRated)
	require.Equal(t, 1900.00, summary.ProRata.ProRataPremium)
}
