package rater_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/premium"
	"github.com/noah-isme/backend-polis/internal/rater"
)

func TestCalculateSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/rate/section", r.URL.Path)

		var req rater.SectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "P-100", req.ProposalNo)
		require.Len(t, req.Items, 1)

		items, totals, err := premium.CalculateItems(req.Items, req.ProportionRate)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(rater.SectionResponse{Items: items, Totals: totals})
	}))
	defer srv.Close()

	client, err := rater.New(srv.URL, time.Second)
	require.NoError(t, err)

	resp, err := client.CalculateSection(context.Background(), rater.SectionRequest{
		ProposalNo:     "P-100",
		SectionID:      "S1",
		ProportionRate: 100,
		Items: []premium.RiskItem{{
			ItemNo: 1, SectionID: "S1", ActualValue: 100000, ItemRate: 2, MultiplyRate: 1,
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, 2000.00, resp.Items[0].ActualPremium)
	require.Equal(t, 2000.00, resp.Totals.TotalActualPremium)
}

func TestCalculateSectionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := rater.New(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = client.CalculateSection(context.Background(), rater.SectionRequest{ProposalNo: "P-1", SectionID: "S1"})
	require.ErrorIs(t, err, rater.ErrUnavailable)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := rater.New("not a url", time.Second)
	require.Error(t, err)
}
