package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestHistoryParsesBars(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/AAPL", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		assert.Equal(t, "a", r.URL.Query().Get("order"))
		w.Write([]byte(`[
			{"date":"2025-02-03","open":190.1,"high":192.4,"low":189.2,"close":191.5,"volume":51000000},
			{"date":"2025-02-04","open":"191.8","high":"193.0","low":"190.9","close":"192.2","volume":"48000000"}
		]`))
	})

	candles, err := client.History(context.Background(), "AAPL",
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "2025-02-03", candles[0].DateKey())
	assert.Equal(t, 191.5, *candles[0].Close)
	// String-typed numbers from upstream still parse.
	assert.Equal(t, 192.2, *candles[1].Close)
}

func TestQuoteMapsFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real-time/AAPL", r.URL.Path)
		w.Write([]byte(`{"code":"AAPL.US","timestamp":1738600200,"open":190.1,"high":192.4,"low":189.2,"close":191.5,"previousClose":189.9,"volume":51000000}`))
	})

	q, err := client.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 191.5, *q.Price)
	assert.Equal(t, 189.9, *q.PreviousClose)
	assert.NotEmpty(t, q.LastUpdated)
}

func TestStatementsCanonicalizesMetrics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"General": {"Code":"AAPL","Name":"Apple Inc","WebURL":"https://www.apple.com","Sector":"Technology"},
			"Valuation": {"TrailingPE":"28.4","PriceSalesTTM":7.1},
			"Financials": {
				"Income_Statement": {
					"quarterly": {
						"2025-03-31": {"date":"2025-03-31","totalRevenue":"124300000000","grossProfit":"58275000000","customMetric":"12.5"}
					}
				}
			},
			"Earnings": {"History": {"2025-03-31": {"date":"2025-03-31","epsActual":2.4}}}
		}`))
	})

	snap, err := client.Statements(context.Background(), "AAPL")
	require.NoError(t, err)

	rows := snap.Rows("quarterly_financials")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Metric("Total Revenue"))
	assert.Equal(t, 1.243e11, *rows[0].Metric("Total Revenue"))
	// Unmapped metrics pass through under their upstream name.
	assert.NotNil(t, rows[0].Metric("customMetric"))

	earnings := snap.Rows("quarterly_earnings")
	require.Len(t, earnings, 1)
	assert.Equal(t, 2.4, *earnings[0].Metric("Earnings", "Diluted EPS", "Basic EPS"))

	require.NotNil(t, snap.Valuation("trailing_pe"))
	assert.Equal(t, 28.4, *snap.Valuation("trailing_pe"))
	assert.Equal(t, "Apple Inc", snap.Info["name"])
}

func TestNextEarningsDatePicksEarliest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/earnings", r.URL.Path)
		w.Write([]byte(`{"earnings":[{"code":"AAPL.US","report_date":"2025-07-31"},{"code":"AAPL.US","report_date":"2025-05-01"}]}`))
	})

	next, err := client.NextEarningsDate(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", next)
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payment required", http.StatusPaymentRequired)
	})

	_, err := client.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
}
