package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func vendorHandler(t *testing.T, fail *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && fail.Add(-1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(barsResponse{
			Instrument: "CMCU3",
			Bars: []barPayload{
				{Date: "2026-08-27", Open: 9480, High: 9520, Low: 9460, Close: 9510, Volume: 1200},
				{Date: "2026-08-28", Open: 9510, High: 9560, Low: 9500, Close: 9550, Volume: 1400},
			},
		}))
	}
}

func testClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestsPerSec: 100,
		Timeout:        time.Second,
	}, logger.NewNop().Zerolog())
}

func TestDailyBars(t *testing.T) {
	srv := httptest.NewServer(vendorHandler(t, nil))
	defer srv.Close()

	bars, err := testClient(srv.URL).DailyBars(context.Background(), "CMCU3",
		date(2026, 8, 25), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "CMCU3", bars[0].Instrument)
	assert.Equal(t, date(2026, 8, 27), bars[0].Date)
	assert.Equal(t, 9550.0, bars[1].Close)
}

func TestDailyBarsRetriesServerErrors(t *testing.T) {
	var fail atomic.Int32
	fail.Store(2)
	srv := httptest.NewServer(vendorHandler(t, &fail))
	defer srv.Close()

	bars, err := testClient(srv.URL).DailyBars(context.Background(), "CMCU3",
		date(2026, 8, 25), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestDailyBarsClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown instrument", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).DailyBars(context.Background(), "CMXX9",
		date(2026, 8, 25), date(2026, 8, 28))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// fakeSource feeds the collector without HTTP.
type fakeSource struct {
	bars map[string][]contracts.PriceRecord
	errs map[string]error
}

func (f *fakeSource) DailyBars(_ context.Context, instrument string, _, _ time.Time) ([]contracts.PriceRecord, error) {
	if err := f.errs[instrument]; err != nil {
		return nil, err
	}
	return f.bars[instrument], nil
}

func collectorConfig() CollectorConfig {
	return CollectorConfig{
		Instruments: []string{"CMCU1", "CMCU3"},
		DaysBack:    3,
	}
}

func TestCollectStoresAllInstruments(t *testing.T) {
	s := storetest.New()
	source := &fakeSource{bars: map[string][]contracts.PriceRecord{
		"CMCU1": {{Instrument: "CMCU1", Date: date(2026, 8, 28), Close: 9300}},
		"CMCU3": {{Instrument: "CMCU3", Date: date(2026, 8, 28), Close: 9550}},
	}}

	c := NewCollector(source, s.Prices(), s.Runs(), collectorConfig(), logger.NewNop().Zerolog())
	stats, err := c.Collect(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.BarsStored)
	assert.Empty(t, stats.Failed)

	close3, err := s.Prices().GetClose(context.Background(), "CMCU3", date(2026, 8, 28))
	require.NoError(t, err)
	assert.Equal(t, 9550.0, close3)

	runs := s.AllRuns(contracts.JobCollection)
	require.Len(t, runs, 1)
	assert.Equal(t, contracts.RunSuccess, runs[0].Status)
}

func TestCollectPartialFailure(t *testing.T) {
	s := storetest.New()
	source := &fakeSource{
		bars: map[string][]contracts.PriceRecord{
			"CMCU3": {{Instrument: "CMCU3", Date: date(2026, 8, 28), Close: 9550}},
		},
		errs: map[string]error{"CMCU1": errors.New("vendor returned 404")},
	}

	c := NewCollector(source, s.Prices(), s.Runs(), collectorConfig(), logger.NewNop().Zerolog())
	stats, err := c.Collect(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BarsStored)
	assert.Contains(t, stats.Failed, "CMCU1")

	runs := s.AllRuns(contracts.JobCollection)
	require.Len(t, runs, 1)
	assert.Equal(t, contracts.RunPartial, runs[0].Status)
}

func TestCollectTotalFailure(t *testing.T) {
	s := storetest.New()
	source := &fakeSource{errs: map[string]error{
		"CMCU1": errors.New("down"),
		"CMCU3": errors.New("down"),
	}}

	c := NewCollector(source, s.Prices(), s.Runs(), collectorConfig(), logger.NewNop().Zerolog())
	_, err := c.Collect(context.Background(), date(2026, 8, 28))
	require.Error(t, err)

	runs := s.AllRuns(contracts.JobCollection)
	require.Len(t, runs, 1)
	assert.Equal(t, contracts.RunFailed, runs[0].Status)
}

func TestCollectSingleFlight(t *testing.T) {
	s := storetest.New()
	require.NoError(t, s.Runs().TryStart(context.Background(), &contracts.RunRecord{
		RunID: "other", JobName: contracts.JobCollection,
	}))

	c := NewCollector(&fakeSource{}, s.Prices(), s.Runs(), collectorConfig(), logger.NewNop().Zerolog())
	_, err := c.Collect(context.Background(), date(2026, 8, 28))
	assert.ErrorIs(t, err, contracts.ErrRunInProgress)
}
