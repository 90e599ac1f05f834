// Package marketdata fetches daily bars from the upstream vendor API
// and lands them in the price store.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// ClientConfig holds vendor API settings
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Timeout        time.Duration
}

// Client is a rate-limited HTTP client for the vendor's daily-bar
// endpoint. Transient failures (5xx, network errors, 429) are retried
// with exponential backoff; 4xx responses are not.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     ClientConfig
	log        zerolog.Logger
}

// NewClient creates a client
func NewClient(config ClientConfig, log zerolog.Logger) *Client {
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSec), 1),
		config:     config,
		log:        log.With().Str("component", "marketdata.client").Logger(),
	}
}

// barPayload is the vendor's wire format for one daily bar
type barPayload struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type barsResponse struct {
	Instrument string       `json:"instrument"`
	Bars       []barPayload `json:"bars"`
}

// permanentStatusError marks responses that must not be retried
type permanentStatusError struct {
	status int
	body   string
}

func (e *permanentStatusError) Error() string {
	return fmt.Sprintf("vendor returned %d: %s", e.status, e.body)
}

// DailyBars fetches bars for one instrument over [from, to], oldest
// first.
func (c *Client) DailyBars(ctx context.Context, instrument string, from, to time.Time) ([]contracts.PriceRecord, error) {
	endpoint, err := url.Parse(c.config.BaseURL + "/v1/daily/" + url.PathEscape(instrument))
	if err != nil {
		return nil, fmt.Errorf("bad base URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	endpoint.RawQuery = q.Encode()

	var payload barsResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if err := c.fetch(ctx, endpoint.String(), &payload); err != nil {
			var perm *permanentStatusError
			if errors.As(err, &perm) {
				return backoff.Permanent(err)
			}
			c.log.Warn().Str("instrument", instrument).Err(err).Msg("vendor request failed, retrying")
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	records := make([]contracts.PriceRecord, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("bad bar date %q for %s: %w", b.Date, instrument, err)
		}
		records = append(records, contracts.PriceRecord{
			Instrument: instrument,
			Date:       date,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
		})
	}
	return records, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, out *barsResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &permanentStatusError{status: resp.StatusCode, body: "undecodable body"}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("vendor returned %d", resp.StatusCode)
	default:
		body := make([]byte, 256)
		n, _ := resp.Body.Read(body)
		return &permanentStatusError{status: resp.StatusCode, body: string(body[:n])}
	}
}
