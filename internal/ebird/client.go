package ebird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"

	"github.com/lox/huntstack/internal/httputil"
	"github.com/lox/huntstack/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.ebird.org"
	DefaultTimeout = 15 * time.Second

	// MaxAttempts bounds requests per call when eBird rate limits us.
	MaxAttempts = 3

	providerName = "ebird"
)

type ClientOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// NewBackOff overrides the retry schedule between rate-limited attempts.
	NewBackOff func() backoff.BackOff
}

// Client fetches recent observations from the eBird API 2.0.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	newBackOff func() backoff.BackOff
}

func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httputil.NewClient(opts.Timeout, ""),
		newBackOff: opts.NewBackOff,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// StatusError is a non-200 response from eBird.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ebird: status %d: %s", e.Code, e.Body)
}

type observation struct {
	SpeciesCode string `json:"speciesCode"`
	ComName     string `json:"comName"`
	HowMany     *int   `json:"howMany"`
	ObsDt       string `json:"obsDt"`
	ObsValid    bool   `json:"obsValid"`
}

// RecentObservations returns sightings within radiusKM of a point over the
// last daysBack days. Dates are trimmed to YYYY-MM-DD.
func (c *Client) RecentObservations(ctx context.Context, lat, lng float64, radiusKM, daysBack int) ([]Record, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', 4, 64))
	q.Set("dist", strconv.Itoa(radiusKM))
	q.Set("back", strconv.Itoa(daysBack))
	endpoint := c.baseURL + "/v2/data/obs/geo/recent?" + q.Encode()

	var body []byte
	attempts := 0
	operation := func() error {
		attempts++
		b, err := c.get(ctx, endpoint)
		if err == nil {
			body = b
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), MaxAttempts-1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, eris.Wrapf(err, "recent observations after %d attempts", attempts)
	}

	var raw []observation
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "decode observations")
	}

	records := make([]Record, 0, len(raw))
	for _, o := range raw {
		date := o.ObsDt
		if len(date) > len(time.DateOnly) {
			date = date[:len(time.DateOnly)]
		}
		records = append(records, Record{
			SpeciesCode: o.SpeciesCode,
			CommonName:  o.ComName,
			Count:       o.HowMany,
			Date:        date,
			Valid:       o.ObsValid,
		})
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	start := time.Now()
	status := 0
	defer func() {
		metrics.UpstreamRequestsTotal.WithLabelValues(providerName, "recent_geo", metrics.Status(status)).Inc()
		metrics.UpstreamLatency.WithLabelValues(providerName, "recent_geo").Observe(time.Since(start).Seconds())
	}()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("X-eBirdApiToken", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "fetch observations")
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "read body")
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}
