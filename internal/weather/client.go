package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/lox/huntstack/internal/httputil"
	"github.com/lox/huntstack/internal/metrics"
	"github.com/lox/huntstack/internal/models"
)

const (
	DefaultBaseURL   = "https://api.weather.gov"
	DefaultUserAgent = "huntstack/1.0 (waterfowl hunting forecasts)"
	DefaultTimeout   = 10 * time.Second

	providerName = "nws"
)

type ClientOptions struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
}

// Client talks to the National Weather Service API. Requests are not
// retried: a failure surfaces immediately so callers can degrade.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(1, int(opts.RatePerSecond)))
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		httpClient: httputil.NewClient(opts.Timeout, opts.UserAgent),
		limiter:    limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var se *StatusError
				return err == nil || (errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests)
			},
		}),
	}
}

// StatusError is a non-200 response from the API. Client errors do not count
// against the circuit breaker.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("get %s: status %d: %s", e.Path, e.Code, e.Body)
}

type pointsResponse struct {
	Properties struct {
		GridID         string `json:"gridId"`
		GridX          int    `json:"gridX"`
		GridY          int    `json:"gridY"`
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type quantity struct {
	Value *float64 `json:"value"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Number                     int       `json:"number"`
			Name                       string    `json:"name"`
			StartTime                  time.Time `json:"startTime"`
			EndTime                    time.Time `json:"endTime"`
			IsDaytime                  bool      `json:"isDaytime"`
			Temperature                float64   `json:"temperature"`
			TemperatureUnit            string    `json:"temperatureUnit"`
			ProbabilityOfPrecipitation quantity  `json:"probabilityOfPrecipitation"`
			RelativeHumidity           quantity  `json:"relativeHumidity"`
			WindSpeed                  string    `json:"windSpeed"`
			WindDirection              string    `json:"windDirection"`
			ShortForecast              string    `json:"shortForecast"`
			DetailedForecast           string    `json:"detailedForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []struct {
		Properties struct {
			ID        string     `json:"id"`
			Event     string     `json:"event"`
			Severity  string     `json:"severity"`
			Urgency   string     `json:"urgency"`
			Headline  string     `json:"headline"`
			AreaDesc  string     `json:"areaDesc"`
			Effective *time.Time `json:"effective"`
			Expires   *time.Time `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

// Points resolves a coordinate to its forecast grid.
func (c *Client) Points(ctx context.Context, lat, lng float64) (models.GridPoint, error) {
	var resp pointsResponse
	if err := c.getJSON(ctx, "points", fmt.Sprintf("/points/%.4f,%.4f", lat, lng), &resp); err != nil {
		return models.GridPoint{}, err
	}
	p := resp.Properties
	if p.GridID == "" {
		return models.GridPoint{}, eris.Errorf("points %.4f,%.4f: missing grid id", lat, lng)
	}
	return models.GridPoint{
		Office:            p.GridID,
		GridX:             p.GridX,
		GridY:             p.GridY,
		ForecastURL:       p.Forecast,
		ForecastHourlyURL: p.ForecastHourly,
	}, nil
}

// Forecast fetches the daily (or hourly) forecast periods for a grid point.
func (c *Client) Forecast(ctx context.Context, gp models.GridPoint, hourly bool) ([]models.ForecastPeriod, error) {
	path := fmt.Sprintf("/gridpoints/%s/%d,%d/forecast", gp.Office, gp.GridX, gp.GridY)
	endpoint := "forecast"
	if hourly {
		path += "/hourly"
		endpoint = "forecast_hourly"
	}

	var resp forecastResponse
	if err := c.getJSON(ctx, endpoint, path, &resp); err != nil {
		return nil, err
	}

	periods := make([]models.ForecastPeriod, 0, len(resp.Properties.Periods))
	for _, p := range resp.Properties.Periods {
		periods = append(periods, models.ForecastPeriod{
			Number:                   p.Number,
			Name:                     p.Name,
			StartTime:                p.StartTime,
			EndTime:                  p.EndTime,
			IsDaytime:                p.IsDaytime,
			Temperature:              p.Temperature,
			TemperatureUnit:          p.TemperatureUnit,
			WindSpeed:                p.WindSpeed,
			WindDirection:            p.WindDirection,
			PrecipitationProbability: p.ProbabilityOfPrecipitation.Value,
			RelativeHumidity:         p.RelativeHumidity.Value,
			ShortForecast:            p.ShortForecast,
			DetailedForecast:         p.DetailedForecast,
		})
	}
	return periods, nil
}

// ActiveAlerts fetches active alerts for a two-letter state code.
func (c *Client) ActiveAlerts(ctx context.Context, state string) ([]models.WeatherAlert, error) {
	var resp alertsResponse
	if err := c.getJSON(ctx, "alerts", "/alerts/active?area="+strings.ToUpper(state), &resp); err != nil {
		return nil, err
	}

	alerts := make([]models.WeatherAlert, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		alerts = append(alerts, models.WeatherAlert{
			ID:        p.ID,
			Event:     p.Event,
			Severity:  p.Severity,
			Urgency:   p.Urgency,
			Headline:  p.Headline,
			AreaDesc:  p.AreaDesc,
			Effective: p.Effective,
			Expires:   p.Expires,
		})
	}
	SortAlerts(alerts)
	return alerts, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	start := time.Now()
	status := 0
	defer func() {
		metrics.UpstreamRequestsTotal.WithLabelValues(providerName, endpoint, metrics.Status(status)).Inc()
		metrics.UpstreamLatency.WithLabelValues(providerName, endpoint).Observe(time.Since(start).Seconds())
	}()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/geo+json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "get %s", path)
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return nil, eris.Wrapf(err, "decode %s", path)
		}
		return nil, nil
	})
	return err
}
