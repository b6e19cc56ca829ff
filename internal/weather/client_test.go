package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/huntstack/internal/models"
)

const pointsBody = `{
  "properties": {
    "gridId": "LZK",
    "gridX": 80,
    "gridY": 70,
    "forecast": "https://api.weather.gov/gridpoints/LZK/80,70/forecast",
    "forecastHourly": "https://api.weather.gov/gridpoints/LZK/80,70/forecast/hourly"
  }
}`

const forecastBody = `{
  "properties": {
    "periods": [
      {
        "number": 1,
        "name": "Tonight",
        "startTime": "2025-11-20T18:00:00-06:00",
        "endTime": "2025-11-21T06:00:00-06:00",
        "isDaytime": false,
        "temperature": 28,
        "temperatureUnit": "F",
        "probabilityOfPrecipitation": {"unitCode": "wmoUnit:percent", "value": 20},
        "relativeHumidity": {"unitCode": "wmoUnit:percent", "value": 81},
        "windSpeed": "10 to 15 mph",
        "windDirection": "NW",
        "shortForecast": "Mostly Clear",
        "detailedForecast": "Mostly clear, with a low around 28."
      },
      {
        "number": 2,
        "name": "Friday",
        "startTime": "2025-11-21T06:00:00-06:00",
        "endTime": "2025-11-21T18:00:00-06:00",
        "isDaytime": true,
        "temperature": 41,
        "temperatureUnit": "F",
        "probabilityOfPrecipitation": {"unitCode": "wmoUnit:percent", "value": null},
        "windSpeed": "5 mph",
        "windDirection": "N",
        "shortForecast": "Sunny",
        "detailedForecast": "Sunny, with a high near 41."
      }
    ]
  }
}`

const alertsBody = `{
  "features": [
    {"properties": {"id": "a1", "event": "Wind Advisory", "severity": "Moderate", "urgency": "Expected", "headline": "Wind Advisory", "areaDesc": "Pulaski"}},
    {"properties": {"id": "a2", "event": "Winter Storm Warning", "severity": "Severe", "urgency": "Expected", "headline": "Winter Storm Warning", "areaDesc": "Benton"}}
  ]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/points/34.7465,-92.2896", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))
		w.Write([]byte(pointsBody))
	})
	mux.HandleFunc("/gridpoints/LZK/80,70/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forecastBody))
	})
	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AR", r.URL.Query().Get("area"))
		w.Write([]byte(alertsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientPoints(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL, UserAgent: "test-agent"})

	gp, err := c.Points(context.Background(), 34.74651, -92.28959)
	require.NoError(t, err)
	assert.Equal(t, "LZK", gp.Office)
	assert.Equal(t, 80, gp.GridX)
	assert.Equal(t, 70, gp.GridY)
}

func TestClientForecast(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL, UserAgent: "test-agent"})

	periods, err := c.Forecast(context.Background(), models.GridPoint{Office: "LZK", GridX: 80, GridY: 70}, false)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, 28.0, periods[0].Temperature)
	assert.Equal(t, "NW", periods[0].WindDirection)
	require.NotNil(t, periods[0].PrecipitationProbability)
	assert.Equal(t, 20.0, *periods[0].PrecipitationProbability)
	assert.Nil(t, periods[1].PrecipitationProbability)
	assert.True(t, periods[1].IsDaytime)
}

func TestClientAlertsSortedBySeverity(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL, UserAgent: "test-agent"})

	alerts, err := c.ActiveAlerts(context.Background(), "ar")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "Winter Storm Warning", alerts[0].Event)
	assert.Equal(t, "Wind Advisory", alerts[1].Event)
}

func TestClientNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	_, err := c.Points(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.ActiveAlerts(context.Background(), "MO")
	require.Error(t, err)
}

func TestClientBreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	for i := 0; i < 8; i++ {
		_, err := c.ActiveAlerts(context.Background(), "TX")
		require.Error(t, err)
	}
	assert.Equal(t, 5, calls, "breaker should stop calling upstream after five failures")
}

func TestClientNotFoundDoesNotTripBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"title":"Invalid Parameter"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	for i := 0; i < 8; i++ {
		_, err := c.Points(context.Background(), 0, 0)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusNotFound, se.Code)
	}
	assert.Equal(t, 8, calls)
}
