package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/hunt"
	"github.com/lox/huntstack/internal/migration"
	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/narrative"
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	requestTimeout         = 60 * time.Second
)

var validate = validator.New()

// Store is the subset of the persisted store the API reads directly.
type Store interface {
	Ping(ctx context.Context) error
	GetLocation(ctx context.Context, id string) (*models.Location, error)
}

type Weather interface {
	Forecast(ctx context.Context, lat, lng float64, hourly bool) ([]models.ForecastPeriod, error)
	Alerts(ctx context.Context, state string) ([]models.WeatherAlert, error)
	HuntingConditions(ctx context.Context, lat, lng float64) (*models.HuntingConditions, error)
}

type PushFactors interface {
	PushFactors(ctx context.Context, states []string) (*migration.Report, error)
}

type Recommender interface {
	Recommend(ctx context.Context, q hunt.Query) (*hunt.Result, error)
	StateMigration(ctx context.Context, state string) (*hunt.StateActivity, error)
}

type Observations interface {
	Enabled() bool
	Observations(ctx context.Context, loc models.Location) ([]models.Observation, error)
}

type Narrator interface {
	Weekly(ctx context.Context, state string) (*narrative.Summary, error)
	Chat(ctx context.Context, conversationID, message string) (*narrative.ChatReply, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Store        Store
	Weather      Weather
	Push         PushFactors
	Hunt         Recommender
	Observations Observations
	Narrative    Narrator
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type Server struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, opts: opts, logger: logger.Named("api")}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/recommendations", s.handleRecommendations)
		r.Get("/push-factors", s.handlePushFactors)
		r.Get("/hunting-conditions/{refugeId}", s.handleHuntingConditions)
		r.Get("/migration/{state}", s.handleMigration)
		r.Get("/weather/forecast/{refugeId}", s.handleForecast)
		r.Get("/weather/alerts/{state}", s.handleAlerts)
		r.Get("/observations/{refugeId}", s.handleObservations)
		r.Get("/summary/{state}", s.handleSummary)
		r.Post("/chat", s.handleChat)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", zap.String("addr", s.opts.Addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}
