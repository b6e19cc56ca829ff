package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lox/huntstack/internal/ebird"
	"github.com/lox/huntstack/internal/hunt"
	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/store"
)

const dateLayout = "2006-01-02"

type recommendationsQuery struct {
	Species string   `validate:"omitempty,max=64"`
	States  []string `validate:"max=50"`
	Date    string   `validate:"omitempty,datetime=2006-01-02"`
	Limit   *int     `validate:"omitnil,min=1"`
}

type chatRequest struct {
	ConversationID string `json:"conversationId" validate:"omitempty,max=64"`
	Message        string `json:"message" validate:"required"`
}

// splitList splits comma separated query values, accepting repeated keys.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("store ping failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := recommendationsQuery{
		Species: strings.TrimSpace(q.Get("species")),
		States:  splitList(q["states"]),
		Date:    strings.TrimSpace(q.Get("date")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		params.Limit = &limit
	}
	if err := validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	query := hunt.Query{Species: params.Species, States: params.States}
	if params.Date != "" {
		query.Date, _ = time.Parse(dateLayout, params.Date)
	}
	if params.Limit != nil {
		query.Limit = *params.Limit
	}

	res, err := s.deps.Hunt.Recommend(r.Context(), query)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError, "failed to load recommendations")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePushFactors(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Push.PushFactors(r.Context(), splitList(r.URL.Query()["states"]))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError, "failed to compute push factors")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// refuge loads the location named by the refugeId path parameter. It writes
// the error response itself and returns nil on failure.
func (s *Server) refuge(w http.ResponseWriter, r *http.Request, needCoords bool) *models.Location {
	id := strings.TrimSpace(chi.URLParam(r, "refugeId"))
	if err := validate.Var(id, "required,max=128"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid refuge id")
		return nil
	}
	loc, err := s.deps.Store.GetLocation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "refuge "+id+" not found")
			return nil
		}
		s.fail(w, r, err, http.StatusInternalServerError, "failed to load refuge")
		return nil
	}
	if needCoords && !loc.HasCoordinates() {
		writeError(w, http.StatusNotFound, "refuge "+id+" has no coordinates")
		return nil
	}
	return loc
}

// stateParam returns the uppercased state path parameter, or "" after
// writing a 400.
func stateParam(w http.ResponseWriter, r *http.Request) string {
	state := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "state")))
	if err := validate.Var(state, "len=2,alpha"); err != nil {
		writeError(w, http.StatusBadRequest, "state must be a two letter code")
		return ""
	}
	return state
}

func (s *Server) handleHuntingConditions(w http.ResponseWriter, r *http.Request) {
	loc := s.refuge(w, r, true)
	if loc == nil {
		return
	}
	hc, err := s.deps.Weather.HuntingConditions(r.Context(), *loc.Lat, *loc.Lng)
	if err != nil {
		s.fail(w, r, err, http.StatusBadGateway, "weather data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refuge":     loc,
		"conditions": hc,
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	loc := s.refuge(w, r, true)
	if loc == nil {
		return
	}
	hourly, _ := strconv.ParseBool(r.URL.Query().Get("hourly"))

	periods, err := s.deps.Weather.Forecast(r.Context(), *loc.Lat, *loc.Lng, hourly)
	if err != nil {
		s.fail(w, r, err, http.StatusBadGateway, "weather data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refuge":  loc,
		"hourly":  hourly,
		"periods": periods,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	state := stateParam(w, r)
	if state == "" {
		return
	}
	alerts, err := s.deps.Weather.Alerts(r.Context(), state)
	if err != nil {
		s.fail(w, r, err, http.StatusBadGateway, "weather alerts unavailable")
		return
	}
	if alerts == nil {
		alerts = []models.WeatherAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  state,
		"alerts": alerts,
	})
}

func (s *Server) handleMigration(w http.ResponseWriter, r *http.Request) {
	state := stateParam(w, r)
	if state == "" {
		return
	}
	act, err := s.deps.Hunt.StateMigration(r.Context(), state)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError, "failed to load migration data")
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	loc := s.refuge(w, r, false)
	if loc == nil {
		return
	}

	body := map[string]any{
		"refuge":       loc,
		"observations": []models.Observation{},
		"source":       ebird.Source,
		"available":    false,
	}
	if s.deps.Observations == nil || !s.deps.Observations.Enabled() {
		writeJSON(w, http.StatusOK, body)
		return
	}

	obs, err := s.deps.Observations.Observations(r.Context(), *loc)
	if err != nil {
		if errors.Is(err, ebird.ErrDisabled) {
			writeJSON(w, http.StatusOK, body)
			return
		}
		s.fail(w, r, err, http.StatusBadGateway, "observations unavailable")
		return
	}
	body["observations"] = obs
	body["available"] = true
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	state := stateParam(w, r)
	if state == "" {
		return
	}
	sum, err := s.deps.Narrative.Weekly(r.Context(), state)
	if err != nil {
		s.fail(w, r, err, http.StatusServiceUnavailable, "summary generation failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	reply, err := s.deps.Narrative.Chat(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		s.fail(w, r, err, http.StatusServiceUnavailable, "chat failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
