package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lox/huntstack/internal/models"
)

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// querier is the statement surface shared by pools and transactions.
type querier interface {
	exec(ctx context.Context, query string, args ...any) error
	query(ctx context.Context, query string, args ...any) (rows, error)
}

type backend interface {
	querier
	inTx(ctx context.Context, fn func(q querier) error) error
	ping(ctx context.Context) error
	close()
}

// dialect adapts the shared SQL to a driver. Queries are written with ?
// placeholders.
type dialect struct {
	name    string
	rebind  func(query string) string
	dateArg func(t time.Time) any
}

func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store over any backend.
type sqlStore struct {
	db      backend
	dialect dialect
}

func (s *sqlStore) exec(ctx context.Context, q querier, query string, args ...any) error {
	return q.exec(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (rows, error) {
	return s.db.query(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

func (s *sqlStore) Close() {
	s.db.close()
}

func (s *sqlStore) UpsertState(ctx context.Context, st models.State) error {
	err := s.exec(ctx, s.db, `
		INSERT INTO states (code, name, flyway, lat, lng)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			flyway = excluded.flyway,
			lat = excluded.lat,
			lng = excluded.lng
	`, st.Code, st.Name, st.Flyway, nullFloat(st.Lat), nullFloat(st.Lng))
	return eris.Wrapf(err, "upsert state %s", st.Code)
}

func (s *sqlStore) UpsertSpecies(ctx context.Context, sp models.Species) error {
	err := s.exec(ctx, s.db, `
		INSERT INTO species (slug, name, category)
		VALUES (?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			category = excluded.category
	`, sp.Slug, sp.Name, sp.Category)
	return eris.Wrapf(err, "upsert species %s", sp.Slug)
}

func (s *sqlStore) UpsertLocation(ctx context.Context, loc models.Location) error {
	err := s.exec(ctx, s.db, `
		INSERT INTO locations (id, name, location_type, state_code, lat, lng)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			location_type = excluded.location_type,
			state_code = excluded.state_code,
			lat = excluded.lat,
			lng = excluded.lng
	`, loc.ID, loc.Name, loc.LocationType, loc.StateCode, nullFloat(loc.Lat), nullFloat(loc.Lng))
	return eris.Wrapf(err, "upsert location %s", loc.ID)
}

func (s *sqlStore) InsertSurveyCount(ctx context.Context, sc models.SurveyCount) error {
	err := s.exec(ctx, s.db, `
		INSERT INTO survey_counts (location_id, species_slug, survey_date, count, survey_type, source_url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id, species_slug, survey_date, survey_type) DO NOTHING
	`, sc.LocationID, sc.SpeciesSlug, s.dialect.dateArg(sc.SurveyDate), nullInt(sc.Count), sc.SurveyType, sc.SourceURL)
	return eris.Wrapf(err, "insert survey count %s/%s", sc.LocationID, sc.SpeciesSlug)
}

func (s *sqlStore) InsertSeason(ctx context.Context, season models.Season) error {
	var bag sql.NullInt64
	if season.BagLimit != nil {
		bag = sql.NullInt64{Int64: int64(*season.BagLimit), Valid: true}
	}
	err := s.exec(ctx, s.db, `
		INSERT INTO seasons (state_code, species_slug, name, season_type, start_date, end_date, year, bag_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (state_code, species_slug, name, start_date) DO NOTHING
	`, season.StateCode, season.SpeciesSlug, season.Name, season.SeasonType,
		s.dialect.dateArg(season.StartDate), s.dialect.dateArg(season.EndDate), season.Year, bag)
	return eris.Wrapf(err, "insert season %s/%s", season.StateCode, season.SpeciesSlug)
}

func (s *sqlStore) ListStates(ctx context.Context) ([]models.State, error) {
	rs, err := s.query(ctx, `SELECT code, name, flyway, lat, lng FROM states ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "list states")
	}
	defer rs.Close()

	states := []models.State{}
	for rs.Next() {
		var (
			st       models.State
			lat, lng sql.NullFloat64
		)
		if err := rs.Scan(&st.Code, &st.Name, &st.Flyway, &lat, &lng); err != nil {
			return nil, eris.Wrap(err, "scan state")
		}
		st.Lat, st.Lng = floatPtr(lat), floatPtr(lng)
		states = append(states, st)
	}
	return states, eris.Wrap(rs.Err(), "list states")
}

// StateCoordinates returns the representative coordinate for each requested
// state that has one. An empty list returns every state.
func (s *sqlStore) StateCoordinates(ctx context.Context, states []string) (map[string]models.Coordinate, error) {
	query := `SELECT code, lat, lng FROM states WHERE lat IS NOT NULL AND lng IS NOT NULL`
	var args []any
	if len(states) > 0 {
		query += ` AND code IN (` + placeholders(len(states)) + `)`
		args = stringArgs(states)
	}

	rs, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "state coordinates")
	}
	defer rs.Close()

	out := make(map[string]models.Coordinate)
	for rs.Next() {
		var (
			code string
			c    models.Coordinate
		)
		if err := rs.Scan(&code, &c.Lat, &c.Lng); err != nil {
			return nil, eris.Wrap(err, "scan state coordinate")
		}
		out[code] = c
	}
	return out, eris.Wrap(rs.Err(), "state coordinates")
}

func (s *sqlStore) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	rs, err := s.query(ctx, `
		SELECT id, name, location_type, state_code, lat, lng
		FROM locations
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "get location %s", id)
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return nil, eris.Wrapf(err, "get location %s", id)
		}
		return nil, eris.Wrapf(ErrNotFound, "location %s", id)
	}

	var (
		loc      models.Location
		lat, lng sql.NullFloat64
	)
	if err := rs.Scan(&loc.ID, &loc.Name, &loc.LocationType, &loc.StateCode, &lat, &lng); err != nil {
		return nil, eris.Wrapf(err, "scan location %s", id)
	}
	loc.Lat, loc.Lng = floatPtr(lat), floatPtr(lng)
	return &loc, nil
}

const latestCountsQuery = `
	WITH ranked AS (
		SELECT sc.location_id, sc.species_slug, sc.survey_date, sc.count, sc.survey_type,
			ROW_NUMBER() OVER (
				PARTITION BY sc.location_id, sc.species_slug
				ORDER BY sc.survey_date DESC
			) AS rn
		FROM survey_counts sc
		WHERE sc.survey_type <> ?
	)
	SELECT l.id, l.name, l.lat, l.lng, st.code, st.name, st.flyway,
		sp.slug, sp.name, cur.count, cur.survey_date, cur.survey_type,
		prev.count, prev.survey_date
	FROM ranked cur
	JOIN locations l ON l.id = cur.location_id
	JOIN states st ON st.code = l.state_code
	JOIN species sp ON sp.slug = cur.species_slug
	LEFT JOIN ranked prev ON prev.location_id = cur.location_id
		AND prev.species_slug = cur.species_slug
		AND prev.rn = 2
	WHERE cur.rn = 1
		AND l.location_type = ?
		AND LOWER(l.name) NOT LIKE '%statewide%'`

// LatestCounts returns, per (location, species), the most recent count and
// the one before it.
func (s *sqlStore) LatestCounts(ctx context.Context, f CountFilter) ([]models.CountRow, error) {
	query := latestCountsQuery
	args := []any{ExcludedSurveyType, EligibleLocationType}

	if len(f.States) > 0 {
		query += ` AND l.state_code IN (` + placeholders(len(f.States)) + `)`
		args = append(args, stringArgs(f.States)...)
	}
	switch {
	case len(f.SpeciesSlugs) > 0:
		query += ` AND sp.slug IN (` + placeholders(len(f.SpeciesSlugs)) + `)`
		args = append(args, stringArgs(f.SpeciesSlugs)...)
	case f.Category != "":
		query += ` AND sp.category = ?`
		args = append(args, f.Category)
	}
	if f.LocationID != "" {
		query += ` AND l.id = ?`
		args = append(args, f.LocationID)
	}
	query += ` ORDER BY l.id, sp.slug`

	rs, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "latest counts")
	}
	defer rs.Close()

	out := []models.CountRow{}
	for rs.Next() {
		var (
			r                   models.CountRow
			lat, lng            sql.NullFloat64
			count, prevCount    sql.NullInt64
			surveyDate, prevDay dateValue
		)
		if err := rs.Scan(&r.LocationID, &r.LocationName, &lat, &lng, &r.StateCode, &r.StateName, &r.Flyway,
			&r.SpeciesSlug, &r.SpeciesName, &count, &surveyDate, &r.SurveyType,
			&prevCount, &prevDay); err != nil {
			return nil, eris.Wrap(err, "scan latest count")
		}
		r.Lat, r.Lng = floatPtr(lat), floatPtr(lng)
		r.Count, r.PreviousCount = intPtr(count), intPtr(prevCount)
		r.SurveyDate = surveyDate.Time
		if prevDay.Valid {
			t := prevDay.Time
			r.PreviousSurveyDate = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rs.Err(), "latest counts")
}

// OpenSeasons returns seasons for the target year that are open on the
// target date, earliest start first.
func (s *sqlStore) OpenSeasons(ctx context.Context, f SeasonFilter) ([]models.Season, error) {
	query := `
		SELECT state_code, species_slug, name, season_type, start_date, end_date, year, bag_limit
		FROM seasons
		WHERE year = ? AND start_date <= ? AND end_date >= ?`
	date := s.dialect.dateArg(f.Date)
	args := []any{f.Year, date, date}

	if len(f.States) > 0 {
		query += ` AND state_code IN (` + placeholders(len(f.States)) + `)`
		args = append(args, stringArgs(f.States)...)
	}
	switch {
	case len(f.SpeciesSlugs) > 0:
		query += ` AND species_slug IN (` + placeholders(len(f.SpeciesSlugs)) + `)`
		args = append(args, stringArgs(f.SpeciesSlugs)...)
	case f.Category != "":
		query += ` AND species_slug IN (SELECT slug FROM species WHERE category = ?)`
		args = append(args, f.Category)
	}
	query += ` ORDER BY state_code, species_slug, start_date`

	rs, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "open seasons")
	}
	defer rs.Close()

	out := []models.Season{}
	for rs.Next() {
		var (
			season     models.Season
			start, end dateValue
			bag        sql.NullInt64
		)
		if err := rs.Scan(&season.StateCode, &season.SpeciesSlug, &season.Name, &season.SeasonType,
			&start, &end, &season.Year, &bag); err != nil {
			return nil, eris.Wrap(err, "scan season")
		}
		season.StartDate, season.EndDate = start.Time, end.Time
		if bag.Valid {
			b := int(bag.Int64)
			season.BagLimit = &b
		}
		out = append(out, season)
	}
	return out, eris.Wrap(rs.Err(), "open seasons")
}

// dateValue scans DATE columns from either driver: pgx yields time.Time,
// SQLite yields the stored text.
type dateValue struct {
	Time  time.Time
	Valid bool
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = dateValue{}
		return nil
	case time.Time:
		*d = dateValue{Time: v, Valid: true}
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
}

func (d *dateValue) parse(s string) error {
	if len(s) >= len(time.DateOnly) {
		if t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)]); err == nil {
			*d = dateValue{Time: t, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("parse date %q", s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
