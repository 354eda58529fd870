// Package store provides the SQLite-backed session data store the
// retrieval tools read from: lap times, tire stints, classifications,
// driver and race records, and race report text.
package store

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pitwall-ai/pitwall"
)

const schema = `
CREATE TABLE IF NOT EXISTS laps (
	season   INTEGER NOT NULL,
	race     TEXT NOT NULL,
	driver   TEXT NOT NULL,
	lap      INTEGER NOT NULL,
	time     REAL NOT NULL,
	s1       REAL,
	s2       REAL,
	s3       REAL,
	compound TEXT,
	stint    INTEGER,
	position INTEGER,
	PRIMARY KEY (season, race, driver, lap)
);
CREATE TABLE IF NOT EXISTS results (
	season   INTEGER NOT NULL,
	race     TEXT NOT NULL,
	position INTEGER NOT NULL,
	driver   TEXT NOT NULL,
	team     TEXT,
	points   REAL,
	status   TEXT,
	PRIMARY KEY (season, race, position)
);
CREATE TABLE IF NOT EXISTS drivers (
	code    TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	team    TEXT,
	number  INTEGER,
	country TEXT
);
CREATE TABLE IF NOT EXISTS races (
	season  INTEGER NOT NULL,
	race    TEXT NOT NULL,
	name    TEXT NOT NULL,
	circuit TEXT,
	laps    INTEGER,
	date    TEXT,
	PRIMARY KEY (season, race)
);
CREATE TABLE IF NOT EXISTS reports (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	season INTEGER,
	race   TEXT,
	title  TEXT NOT NULL,
	body   TEXT NOT NULL
);
`

// SessionStore serves historical session data out of SQLite. It backs
// every retrieval tool and is safe for concurrent reads.
type SessionStore struct {
	db *sql.DB
}

// Open opens (and migrates) a session store. Use ":memory:" for tests.
func Open(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pitwall.NewError(pitwall.ErrCodeConfiguration, "store", "failed to open session store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pitwall.NewError(pitwall.ErrCodeConfiguration, "store", "failed to migrate session store", err)
	}
	return &SessionStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// LapTimes returns one row per recorded lap for a driver in a session,
// ordered by lap number.
func (s *SessionStore) LapTimes(ctx context.Context, driver string, season int, race string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT driver, lap, time, s1, s2, s3, compound, stint, position
		 FROM laps WHERE driver = ? AND season = ? AND race = ? ORDER BY lap`,
		strings.ToUpper(driver), season, race)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var (
			d          string
			lap, stint sql.NullInt64
			position   sql.NullInt64
			t          float64
			s1, s2, s3 sql.NullFloat64
			compound   sql.NullString
		)
		if err := rows.Scan(&d, &lap, &t, &s1, &s2, &s3, &compound, &stint, &position); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"driver":   d,
			"lap":      int(lap.Int64),
			"time":     t,
			"s1":       s1.Float64,
			"s2":       s2.Float64,
			"s3":       s3.Float64,
			"compound": compound.String,
			"stint":    int(stint.Int64),
			"position": int(position.Int64),
		})
	}
	return out, rows.Err()
}

// TireStints derives stint ranges from the lap table, one row per stint.
func (s *SessionStore) TireStints(ctx context.Context, driver string, season int, race string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT driver, stint, compound, MIN(lap), MAX(lap)
		 FROM laps WHERE driver = ? AND season = ? AND race = ? AND stint > 0
		 GROUP BY stint ORDER BY stint`,
		strings.ToUpper(driver), season, race)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var (
			d                       string
			stint, startLap, endLap int
			compound                sql.NullString
		)
		if err := rows.Scan(&d, &stint, &compound, &startLap, &endLap); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"driver":    d,
			"stint":     stint,
			"compound":  compound.String,
			"start_lap": startLap,
			"end_lap":   endLap,
		})
	}
	return out, rows.Err()
}

// SessionResults returns the final classification for a session.
func (s *SessionStore) SessionResults(ctx context.Context, season int, race string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, driver, team, points, status
		 FROM results WHERE season = ? AND race = ? ORDER BY position`,
		season, race)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var (
			position int
			driver   string
			team     sql.NullString
			points   sql.NullFloat64
			status   sql.NullString
		)
		if err := rows.Scan(&position, &driver, &team, &points, &status); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"position": position,
			"driver":   driver,
			"team":     team.String,
			"points":   points.Float64,
			"status":   status.String,
		})
	}
	return out, rows.Err()
}

// DriverInfo returns the profile record for a driver code, or nil when
// unknown.
func (s *SessionStore) DriverInfo(ctx context.Context, driver string) (map[string]interface{}, error) {
	var (
		code, name    string
		team, country sql.NullString
		number        sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT code, name, team, number, country FROM drivers WHERE code = ?`,
		strings.ToUpper(driver)).Scan(&code, &name, &team, &number, &country)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"code":    code,
		"name":    name,
		"team":    team.String,
		"number":  int(number.Int64),
		"country": country.String,
	}, nil
}

// RaceInfo returns the event record for a season and race, or nil when
// unknown.
func (s *SessionStore) RaceInfo(ctx context.Context, season int, race string) (map[string]interface{}, error) {
	var (
		name          string
		circuit, date sql.NullString
		laps          sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, circuit, laps, date FROM races WHERE season = ? AND race = ?`,
		season, race).Scan(&name, &circuit, &laps, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"season":  season,
		"race":    race,
		"name":    name,
		"circuit": circuit.String,
		"laps":    int(laps.Int64),
		"date":    date.String,
	}, nil
}

// SearchReports does a keyword search over race report text. Every query
// term must appear; hits are scored by title matches first.
func (s *SessionStore) SearchReports(ctx context.Context, query string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 5
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		conditions []string
		args       []interface{}
	)
	for _, term := range terms {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(body) LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, "%"+terms[0]+"%", limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT season, race, title, body FROM reports
		 WHERE `+strings.Join(conditions, " AND ")+`
		 ORDER BY CASE WHEN LOWER(title) LIKE ? THEN 0 ELSE 1 END, id
		 LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var (
			season sql.NullInt64
			race   sql.NullString
			title  string
			body   string
		)
		if err := rows.Scan(&season, &race, &title, &body); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"season":  int(season.Int64),
			"race":    race.String,
			"title":   title,
			"snippet": snippet(body, 240),
		})
	}
	return out, rows.Err()
}

// snippet truncates body text on a word boundary.
func snippet(body string, max int) string {
	if len(body) <= max {
		return body
	}
	cut := body[:max]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
