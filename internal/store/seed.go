package store

import (
	"context"
	"strings"
)

// LapRecord is one lap to load into the store.
type LapRecord struct {
	Season   int
	Race     string
	Driver   string
	Lap      int
	Time     float64
	S1       float64
	S2       float64
	S3       float64
	Compound string
	Stint    int
	Position int
}

// ResultRecord is one classification row to load.
type ResultRecord struct {
	Season   int
	Race     string
	Position int
	Driver   string
	Team     string
	Points   float64
	Status   string
}

// AddLaps bulk-inserts lap records in one transaction.
func (s *SessionStore) AddLaps(ctx context.Context, laps []LapRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO laps (season, race, driver, lap, time, s1, s2, s3, compound, stint, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range laps {
		if _, err := stmt.ExecContext(ctx, l.Season, l.Race, strings.ToUpper(l.Driver),
			l.Lap, l.Time, l.S1, l.S2, l.S3, l.Compound, l.Stint, l.Position); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddResults bulk-inserts classification rows.
func (s *SessionStore) AddResults(ctx context.Context, results []ResultRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO results (season, race, position, driver, team, points, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.Season, r.Race, r.Position,
			strings.ToUpper(r.Driver), r.Team, r.Points, r.Status); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddDriver upserts one driver profile.
func (s *SessionStore) AddDriver(ctx context.Context, code, name, team string, number int, country string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO drivers (code, name, team, number, country) VALUES (?, ?, ?, ?, ?)`,
		strings.ToUpper(code), name, team, number, country)
	return err
}

// AddRace upserts one event record.
func (s *SessionStore) AddRace(ctx context.Context, season int, race, name, circuit string, laps int, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO races (season, race, name, circuit, laps, date) VALUES (?, ?, ?, ?, ?, ?)`,
		season, race, name, circuit, laps, date)
	return err
}

// AddReport inserts one race report document.
func (s *SessionStore) AddReport(ctx context.Context, season int, race, title, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (season, race, title, body) VALUES (?, ?, ?, ?)`,
		season, race, title, body)
	return err
}
