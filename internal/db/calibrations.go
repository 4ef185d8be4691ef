package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoCalibration is returned when a key has no stored offset.
var ErrNoCalibration = errors.New("no calibration stored")

// Calibration is the stored offset for one tracked object.
type Calibration struct {
	Key       string    `json:"key"`
	DX        float64   `json:"dx"`
	DY        float64   `json:"dy"`
	DZ        float64   `json:"dz"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalibrationEvent is one audit log row.
type CalibrationEvent struct {
	ID         int64     `json:"id"`
	Key        string    `json:"key"`
	DX         float64   `json:"dx"`
	DY         float64   `json:"dy"`
	DZ         float64   `json:"dz"`
	Relative   bool      `json:"relative"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SaveDelta stores or replaces the offset for key.
func (db *DB) SaveDelta(key string, dx, dy, dz float64) error {
	_, err := db.Exec(`
		INSERT INTO calibrations (key, dx, dy, dz, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			dx = excluded.dx,
			dy = excluded.dy,
			dz = excluded.dz,
			updated_at = excluded.updated_at
	`, key, dx, dy, dz, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save calibration %q: %w", key, err)
	}
	return nil
}

// Delta returns the stored offset for key.
func (db *DB) Delta(key string) (Calibration, error) {
	var c Calibration
	err := db.QueryRow(`SELECT key, dx, dy, dz, updated_at FROM calibrations WHERE key = ?`, key).
		Scan(&c.Key, &c.DX, &c.DY, &c.DZ, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Calibration{}, fmt.Errorf("%w: %q", ErrNoCalibration, key)
	}
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to read calibration %q: %w", key, err)
	}
	return c, nil
}

// Deltas returns every stored offset ordered by key.
func (db *DB) Deltas() ([]Calibration, error) {
	rows, err := db.Query(`SELECT key, dx, dy, dz, updated_at FROM calibrations ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	defer rows.Close()

	var out []Calibration
	for rows.Next() {
		var c Calibration
		if err := rows.Scan(&c.Key, &c.DX, &c.DY, &c.DZ, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteDelta removes the offset for key. Deleting a missing key is not an
// error.
func (db *DB) DeleteDelta(key string) error {
	if _, err := db.Exec(`DELETE FROM calibrations WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete calibration %q: %w", key, err)
	}
	return nil
}

// RecordCalibrationEvent appends a row to the audit log.
func (db *DB) RecordCalibrationEvent(e CalibrationEvent) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO calibration_log (key, dx, dy, dz, relative, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Key, e.DX, e.DY, e.DZ, e.Relative, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record calibration event: %w", err)
	}
	return nil
}

// CalibrationLog returns the most recent audit rows, newest first. A limit
// of zero or less returns everything.
func (db *DB) CalibrationLog(limit int) ([]CalibrationEvent, error) {
	query := `SELECT id, key, dx, dy, dz, relative, recorded_at FROM calibration_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration log: %w", err)
	}
	defer rows.Close()

	var out []CalibrationEvent
	for rows.Next() {
		var e CalibrationEvent
		if err := rows.Scan(&e.ID, &e.Key, &e.DX, &e.DY, &e.DZ, &e.Relative, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
