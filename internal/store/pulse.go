package store

import (
	"database/sql"
	"errors"
	"time"
)

// PulseSource records what caused a pulse.
type PulseSource string

const (
	// SourceGesture marks a pulse triggered by a classified hand frame.
	SourceGesture PulseSource = "gesture"
	// SourceManual marks a pulse requested over the HTTP API.
	SourceManual PulseSource = "manual"
)

// PulseRecord is one persisted pulse attempt.
type PulseRecord struct {
	ID        string
	Gesture   string
	Symbol    string
	Source    PulseSource
	Address   string
	OnError   string
	OffError  string
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether both writes of the pulse succeeded.
func (p *PulseRecord) OK() bool {
	return p.OnError == "" && p.OffError == ""
}

// PulseRepository stores pulse history.
type PulseRepository struct {
	db *sql.DB
}

// Pulses returns the pulse repository for this store.
func (s *Store) Pulses() *PulseRepository {
	return &PulseRepository{db: s.db}
}

// Create inserts a pulse record.
func (r *PulseRepository) Create(p *PulseRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO pulses (id, gesture, symbol, source, address, on_error, off_error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Gesture, p.Symbol, string(p.Source), p.Address, p.OnError, p.OffError,
		p.StartedAt.UTC(), p.Duration.Milliseconds(),
	)
	return err
}

// GetByID retrieves a pulse record by its ID.
func (r *PulseRepository) GetByID(id string) (*PulseRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, gesture, symbol, source, address, on_error, off_error, started_at, duration_ms
		 FROM pulses WHERE id = ?`,
		id,
	)

	p, err := scanPulse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns the most recent pulse records, newest first.
// A non-positive limit returns all records.
func (r *PulseRepository) List(limit int) ([]*PulseRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, gesture, symbol, source, address, on_error, off_error, started_at, duration_ms
		 FROM pulses ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pulses []*PulseRecord
	for rows.Next() {
		p, err := scanPulse(rows)
		if err != nil {
			return nil, err
		}
		pulses = append(pulses, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pulses, nil
}

// CountByGesture returns the number of recorded pulses per gesture name.
func (r *PulseRepository) CountByGesture() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT gesture, COUNT(*) FROM pulses GROUP BY gesture`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}

	return counts, rows.Err()
}

// DeleteBefore removes records started before t and returns how many were removed.
func (r *PulseRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM pulses WHERE started_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPulse(row rowScanner) (*PulseRecord, error) {
	p := &PulseRecord{}
	var source string
	var durationMs int64

	err := row.Scan(&p.ID, &p.Gesture, &p.Symbol, &source, &p.Address,
		&p.OnError, &p.OffError, &p.StartedAt, &durationMs)
	if err != nil {
		return nil, err
	}

	p.Source = PulseSource(source)
	p.Duration = time.Duration(durationMs) * time.Millisecond
	return p, nil
}
