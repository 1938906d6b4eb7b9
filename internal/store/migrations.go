package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per pulse attempt, successful or not
		`CREATE TABLE IF NOT EXISTS pulses (
			id TEXT PRIMARY KEY,
			gesture TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL CHECK(source IN ('gesture', 'manual')),
			address TEXT NOT NULL,
			on_error TEXT NOT NULL DEFAULT '',
			off_error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pulses_started_at ON pulses(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pulses_gesture ON pulses(gesture)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
