// Package db persists routines and run records in SQLite. Routine configs
// are stored as YAML text so the database stays readable with standard tools.
package db

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrRoutineNotFound is returned when a routine id has no record.
var ErrRoutineNotFound = errors.New("routine not found")

// RoutineSummary is one row of a routine listing.
type RoutineSummary struct {
	ID          string
	Name        string
	Environment string
	Description string
	SavedAt     time.Time
}

// RunRecord is one persisted run reference.
type RunRecord struct {
	ID         int64
	SavedAt    time.Time
	FinishedAt time.Time
	RoutineID  string
	Filename   string
}

// Store is the SQLite-backed routine and run store.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

// NewStore creates an unopened store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{log: logger, now: time.Now}
}

// Open opens the database at path and initializes the schema. Use ":memory:"
// for an in-memory database.
func (s *Store) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRoutine inserts a routine, assigning a fresh id when it has none.
func (s *Store) SaveRoutine(r *routine.Routine) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	config, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode routine %s: %w", r.Name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO routine (id, name, config, saved_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, string(config), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save routine %s: %w", r.Name, err)
	}
	s.log.Debug("saved routine", "id", r.ID, "name", r.Name)
	return nil
}

// UpdateRoutine rewrites an existing routine record in place.
func (s *Store) UpdateRoutine(r *routine.Routine) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	config, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode routine %s: %w", r.Name, err)
	}
	result, err := s.db.Exec(
		`UPDATE routine SET name = ?, config = ?, saved_at = ? WHERE id = ?`,
		r.Name, string(config), s.now().UTC(), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update routine %s: %w", r.Name, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRoutineNotFound, r.ID)
	}
	return nil
}

// LoadRoutine reads a routine and its save time by id.
func (s *Store) LoadRoutine(id string) (*routine.Routine, time.Time, error) {
	if s.db == nil {
		return nil, time.Time{}, fmt.Errorf("database not opened")
	}
	if id == "" {
		return nil, time.Time{}, fmt.Errorf("routine id must not be empty")
	}

	var config string
	var savedAt time.Time
	err := s.db.QueryRow(
		`SELECT config, saved_at FROM routine WHERE id = ?`, id,
	).Scan(&config, &savedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrRoutineNotFound, id)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load routine %s: %w", id, err)
	}

	var r routine.Routine
	if err := yaml.Unmarshal([]byte(config), &r); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse routine %s: %w", id, err)
	}
	return &r, savedAt, nil
}

// ListRoutines returns summaries matching the keyword (substring of the name)
// and carrying every requested tag, newest first.
func (s *Store) ListRoutines(keyword string, tags []string) ([]RoutineSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, name, config, saved_at FROM routine WHERE name LIKE ? ORDER BY saved_at DESC`,
		"%"+keyword+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	defer rows.Close()

	var out []RoutineSummary
	for rows.Next() {
		var summary RoutineSummary
		var config string
		if err := rows.Scan(&summary.ID, &summary.Name, &config, &summary.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan routine: %w", err)
		}

		// Environment and description come out of the stored config; a
		// config that fails to parse still lists, just without metadata.
		var r routine.Routine
		if err := yaml.Unmarshal([]byte(config), &r); err == nil {
			summary.Environment = r.Environment.Name
			summary.Description = r.Description
			if !hasAllTags(r.Tags, tags) {
				continue
			}
		} else if len(tags) > 0 {
			continue
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// RemoveRoutine deletes a routine and, when removeRuns is set, its run
// records.
func (s *Store) RemoveRoutine(id string, removeRuns bool) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM routine WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove routine %s: %w", id, err)
	}
	if removeRuns {
		if _, err := s.db.Exec(`DELETE FROM run WHERE routine_id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove runs of routine %s: %w", id, err)
		}
	}
	return nil
}

// SaveRun upserts a run record keyed by filename. Start and finish times come
// from the first and last data timestamps.
func (s *Store) SaveRun(routineID, filename string, data *frame.Frame) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if data == nil || data.Len() == 0 {
		return 0, fmt.Errorf("run %s has no data", filename)
	}
	timestamps := data.Column(frame.TimestampColumn)
	if len(timestamps) == 0 {
		return 0, fmt.Errorf("run %s has no timestamps", filename)
	}
	start := time.Unix(0, int64(timestamps[0]*1e9)).UTC()
	finish := time.Unix(0, int64(timestamps[len(timestamps)-1]*1e9)).UTC()

	var existing int64
	err := s.db.QueryRow(`SELECT id FROM run WHERE filename = ?`, filename).Scan(&existing)
	switch {
	case err == nil:
		if _, err := s.db.Exec(
			`UPDATE run SET finished_at = ? WHERE filename = ?`, finish, filename,
		); err != nil {
			return 0, fmt.Errorf("failed to update run %s: %w", filename, err)
		}
		return existing, nil
	case err == sql.ErrNoRows:
		result, err := s.db.Exec(
			`INSERT INTO run (saved_at, finished_at, routine_id, filename) VALUES (?, ?, ?, ?)`,
			start, finish, routineID, filename,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save run %s: %w", filename, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read run id: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("failed to look up run %s: %w", filename, err)
	}
}

// RunsByRoutine returns the run filenames of a routine, newest first.
func (s *Store) RunsByRoutine(routineID string) ([]string, error) {
	return s.runFilenames(`SELECT filename FROM run WHERE routine_id = ? ORDER BY saved_at DESC`, routineID)
}

// AllRuns returns every run filename, newest first.
func (s *Store) AllRuns() ([]string, error) {
	return s.runFilenames(`SELECT filename FROM run ORDER BY saved_at DESC`)
}

func (s *Store) runFilenames(query string, args ...any) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var fname string
		if err := rows.Scan(&fname); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		filenames = append(filenames, fname)
	}
	return filenames, rows.Err()
}

// RemoveRunByFilename deletes a run record by its archive filename.
func (s *Store) RemoveRunByFilename(filename string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM run WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to remove run %s: %w", filename, err)
	}
	return nil
}

// RemoveRunByID deletes a run record by id.
func (s *Store) RemoveRunByID(id int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM run WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove run %d: %w", id, err)
	}
	return nil
}

// ImportRoutines copies routine records from an external database file.
// Records whose ids already exist are skipped and reported together.
func (s *Store) ImportRoutines(path string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	ext, err := openExternal(path)
	if err != nil {
		return err
	}
	defer ext.Close()

	rows, err := ext.Query(`SELECT id, name, config, saved_at FROM routine`)
	if err != nil {
		return fmt.Errorf("failed to read routines from %s: %w", path, err)
	}
	defer rows.Close()

	var conflicts []string
	for rows.Next() {
		var id, name, config string
		var savedAt time.Time
		if err := rows.Scan(&id, &name, &config, &savedAt); err != nil {
			return fmt.Errorf("failed to scan imported routine: %w", err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO routine (id, name, config, saved_at) VALUES (?, ?, ?, ?)`,
			id, name, config, savedAt,
		); err != nil {
			conflicts = append(conflicts, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("failed to import routines (already present or invalid): %v", conflicts)
	}
	return nil
}

// ExportRoutines copies the named routines into an external database file.
func (s *Store) ExportRoutines(path string, ids []string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	ext, err := openExternal(path)
	if err != nil {
		return err
	}
	defer ext.Close()

	for _, id := range ids {
		var name, config string
		var savedAt time.Time
		err := s.db.QueryRow(
			`SELECT name, config, saved_at FROM routine WHERE id = ?`, id,
		).Scan(&name, &config, &savedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrRoutineNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read routine %s: %w", id, err)
		}
		if _, err := ext.Exec(
			`INSERT INTO routine (id, name, config, saved_at) VALUES (?, ?, ?, ?)`,
			id, name, config, savedAt,
		); err != nil {
			return fmt.Errorf("failed to export routine %s: %w", id, err)
		}
	}
	return nil
}

func openExternal(path string) (*sql.DB, error) {
	ext, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := ext.Exec(schemaSQL); err != nil {
		ext.Close()
		return nil, fmt.Errorf("failed to initialize schema in %s: %w", path, err)
	}
	return ext, nil
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
