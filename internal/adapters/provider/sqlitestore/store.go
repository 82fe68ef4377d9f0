// Package sqlitestore persists sessions in SQLite and serves them as a
// telemetry.SessionProvider.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

const providerName = "sqlite"

// Store is a SQLite-backed session store.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

var _ telemetry.SessionProvider = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrOpen)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrOpen)
	}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "telemetry store ready", logger.String("path", path))
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fetch implements telemetry.SessionProvider. A session that was never stored
// is reported as ErrSessionUnavailable.
func (s *Store) Fetch(ctx context.Context, key telemetry.SessionKey) (*telemetry.Session, error) {
	start := time.Now()
	sess, err := s.fetch(ctx, key)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordProviderFetch(providerName, outcome, float64(time.Since(start).Milliseconds()))
	return sess, err
}

func (s *Store) fetch(ctx context.Context, key telemetry.SessionKey) (*telemetry.Session, error) {
	var sessionID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE year = ? AND event = ? AND identifier = ?`,
		key.Year, key.Event, key.Identifier,
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s not stored: %w", key, telemetry.ErrSessionUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", key, err, telemetry.ErrSessionUnavailable)
	}

	sess := &telemetry.Session{Key: key}

	laps, index, err := s.laps(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.samples(ctx, sessionID, laps, index); err != nil {
		return nil, err
	}
	sess.Laps = laps

	if sess.Corners, err = s.corners(ctx, sessionID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) laps(ctx context.Context, key telemetry.SessionKey, sessionID int64) ([]telemetry.Lap, map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, driver, lap_number, lap_time, accurate, deleted, pit_in, pit_out
		FROM laps WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s laps: %v: %w", key, err, telemetry.ErrSessionUnavailable)
	}
	defer rows.Close()

	var laps []telemetry.Lap
	index := make(map[int64]int)
	for rows.Next() {
		var (
			id  int64
			lap = telemetry.Lap{Event: key.Event, Session: key.Identifier}
		)
		lap.Key.Year = key.Year
		if err := rows.Scan(&id, &lap.Key.Driver, &lap.LapNumber, &lap.LapTime,
			&lap.Accurate, &lap.Deleted, &lap.PitIn, &lap.PitOut); err != nil {
			return nil, nil, fmt.Errorf("%s laps: %v: %w", key, err, telemetry.ErrSessionUnavailable)
		}
		index[id] = len(laps)
		laps = append(laps, lap)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s laps: %v: %w", key, err, telemetry.ErrSessionUnavailable)
	}
	return laps, index, nil
}

func (s *Store) samples(ctx context.Context, sessionID int64, laps []telemetry.Lap, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.lap_id, s.time, s.distance, s.x, s.y, s.speed, s.rpm, s.throttle, s.brake, s.gear, s.drs
		FROM samples s JOIN laps l ON l.id = s.lap_id
		WHERE l.session_id = ?
		ORDER BY s.lap_id, s.seq`, sessionID)
	if err != nil {
		return fmt.Errorf("samples: %v: %w", err, telemetry.ErrSessionUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lapID int64
			smp   telemetry.Sample
		)
		if err := rows.Scan(&lapID, &smp.Time, &smp.Distance, &smp.X, &smp.Y, &smp.Speed,
			&smp.RPM, &smp.Throttle, &smp.Brake, &smp.Gear, &smp.DRS); err != nil {
			return fmt.Errorf("samples: %v: %w", err, telemetry.ErrSessionUnavailable)
		}
		if i, ok := index[lapID]; ok {
			laps[i].Samples = append(laps[i].Samples, smp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("samples: %v: %w", err, telemetry.ErrSessionUnavailable)
	}
	return nil
}

func (s *Store) corners(ctx context.Context, sessionID int64) ([]telemetry.Corner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT distance, label FROM corners WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("corners: %v: %w", err, telemetry.ErrSessionUnavailable)
	}
	defer rows.Close()

	var out []telemetry.Corner
	for rows.Next() {
		var c telemetry.Corner
		if err := rows.Scan(&c.Distance, &c.Label); err != nil {
			return nil, fmt.Errorf("corners: %v: %w", err, telemetry.ErrSessionUnavailable)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSession stores sess, replacing any stored session with the same key.
func (s *Store) SaveSession(ctx context.Context, sess *telemetry.Session) (err error) {
	if sess == nil || sess.Key.Event == "" || sess.Key.Identifier == "" {
		return fmt.Errorf("session key incomplete: %w", ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	k := sess.Key
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE year = ? AND event = ? AND identifier = ?`,
		k.Year, k.Event, k.Identifier); err != nil {
		return fmt.Errorf("replace %s: %w", k, err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (year, event, identifier) VALUES (?, ?, ?)`,
		k.Year, k.Event, k.Identifier)
	if err != nil {
		return fmt.Errorf("insert %s: %w", k, err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert %s: %w", k, err)
	}

	if err = insertLaps(ctx, tx, sessionID, sess.Laps); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	if err = insertCorners(ctx, tx, sessionID, sess.Corners); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", k, err)
	}
	s.logger.Debug(ctx, "session saved",
		logger.String("session", k.String()),
		logger.Int("laps", len(sess.Laps)),
	)
	return nil
}

func insertLaps(ctx context.Context, tx *sql.Tx, sessionID int64, laps []telemetry.Lap) error {
	lapStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO laps (session_id, driver, lap_number, lap_time, accurate, deleted, pit_in, pit_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lapStmt.Close()

	smpStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (lap_id, seq, time, distance, x, y, speed, rpm, throttle, brake, gear, drs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer smpStmt.Close()

	for i := range laps {
		l := &laps[i]
		res, err := lapStmt.ExecContext(ctx, sessionID, l.Key.Driver, l.LapNumber, l.LapTime,
			l.Accurate, l.Deleted, l.PitIn, l.PitOut)
		if err != nil {
			return fmt.Errorf("lap %s #%d: %w", l.Key, l.LapNumber, err)
		}
		lapID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for seq, smp := range l.Samples {
			if _, err := smpStmt.ExecContext(ctx, lapID, seq, smp.Time, smp.Distance, smp.X, smp.Y,
				smp.Speed, smp.RPM, smp.Throttle, smp.Brake, smp.Gear, smp.DRS); err != nil {
				return fmt.Errorf("lap %s #%d sample %d: %w", l.Key, l.LapNumber, seq, err)
			}
		}
	}
	return nil
}

func insertCorners(ctx context.Context, tx *sql.Tx, sessionID int64, corners []telemetry.Corner) error {
	for seq, c := range corners {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO corners (session_id, seq, distance, label) VALUES (?, ?, ?, ?)`,
			sessionID, seq, c.Distance, c.Label); err != nil {
			return fmt.Errorf("corner %d: %w", seq, err)
		}
	}
	return nil
}

// Sessions lists every stored session key ordered by year, event and identifier.
func (s *Store) Sessions(ctx context.Context) ([]telemetry.SessionKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, event, identifier FROM sessions ORDER BY year, event, identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.SessionKey
	for rows.Next() {
		var k telemetry.SessionKey
		if err := rows.Scan(&k.Year, &k.Event, &k.Identifier); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
