package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"forum/crawler/internal/domain"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFileName is the database kept inside the state directory.
const SQLiteFileName = "resume.db"

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the resume database under dir in WAL mode. A database
// that cannot be opened is moved aside as resume.db.corrupt-<timestamp> and
// the crawl starts again with an empty one.
func NewSQLiteStore(dir string) (ResumeStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, SQLiteFileName)
	db, err := openSQLite(path)
	if err != nil {
		log.Warnf("⚠️ Resume database %s is unusable, starting with empty state: %v", path, err)
		if err := quarantineSQLite(path, time.Now().UTC()); err != nil {
			return nil, err
		}
		if db, err = openSQLite(path); err != nil {
			return nil, err
		}
	}

	return &sqliteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS resume_records (
		fingerprint TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resume_status ON resume_records(status);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// quarantineSQLite renames the database out of the way and drops its WAL
// side files, which belong to the old database.
func quarantineSQLite(path string, now time.Time) error {
	aside := path + ".corrupt-" + now.Format("20060102T150405")
	if err := os.Rename(path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to move unusable database aside: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s%s: %w", path, suffix, err)
		}
	}
	log.Warnf("📦 Moved unusable resume database to %s", aside)
	return nil
}

func (s *sqliteStore) IsDone(ctx context.Context, fingerprint string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM resume_records WHERE fingerprint = ?`, fingerprint).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query resume record %s: %w", fingerprint, err)
	}
	return domain.ResumeStatus(status) == domain.StatusDone, nil
}

func (s *sqliteStore) MarkPending(ctx context.Context, fingerprint string) error {
	return s.apply(ctx, fingerprint, domain.StatusPending, "")
}

func (s *sqliteStore) MarkDone(ctx context.Context, fingerprint string) error {
	return s.apply(ctx, fingerprint, domain.StatusDone, "")
}

func (s *sqliteStore) MarkFailed(ctx context.Context, fingerprint, reason string) error {
	return s.apply(ctx, fingerprint, domain.StatusFailed, reason)
}

// apply upserts the record unless it is already done. The status guard lives
// in the statement itself so no read is needed.
func (s *sqliteStore) apply(ctx context.Context, fingerprint string, status domain.ResumeStatus, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resume_records (fingerprint, status, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			updated_at = excluded.updated_at
		WHERE resume_records.status != 'done'
		  AND (resume_records.status != excluded.status OR resume_records.reason != excluded.reason)`,
		fingerprint, status.String(), reason, s.now())
	if err != nil {
		return fmt.Errorf("failed to set %s for %s: %w", status, fingerprint, err)
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]domain.ResumeRecord, error) {
	records := make(map[string]domain.ResumeRecord)

	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, status, reason, updated_at FROM resume_records`)
	if err != nil {
		log.Warnf("⚠️ Failed to load resume records, starting with empty state: %v", err)
		return records, nil
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.ResumeRecord
		var status string
		if err := rows.Scan(&rec.Fingerprint, &status, &rec.Reason, &rec.UpdatedAt); err != nil {
			log.Warnf("⚠️ Failed to read resume records, starting with empty state: %v", err)
			return make(map[string]domain.ResumeRecord), nil
		}
		rec.Status = domain.ResumeStatus(status)
		records[rec.Fingerprint] = rec
	}
	if err := rows.Err(); err != nil {
		log.Warnf("⚠️ Failed to read resume records, starting with empty state: %v", err)
		return make(map[string]domain.ResumeRecord), nil
	}

	log.Infof("📂 Loaded %d resume records from %s", len(records), SQLiteFileName)
	return records, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
