// Package journal records daemon iterations and confirmed posts.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"moltd/internal/daemon"
	"moltd/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements daemon.Journal on a SQLite database.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

var _ daemon.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (or creates) the journal database at path and
// migrates it to the latest schema. path can be ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// appropriate PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (j *SQLiteJournal) RecordIteration(rec daemon.IterationRecord) (int64, error) {
	res, err := j.db.Exec(
		`INSERT INTO iterations (started_at, finished_at, mode, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		rec.StartedAt.Unix(), rec.FinishedAt.Unix(), rec.Mode, rec.Outcome, rec.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("recording iteration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading iteration id: %w", err)
	}
	return id, nil
}

func (j *SQLiteJournal) RecordPost(rec daemon.PostRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO posts (post_id, submolt, title, fingerprint, posted_at) VALUES (?, ?, ?, ?, ?)`,
		rec.PostID, rec.Submolt, rec.Title, rec.Fingerprint, rec.PostedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording post: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) ListIterations(limit int) ([]daemon.IterationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, started_at, finished_at, mode, outcome, detail FROM iterations ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing iterations: %w", err)
	}
	defer rows.Close()

	var out []daemon.IterationRecord
	for rows.Next() {
		var rec daemon.IterationRecord
		var started, finished int64
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Mode, &rec.Outcome, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scanning iteration: %w", err)
		}
		rec.StartedAt = time.Unix(started, 0).UTC()
		rec.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) ListPosts(limit int) ([]daemon.PostRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, post_id, submolt, title, fingerprint, posted_at FROM posts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var out []daemon.PostRecord
	for rows.Next() {
		var rec daemon.PostRecord
		var posted int64
		if err := rows.Scan(&rec.ID, &rec.PostID, &rec.Submolt, &rec.Title, &rec.Fingerprint, &posted); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		rec.PostedAt = time.Unix(posted, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
