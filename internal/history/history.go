// Package history keeps a ledger of program runs in SQLite.
package history

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("foolvm.history")

// ErrRunNotFound indicates the requested run is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	file       TEXT NOT NULL,
	digest     TEXT NOT NULL,
	status     TEXT NOT NULL,
	fault      TEXT NOT NULL DEFAULT '',
	pc         INTEGER NOT NULL DEFAULT -1,
	steps      INTEGER NOT NULL,
	output     TEXT NOT NULL
)`

// Run is one recorded execution.
type Run struct {
	ID        string
	StartedAt time.Time
	File      string
	Digest    string // sha256 of the executed input
	Status    string
	Fault     string // fault code name, empty unless faulted
	PC        int    // faulting pc, -1 unless faulted
	Steps     int
	Output    string
}

// Ledger stores runs in a SQLite database.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record stores r, assigning an ID and start time when they are unset.
func (l *Ledger) Record(r *Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Fault == "" {
		r.PC = -1
	}
	_, err := l.db.Exec(
		`INSERT INTO runs (id, started_at, file, digest, status, fault, pc, steps, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.File, r.Digest, r.Status, r.Fault, r.PC, r.Steps, r.Output,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	log.Debugf("recorded run %s: %s", r.ID, r.Status)
	return nil
}

const columns = "id, started_at, file, digest, status, fault, pc, steps, output"

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (l *Ledger) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query("SELECT "+columns+" FROM runs ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID.
func (l *Ledger) Get(id string) (*Run, error) {
	r, err := scanRun(l.db.QueryRow("SELECT "+columns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started int64
	err := s.Scan(&r.ID, &started, &r.File, &r.Digest, &r.Status, &r.Fault, &r.PC, &r.Steps, &r.Output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	r.StartedAt = time.Unix(0, started)
	return &r, nil
}
