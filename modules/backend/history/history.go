// Package history keeps records of backup runs and their logs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"backup-master/modules/backup"
)

const schema = `
CREATE TABLE IF NOT EXISTS backup_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	server_name TEXT NOT NULL,
	start_time  DATETIME NOT NULL,
	end_time    DATETIME,
	status      TEXT NOT NULL,
	backup_type TEXT NOT NULL,
	zip_path    TEXT NOT NULL DEFAULT '',
	report      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS backup_history_server ON backup_history(server_name, start_time);
CREATE TABLE IF NOT EXISTS backup_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	history_id INTEGER NOT NULL REFERENCES backup_history(id) ON DELETE CASCADE,
	timestamp  DATETIME NOT NULL,
	message    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS backup_logs_history ON backup_logs(history_id);
`

// StatusRunning marks records of runs not finished yet
const StatusRunning = "running"

// Record is a row of backup_history
type Record struct {
	ID         int64        `db:"id"`
	RunID      string       `db:"run_id"`
	ServerName string       `db:"server_name"`
	StartTime  time.Time    `db:"start_time"`
	EndTime    sql.NullTime `db:"end_time"`
	Status     string       `db:"status"`
	BackupType string       `db:"backup_type"`
	ZipPath    string       `db:"zip_path"`
	Report     string       `db:"report"`
}

type LogRecord struct {
	ID        int64     `db:"id"`
	HistoryID int64     `db:"history_id"`
	Timestamp time.Time `db:"timestamp"`
	Message   string    `db:"message"`
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens or creates the history database
func Open(ctx context.Context, path string) (*Store, error) {

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: unable to open `%s`: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: unable to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin creates a record for a started run
func (s *Store) Begin(ctx context.Context, snap backup.Snapshot) (int64, error) {

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_history (run_id, server_name, start_time, status, backup_type) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Server, snap.Started.UTC(), StatusRunning, snap.Mode.String())
	if err != nil {
		return 0, fmt.Errorf("history: unable to insert record: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) AppendLog(ctx context.Context, id int64, ts time.Time, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_logs (history_id, timestamp, message) VALUES (?, ?, ?)`,
		id, ts.UTC(), msg)
	if err != nil {
		return fmt.Errorf("history: unable to append log: %w", err)
	}
	return nil
}

// Finish stores final state of the run
func (s *Store) Finish(ctx context.Context, id int64, out backup.Outcome) error {

	end := out.Finished
	if end.IsZero() {
		end = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE backup_history SET end_time = ?, status = ?, zip_path = ?, report = ? WHERE id = ?`,
		end.UTC(), out.State.String(), out.ArchivePath, out.Report, id)
	if err != nil {
		return fmt.Errorf("history: unable to update record %d: %w", id, err)
	}
	return nil
}

// List returns latest records first. Empty server means all servers, limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, server string, limit int) ([]Record, error) {

	q := `SELECT id, run_id, server_name, start_time, end_time, status, backup_type, zip_path, report FROM backup_history`
	var args []interface{}

	if server != "" {
		q += ` WHERE server_name = ?`
		args = append(args, server)
	}
	q += ` ORDER BY start_time DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var rs []Record
	if err := s.db.SelectContext(ctx, &rs, q, args...); err != nil {
		return nil, fmt.Errorf("history: unable to list records: %w", err)
	}
	return rs, nil
}

func (s *Store) Logs(ctx context.Context, id int64) ([]LogRecord, error) {
	var ls []LogRecord
	err := s.db.SelectContext(ctx, &ls,
		`SELECT id, history_id, timestamp, message FROM backup_logs WHERE history_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("history: unable to read logs of record %d: %w", id, err)
	}
	return ls, nil
}

// Handlers returns observer recording a single orchestrator's runs.
// Store errors are logged and never interrupt the run.
func (s *Store) Handlers(log logrus.FieldLogger) backup.Handlers {

	var (
		mu sync.Mutex
		id int64
	)
	current := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return id
	}
	ctx := context.Background()

	return backup.Handlers{
		OnStart: func(snap backup.Snapshot) {
			rid, err := s.Begin(ctx, snap)
			if err != nil {
				log.Error(err)
			}
			mu.Lock()
			id = rid
			mu.Unlock()
		},
		OnLog: func(msg string) {
			if rid := current(); rid != 0 {
				if err := s.AppendLog(ctx, rid, s.now(), msg); err != nil {
					log.Error(err)
				}
			}
		},
		OnComplete: func(out backup.Outcome) {
			if rid := current(); rid != 0 {
				if err := s.Finish(ctx, rid, out); err != nil {
					log.Error(err)
				}
			}
			mu.Lock()
			id = 0
			mu.Unlock()
		},
	}
}
