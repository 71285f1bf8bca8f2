package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

type DeliveryRecord struct {
	ID          int64  `json:"id"`
	TS          int64  `json:"ts"`
	RunID       string `json:"run_id"`
	Digest      string `json:"digest"`
	ChatID      string `json:"chat_id"`
	Status      string `json:"status"`
	ErrorCode   int    `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	StickerSent bool   `json:"sticker_sent"`
	Text        string `json:"text"`
	CreatedAt   string `json:"created_at"`
}

type RecordSnapshot struct {
	TS            int64   `json:"ts"`
	RunID         string  `json:"run_id"`
	Endpoint      string  `json:"endpoint"`
	Key           string  `json:"key"`
	Category      string  `json:"category"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Unit          string  `json:"unit"`
	DisplayName   string  `json:"display_name"`
	CreatedAt     string  `json:"created_at"`
}

type JobRun struct {
	RunID      string `json:"run_id"`
	Job        string `json:"job"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	Status     string `json:"status"`
	Records    int    `json:"records"`
	Skipped    int    `json:"skipped"`
	Messages   int    `json:"messages"`
	Error      string `json:"error"`
}

// Open creates the database file if needed and migrates it. loc is used to
// turn calendar dates into time ranges; nil means UTC.
func Open(path string, loc *time.Location) (*Store, error) {
	if path == "" {
		path = "data/pricebot.db"
	}
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db, loc: loc}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			key TEXT PRIMARY KEY,
			value REAL NOT NULL,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS record_snapshot (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			run_id TEXT,
			endpoint TEXT,
			key TEXT,
			category TEXT,
			value REAL,
			change REAL,
			change_percent REAL,
			unit TEXT,
			display_name TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_record_snapshot_key_ts ON record_snapshot(key, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_record_snapshot_run ON record_snapshot(run_id);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			run_id TEXT,
			digest TEXT,
			chat_id TEXT,
			status TEXT,
			error_code INTEGER,
			error_msg TEXT,
			sticker_sent INTEGER,
			text TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_ts ON deliveries(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_digest ON deliveries(digest);`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			run_id TEXT PRIMARY KEY,
			job TEXT,
			started_at INTEGER,
			finished_at INTEGER,
			status TEXT,
			records INTEGER,
			skipped INTEGER,
			messages INTEGER,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertDelivery(d DeliveryRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if d.TS == 0 {
		d.TS = time.Now().Unix()
	}
	if d.CreatedAt == "" {
		d.CreatedAt = time.Now().Format(time.RFC3339)
	}
	sticker := 0
	if d.StickerSent {
		sticker = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO deliveries (ts, run_id, digest, chat_id, status, error_code, error_msg, sticker_sent, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.TS, d.RunID, d.Digest, d.ChatID, d.Status, d.ErrorCode, d.ErrorMsg, sticker, d.Text, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *Store) QueryDeliveriesByDate(date, status, digest string, limit, offset int) ([]DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	start, end, err := s.dateRange(date)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)

	query := `SELECT id, ts, run_id, digest, chat_id, status, error_code, error_msg, sticker_sent, text, created_at
		FROM deliveries WHERE ts >= ? AND ts < ?`
	args := []any{start, end}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if digest != "" {
		query += " AND digest = ?"
		args = append(args, digest)
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		var sticker int
		if err := rows.Scan(&d.ID, &d.TS, &d.RunID, &d.Digest, &d.ChatID, &d.Status, &d.ErrorCode, &d.ErrorMsg, &sticker, &d.Text, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.StickerSent = sticker == 1
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows delivery: %w", err)
	}
	return out, nil
}

// InsertRecordSnapshots writes one extraction pass in a single transaction.
func (s *Store) InsertRecordSnapshots(recs []RecordSnapshot) error {
	if s == nil || s.db == nil || len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO record_snapshot (ts, run_id, endpoint, key, category, value, change, change_percent, unit, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare snapshot: %w", err)
	}
	defer stmt.Close()
	now := time.Now()
	for _, r := range recs {
		if r.TS == 0 {
			r.TS = now.Unix()
		}
		if r.CreatedAt == "" {
			r.CreatedAt = now.Format(time.RFC3339)
		}
		if _, err := stmt.Exec(r.TS, r.RunID, r.Endpoint, r.Key, r.Category, r.Value, r.Change, r.ChangePercent, r.Unit, r.DisplayName, r.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func (s *Store) QueryRecordSnapshots(key string, limit, offset int) ([]RecordSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	limit, offset = clampPage(limit, offset)
	query := `SELECT ts, run_id, endpoint, key, category, value, change, change_percent, unit, display_name, created_at
		FROM record_snapshot WHERE key = ?
		ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, key, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query record snapshot: %w", err)
	}
	defer rows.Close()
	var out []RecordSnapshot
	for rows.Next() {
		var r RecordSnapshot
		if err := rows.Scan(&r.TS, &r.RunID, &r.Endpoint, &r.Key, &r.Category, &r.Value, &r.Change, &r.ChangePercent, &r.Unit, &r.DisplayName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record snapshot: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows record snapshot: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertJobRun(r JobRun) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO job_runs (run_id, job, started_at, finished_at, status, records, skipped, messages, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET finished_at=excluded.finished_at, status=excluded.status,
		   records=excluded.records, skipped=excluded.skipped, messages=excluded.messages, error=excluded.error`,
		r.RunID, r.Job, r.StartedAt, r.FinishedAt, r.Status, r.Records, r.Skipped, r.Messages, r.Error,
	)
	if err != nil {
		return fmt.Errorf("upsert job run: %w", err)
	}
	return nil
}

func (s *Store) RecentJobRuns(job string, limit int) ([]JobRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	limit, _ = clampPage(limit, 0)
	query := `SELECT run_id, job, started_at, finished_at, status, records, skipped, messages, error FROM job_runs`
	var args []any
	if job != "" {
		query += " WHERE job = ?"
		args = append(args, job)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()
	var out []JobRun
	for rows.Next() {
		var r JobRun
		if err := rows.Scan(&r.RunID, &r.Job, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Records, &r.Skipped, &r.Messages, &r.Error); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows job run: %w", err)
	}
	return out, nil
}

func (s *Store) dateRange(date string) (int64, int64, error) {
	t, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid date: %q", date)
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)
	return start.Unix(), end.Unix(), nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
