// Package turnlog implements the audit-trail Logger: every completed
// Turn and every other hook event is dual-written to a SQLite database
// (for query) and a JSONL file (for tailing and recovery).
package turnlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// FormatTimestamp renders ts using a platform-stable strftime pattern,
// so audit-trail timestamps look the same whether chorusd is built
// against glibc, musl, or a libc-less Go runtime.
func FormatTimestamp(ts int64) string {
	return strftime.Format("%Y-%m-%d %H:%M:%S", time.Unix(ts, 0).UTC())
}

// normalizeSummary applies Unicode NFC normalization before a Turn's
// text content is flattened into the JSONL audit trail, so equivalent
// glyph sequences typed by different agent-side editors compare equal
// on later grep/diff over the log.
func normalizeSummary(s string) string {
	return norm.NFC.String(s)
}

// Logger dual-writes Turns and Events for one session's runtime
// directory: <dir>/events.db (SQLite) and <dir>/events.jsonl.
type Logger struct {
	db        *sql.DB
	jsonlPath string
	session   string
	log       *slog.Logger
}

// Open opens (creating if needed) the SQLite database at dbPath,
// applying the schema, and prepares JSONL appends to jsonlPath.
func Open(dbPath, jsonlPath, session string, log *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema to %s: %w", dbPath, err)
	}
	return &Logger{db: db, jsonlPath: jsonlPath, session: session, log: log}, nil
}

// Close closes the underlying database handle.
func (l *Logger) Close() error {
	return l.db.Close()
}

type turnRecord struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Ts      int64           `json:"ts"`
	TsHuman string          `json:"ts_human"`
	Summary string          `json:"summary,omitempty"`
	Turn    json.RawMessage `json:"turn"`
}

// RecordTurn persists a completed Turn's raw content blocks.
func (l *Logger) RecordTurn(turn json.RawMessage, ts int64) error {
	id := uuid.NewString()
	if ts == 0 {
		ts = time.Now().Unix()
	}

	if _, err := l.db.Exec(
		`INSERT INTO chorus_turns (id, session, ts, turn) VALUES (?, ?, ?, ?)`,
		id, l.session, ts, string(turn),
	); err != nil {
		return fmt.Errorf("inserting turn into sqlite: %w", err)
	}

	rec := turnRecord{
		ID:      id,
		Session: l.session,
		Ts:      ts,
		TsHuman: FormatTimestamp(ts),
		Summary: normalizeSummary(summarizeTurn(turn)),
		Turn:    turn,
	}
	if err := appendJSONLine(l.jsonlPath, rec); err != nil {
		l.log.Error("turn recorded in sqlite but jsonl append failed", "error", err, "id", id)
		return err
	}
	return nil
}

// summarizeTurn extracts the text of the first text content block, for
// a human-scannable field in the JSONL trail. Best-effort: any
// decoding failure just yields an empty summary, never an error.
func summarizeTurn(turn json.RawMessage) string {
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(turn, &blocks); err != nil {
		return ""
	}
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

type eventRecord struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Ts      int64           `json:"ts"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RecordEvent persists a non-Turn hook event (SessionStart, SessionEnd,
// SubagentStart, PermissionRequest, and so on).
func (l *Logger) RecordEvent(name string, data json.RawMessage, ts int64) error {
	id := uuid.NewString()
	if ts == 0 {
		ts = time.Now().Unix()
	}

	if _, err := l.db.Exec(
		`INSERT INTO chorus_events (id, session, ts, name, data) VALUES (?, ?, ?, ?, ?)`,
		id, l.session, ts, name, string(data),
	); err != nil {
		return fmt.Errorf("inserting event into sqlite: %w", err)
	}

	rec := eventRecord{ID: id, Session: l.session, Ts: ts, Name: name, Data: data}
	if err := appendJSONLine(l.jsonlPath, rec); err != nil {
		l.log.Error("event recorded in sqlite but jsonl append failed", "error", err, "id", id)
		return err
	}
	return nil
}

// RecentTurns returns up to limit of the most recent Turns for this
// session, newest first.
func (l *Logger) RecentTurns(limit int) ([]json.RawMessage, error) {
	rows, err := l.db.Query(
		`SELECT turn FROM chorus_turns WHERE session = ? ORDER BY ts DESC LIMIT ?`,
		l.session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent turns: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

func appendJSONLine(path string, record any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling jsonl record: %w", err)
	}
	return atomicAppend(path, append(data, '\n'))
}

// atomicAppend opens path for append, takes an exclusive advisory
// lock, writes, and fsyncs before releasing — so concurrent writers
// (and a reader racing a daemon restart) never observe a torn line.
func atomicAppend(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Sync()
}
