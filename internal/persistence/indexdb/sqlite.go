// Package indexdb keeps a queryable sqlite index of relay sessions and chat.
// Writes are queued to a single writer goroutine and dropped when the queue
// is full; the frame journal stays the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropJoin  atomic.Uint64
	dropLeave atomic.Uint64
	dropChat  atomic.Uint64
	dropMeta  atomic.Uint64
}

type reqKind int

const (
	reqJoin reqKind = iota + 1
	reqLeave
	reqChat
	reqMeta
)

type req struct {
	kind reqKind

	session SessionRow
	chat    ChatRow
	key     string
	value   string
}

type SessionRow struct {
	ID       string
	Name     string
	Addr     string
	JoinedAt time.Time
	LeftAt   time.Time
}

type ChatRow struct {
	SessionID string
	Name      string
	Text      string
	At        time.Time
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropJoinTotal  uint64
	DropLeaveTotal uint64
	DropChatTotal  uint64
	DropMetaTotal  uint64
}

const defaultQueue = 4096

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, defaultQueue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			addr TEXT NOT NULL,
			joined_at TEXT NOT NULL,
			left_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS chat (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			text TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_session ON chat(session_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordJoin(id, name, addr string, at time.Time) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqJoin, session: SessionRow{ID: id, Name: name, Addr: addr, JoinedAt: at}}, &s.dropJoin)
}

func (s *SQLiteIndex) RecordLeave(id string, at time.Time) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqLeave, session: SessionRow{ID: id, LeftAt: at}}, &s.dropLeave)
}

func (s *SQLiteIndex) RecordChat(sessionID, name, text string, at time.Time) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqChat, chat: ChatRow{SessionID: sessionID, Name: name, Text: text, At: at}}, &s.dropChat)
}

func (s *SQLiteIndex) SetMeta(key, value string) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqMeta, key: key, value: value}, &s.dropMeta)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropJoinTotal:  s.dropJoin.Load(),
		DropLeaveTotal: s.dropLeave.Load(),
		DropChatTotal:  s.dropChat.Load(),
		DropMetaTotal:  s.dropMeta.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,name,addr,joined_at,left_at) VALUES(?,?,?,?,NULL)`)
	updateLeave, _ := s.db.Prepare(`UPDATE sessions SET left_at=? WHERE id=?`)
	insertChat, _ := s.db.Prepare(`INSERT INTO chat(session_id,name,text,at) VALUES(?,?,?,?)`)
	upsertMeta, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertJoin, updateLeave, insertChat, upsertMeta} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqJoin:
			se := r.session
			exec(insertJoin, se.ID, se.Name, se.Addr, stamp(se.JoinedAt))
		case reqLeave:
			exec(updateLeave, stamp(r.session.LeftAt), r.session.ID)
		case reqChat:
			c := r.chat
			exec(insertChat, c.SessionID, c.Name, c.Text, stamp(c.At))
		case reqMeta:
			exec(upsertMeta, r.key, r.value)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
