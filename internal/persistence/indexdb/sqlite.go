// Package indexdb keeps a queryable SQLite view of a world's history: tick
// digests, narrative events, snapshot metadata, and the seed bank of saved
// flower genomes. Index tables are a convenience over the JSONL logs and may
// drop writes under pressure; the seed bank is authoritative and synchronous.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
	"gardensim.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	event    protocol.NarrativeEvent
	snapshot snapshotRow
	flush    chan struct{}
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Label      string
	Seed       int64
	Actors     int
	RecordedAt string
}

// SnapshotInfo is one row of the snapshot index.
type SnapshotInfo struct {
	Tick   uint64
	Path   string
	Label  string
	Seed   int64
	Actors int
}

// SeedEntry is one banked flower genome. ID is assigned on save and is the
// handle gardeners pass back in PLANT commands.
type SeedEntry struct {
	ID       int64
	Label    string
	Genome   genetics.Genome
	Sex      string
	SourceID string
	Attract  float64
	Toxicity float64
	Tick     uint64
	X, Y     int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// Pragmas ride the DSN so every pooled connection gets them. WAL keeps
	// seed-bank reads from blocking behind the batch writer.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=temp_store(MEMORY)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Two connections: the batch writer pins one, synchronous seed-bank and
	// startup queries use the other.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Deep buffer: event bursts (storms, die-offs) must not stall the tick loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			removes INTEGER NOT NULL,
			updates INTEGER NOT NULL,
			adds INTEGER NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS plants (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			req_id TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			severity TEXT NOT NULL,
			importance REAL NOT NULL,
			message TEXT NOT NULL,
			x INTEGER,
			y INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			label TEXT NOT NULL,
			seed INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS seed_bank (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			genome TEXT NOT NULL,
			sex TEXT NOT NULL,
			source_id TEXT NOT NULL,
			attract REAL NOT NULL,
			toxicity REAL NOT NULL,
			tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_seed_bank_attract ON seed_bank(attract);`,
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

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteEvent(ev protocol.NarrativeEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Label:      snap.Header.Label,
		Seed:       snap.Params.Seed,
		Actors:     len(snap.Actors),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// IndexStats reports writer-queue health for the admin surface.
type IndexStats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropEventTotal    uint64
	DropSnapshotTotal uint64
}

func (s *SQLiteIndex) Stats() IndexStats {
	return IndexStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// SaveSeed banks a genome and returns its assigned id.
func (s *SQLiteIndex) SaveSeed(e SeedEntry) (int64, error) {
	gb, err := json.Marshal(e.Genome)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO seed_bank(label,genome,sex,source_id,attract,toxicity,tick,x,y,created_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.Label, string(gb), e.Sex, e.SourceID, e.Attract, e.Toxicity, int64(e.Tick), e.X, e.Y,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SeedByID looks up one banked genome. The second return is false when the
// id was never assigned.
func (s *SQLiteIndex) SeedByID(id int64) (SeedEntry, bool, error) {
	row := s.db.QueryRow(
		`SELECT id,label,genome,sex,source_id,attract,toxicity,tick,x,y FROM seed_bank WHERE id=?`, id)
	e, err := scanSeed(row)
	if err == sql.ErrNoRows {
		return SeedEntry{}, false, nil
	}
	if err != nil {
		return SeedEntry{}, false, err
	}
	return e, true, nil
}

// ListSeeds returns the most attractive banked genomes, best first.
func (s *SQLiteIndex) ListSeeds(limit int) ([]SeedEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.db.Query(
		`SELECT id,label,genome,sex,source_id,attract,toxicity,tick,x,y FROM seed_bank ORDER BY attract DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SeedEntry
	for rows.Next() {
		e, err := scanSeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dst ...any) error
}

func scanSeed(r rowScanner) (SeedEntry, error) {
	var (
		e    SeedEntry
		gb   string
		tick int64
	)
	if err := r.Scan(&e.ID, &e.Label, &gb, &e.Sex, &e.SourceID, &e.Attract, &e.Toxicity, &tick, &e.X, &e.Y); err != nil {
		return SeedEntry{}, err
	}
	e.Tick = uint64(tick)
	if err := json.Unmarshal([]byte(gb), &e.Genome); err != nil {
		return SeedEntry{}, fmt.Errorf("seed %d genome: %w", e.ID, err)
	}
	return e, nil
}

// LatestSnapshot returns the newest indexed snapshot, for resume-on-boot.
func (s *SQLiteIndex) LatestSnapshot() (SnapshotInfo, bool, error) {
	row := s.db.QueryRow(`SELECT tick,path,label,seed,actors FROM snapshots ORDER BY tick DESC LIMIT 1`)
	var (
		info SnapshotInfo
		tick int64
	)
	err := row.Scan(&tick, &info.Path, &info.Label, &info.Seed, &info.Actors)
	if err == sql.ErrNoRows {
		return SnapshotInfo{}, false, nil
	}
	if err != nil {
		return SnapshotInfo{}, false, err
	}
	info.Tick = uint64(tick)
	return info, true, nil
}

// UpsertCatalogs records the config the server booted with: raw catalog
// JSON keyed by digest, plus the effective tuning.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("species", filepath.Join(configDir, "species.json"))
		read("weather", filepath.Join(configDir, "weather.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["species"]; len(b) > 0 {
		rows = append(rows, kv{name: "species", digest: cats.Species.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Species.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "species_palette", digest: cats.Species.PaletteDigest, json: b})
	}
	if b := raw["weather"]; len(b) > 0 {
		rows = append(rows, kv{name: "weather", digest: cats.Weather.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,removes,updates,adds,events,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertPlant, _ := s.db.Prepare(`INSERT OR REPLACE INTO plants(tick,seq,session_id,x,y,req_id) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO events(tick,severity,importance,message,x,y) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,label,seed,actors,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertPlant, insertEvent, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flush)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					r.tick.Removes,
					r.tick.Updates,
					r.tick.Adds,
					r.tick.Events,
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, p := range r.tick.Plants {
				if insertPlant == nil {
					break
				}
				if _, err := tx.Stmt(insertPlant).Exec(int64(r.tick.Tick), i, p.SessionID, p.Cell[0], p.Cell[1], p.ReqID); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqEvent:
			ev := r.event
			var x, y any
			if ev.Pos != nil {
				x, y = ev.Pos[0], ev.Pos[1]
			}
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(int64(ev.Tick), ev.Severity, ev.Importance, ev.Message, x, y); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.Label,
					sn.Seed,
					sn.Actors,
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// Flush blocks until every write queued before the call is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flush: done}
	<-done
}
