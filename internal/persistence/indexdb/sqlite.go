package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

// SQLiteStore holds the current save and the meta record, and indexes every
// processed cycle. Saves are synchronous; cycle rows go through a buffered
// writer goroutine and are dropped if it falls behind.
type SQLiteStore struct {
	db *sql.DB

	ch   chan CycleRow
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

// CycleRow is one indexed cycle of a run.
type CycleRow struct {
	Run       int64
	Cycle     int
	Phase     string
	Digest    string
	TotalHeat float64
	Biomass   float64
	Minerals  float64
	Data      float64
	Energy    float64
	Units     int
	Active    int
	Events    []string
	Completed bool
}

// SaveInfo describes the stored run without decoding it.
type SaveInfo struct {
	Run     int64
	Cycle   int
	Phase   string
	Digest  string
	SavedAt time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
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

	s := &SQLiteStore{
		db: db,
		ch: make(chan CycleRow, 4096),
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
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			slot TEXT PRIMARY KEY,
			run INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			phase TEXT NOT NULL,
			digest TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			state_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			run INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			phase TEXT NOT NULL,
			digest TEXT NOT NULL,
			total_heat REAL NOT NULL,
			biomass REAL NOT NULL,
			minerals REAL NOT NULL,
			data REAL NOT NULL,
			energy REAL NOT NULL,
			units INTEGER NOT NULL,
			active INTEGER NOT NULL,
			events_json TEXT NOT NULL,
			completed INTEGER NOT NULL,
			PRIMARY KEY (run, cycle)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_phase ON cycles(phase, run);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('run','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many cycle rows were discarded because the writer fell
// behind.
func (s *SQLiteStore) Dropped() int64 { return s.dropped.Load() }

// Run returns the sequence number of the current run.
func (s *SQLiteStore) Run(ctx context.Context) (int64, error) {
	var v string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='run'`).Scan(&v); err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *SQLiteStore) RecordCycle(row CycleRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row:
	default:
		s.dropped.Add(1)
	}
}

// RowFor builds the indexed row for s. totalHeat is passed in since it
// depends on tuning.
func RowFor(run int64, st model.State, totalHeat float64) CycleRow {
	row := CycleRow{
		Run:       run,
		Cycle:     st.Cycle,
		Phase:     string(st.Phase),
		Digest:    digest.State(st),
		TotalHeat: totalHeat,
		Biomass:   st.Biomass,
		Minerals:  st.Minerals,
		Data:      st.Data,
		Energy:    st.Energy,
		Units:     len(st.Units),
		Active:    st.CountActive(),
	}
	if st.LastCycle != nil {
		row.Events = append([]string(nil), st.LastCycle.Events...)
		row.Completed = st.LastCycle.Completed
	}
	return row
}

// LoadRun returns the raw save envelope, or nil when nothing is stored.
func (s *SQLiteStore) LoadRun(ctx context.Context) ([]byte, error) {
	var (
		stateJSON string
		savedAt   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT state_json,saved_at FROM saves WHERE slot='current'`).Scan(&stateJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	env := struct {
		State   json.RawMessage `json:"state"`
		SavedAt string          `json:"savedAt"`
	}{json.RawMessage(stateJSON), savedAt}
	return json.Marshal(env)
}

func (s *SQLiteStore) SaveRun(ctx context.Context, st model.State, savedAt time.Time) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	run, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saves(slot,run,cycle,phase,digest,saved_at,state_json) VALUES('current',?,?,?,?,?,?)`,
		run, st.Cycle, string(st.Phase), digest.State(st), savedAt.UTC().Format(time.RFC3339Nano), string(b),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// ClearRun deletes the current save and starts a new run sequence. Indexed
// cycles of earlier runs are kept.
func (s *SQLiteStore) ClearRun(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM saves WHERE slot='current'`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key='run'`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveInfo(ctx context.Context) (SaveInfo, bool, error) {
	var (
		info    SaveInfo
		savedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT run,cycle,phase,digest,saved_at FROM saves WHERE slot='current'`).
		Scan(&info.Run, &info.Cycle, &info.Phase, &info.Digest, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return info, false, nil
	}
	if err != nil {
		return info, false, err
	}
	info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	return info, true, nil
}

func (s *SQLiteStore) LoadMeta(ctx context.Context) (meta.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM meta_state WHERE id=1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return meta.New(), nil
	}
	if err != nil {
		return meta.State{}, err
	}
	var m meta.State
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return meta.New(), fmt.Errorf("meta_state: %w", err)
	}
	return m.Normalize(), nil
}

func (s *SQLiteStore) SaveMeta(ctx context.Context, m meta.State) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta_state(id,json,updated_at) VALUES(1,?,?)`,
		string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// UpsertTuning stores the tuning in effect so indexed cycles can be
// interpreted later.
func (s *SQLiteStore) UpsertTuning(ctx context.Context, tune tuning.Tuning) (string, error) {
	d, b, err := tuning.Digest(tune)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`,
		d, string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return d, nil
}

// Cycles returns indexed rows of run in ascending cycle order. limit <= 0
// means all.
func (s *SQLiteStore) Cycles(ctx context.Context, run int64, limit int) ([]CycleRow, error) {
	q := `SELECT run,cycle,phase,digest,total_heat,biomass,minerals,data,energy,units,active,events_json,completed
		FROM cycles WHERE run=? ORDER BY cycle`
	args := []any{run}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var (
			r         CycleRow
			events    string
			completed int
		)
		if err := rows.Scan(&r.Run, &r.Cycle, &r.Phase, &r.Digest, &r.TotalHeat, &r.Biomass, &r.Minerals,
			&r.Data, &r.Energy, &r.Units, &r.Active, &events, &completed); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(events), &r.Events)
		r.Completed = completed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

const insertCycleSQL = `INSERT OR REPLACE INTO cycles(run,cycle,phase,digest,total_heat,biomass,minerals,data,energy,units,active,events_json,completed) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		insertCycle   *sql.Stmt
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 200
		commitMaxWait = time.Second
	)

	reset := func() {
		tx = nil
		insertCycle = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		reset()
	}
	// begin opens a batch. The single connection must not stay checked out
	// when the batch cannot be used.
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
		stmt, err := tx.PrepareContext(ctx, insertCycleSQL)
		if err != nil {
			rollback()
			return
		}
		insertCycle = stmt
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		reset()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		events, _ := json.Marshal(r.Events)
		if r.Events == nil {
			events = []byte("[]")
		}
		completed := 0
		if r.Completed {
			completed = 1
		}
		if _, err := insertCycle.Exec(
			r.Run, r.Cycle, r.Phase, r.Digest, r.TotalHeat,
			r.Biomass, r.Minerals, r.Data, r.Energy,
			r.Units, r.Active, string(events), completed,
		); err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
