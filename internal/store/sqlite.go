package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/rcliao/tiered-memory/internal/model"
)

// DefaultRelevance is stored for memories that have never matched a query.
const DefaultRelevance = 0.5

const memoryColumns = `id, partition, owner_id, scope, kind, priority, content, tags,
	created_at, updated_at, relevance_score, access_count, last_accessed_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	scorer Scorer

	idMu    sync.Mutex
	entropy *rand.Rand

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithScorer replaces the default substring scorer.
func WithScorer(sc Scorer) Option {
	return func(s *SQLiteStore) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("create db dir", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, unavailable("open db", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		scorer:  SubstringScorer{},
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, unavailable("migrate", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// lock returns the mutex serializing writers of one partition.
func (s *SQLiteStore) lock(partition string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[partition]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[partition] = mu
	}
	return mu
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		partition        TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		scope            TEXT NOT NULL,
		kind             TEXT NOT NULL,
		priority         TEXT NOT NULL DEFAULT 'medium',
		content          TEXT NOT NULL,
		tags             TEXT,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		relevance_score  REAL NOT NULL DEFAULT 0.5,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories(partition, seq);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id, scope);
	CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// unavailable marks a medium failure. The stack is recorded here so error
// logs point at the failing statement.
func unavailable(op string, err error) error {
	return pkgerrors.WithStack(fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) Create(ctx context.Context, partition string, m *model.Memory) (string, error) {
	if partition == "" {
		return "", fmt.Errorf("%w: partition is required", model.ErrInvalidValue)
	}
	if err := m.Validate(); err != nil {
		return "", err
	}

	mu := s.lock(partition)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.RelevanceScore == 0 {
		m.RelevanceScore = DefaultRelevance
	}
	m.Tags = model.NormalizeTags(m.Tags)
	m.Partition = partition

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, partition, owner_id, scope, kind, priority, content, tags,
		                       created_at, updated_at, relevance_score, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, partition, m.OwnerID, string(m.Scope), string(m.Kind), string(m.Priority), m.Content,
		tagsJSON(m.Tags), formatTime(m.CreatedAt), formatTime(m.UpdatedAt), m.RelevanceScore, m.AccessCount)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
		}
		return "", unavailable("insert memory", err)
	}

	return m.ID, nil
}

func (s *SQLiteStore) Get(ctx context.Context, partition, id string) (*model.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
		 WHERE partition = ? AND id = ?`, now, partition, id)
	if err != nil {
		return nil, unavailable("track access", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE partition = ? AND id = ?`, partition, id)
	m, err := scanMemory(row)
	if err != nil {
		return nil, unavailable("read memory", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return &m, nil
}

func (s *SQLiteStore) Update(ctx context.Context, partition, id string, p UpdateParams) (*model.Memory, error) {
	mu := s.lock(partition)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE partition = ? AND id = ?`, partition, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("read memory", err)
	}
	if len(p.Kinds) > 0 && !hasKind(p.Kinds, m.Kind) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Kind != nil {
		m.Kind = *p.Kind
	}
	if p.Priority != nil {
		m.Priority = *p.Priority
	}
	if p.Tags != nil {
		m.Tags = model.NormalizeTags(*p.Tags)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now().UTC()
	if !m.UpdatedAt.After(m.CreatedAt) {
		m.UpdatedAt = m.CreatedAt.Add(time.Nanosecond)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET content = ?, kind = ?, priority = ?, tags = ?, updated_at = ?
		 WHERE partition = ? AND id = ?`,
		m.Content, string(m.Kind), string(m.Priority), tagsJSON(m.Tags), formatTime(m.UpdatedAt), partition, id)
	if err != nil {
		return nil, unavailable("update memory", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return &m, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, partition, id string, kinds ...model.Kind) (bool, error) {
	mu := s.lock(partition)
	mu.Lock()
	defer mu.Unlock()

	query, args := `DELETE FROM memories WHERE partition = ? AND id = ?`, []any{partition, id}
	query, args = kindClause(query, args, kinds)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, unavailable("delete memory", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, partition string, kinds ...model.Kind) (int, error) {
	mu := s.lock(partition)
	mu.Lock()
	defer mu.Unlock()

	query, args := `DELETE FROM memories WHERE partition = ?`, []any{partition}
	query, args = kindClause(query, args, kinds)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable("clear partition", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// kindClause restricts a statement to the given kinds. No kinds means any.
func kindClause(query string, args []any, kinds []model.Kind) (string, []any) {
	if len(kinds) == 0 {
		return query, args
	}
	query += ` AND kind IN (?` + strings.Repeat(", ?", len(kinds)-1) + `)`
	for _, k := range kinds {
		args = append(args, string(k))
	}
	return query, args
}

func hasKind(kinds []model.Kind, k model.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func tagsJSON(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	b, _ := json.Marshal(tags)
	str := string(b)
	return &str
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var scope, kind, priority, createdAt, updatedAt string
	var tags, lastAccessed sql.NullString

	err := row.Scan(
		&m.ID, &m.Partition, &m.OwnerID, &scope, &kind, &priority, &m.Content, &tags,
		&createdAt, &updatedAt, &m.RelevanceScore, &m.AccessCount, &lastAccessed,
	)
	if err != nil {
		return m, err
	}

	m.Scope = model.Scope(scope)
	m.Kind = model.Kind(kind)
	m.Priority = model.Priority(priority)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &m.Tags)
	}
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastAccessed.String)
		m.LastAccessedAt = &t
	}

	return m, nil
}
