// Package memory persists per-subject conversation facts in SQLite so
// follow-up turns can resolve references like "his teammate" without
// re-asking. Recall is read-heavy and cached; remembering invalidates.
package memory

import (
	"context"
	"database/sql"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/pitwall-ai/pitwall"
)

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_id, created_at);
`

// recallLimit caps how many facts a single turn gets back. Older facts
// age out of relevance; the newest ones carry the active entities.
const recallLimit = 20

// Store implements pitwall.Memory on SQLite.
type Store struct {
	db    *sql.DB
	cache *lru.Cache[string, []pitwall.Fact]
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	cacheSize int
}

// WithCacheSize sets the number of subjects whose recalled facts stay
// cached in memory.
func WithCacheSize(n int) Option {
	return func(c *storeConfig) {
		c.cacheSize = n
	}
}

// Open opens (and migrates) the fact store at the given path. Use
// ":memory:" for an ephemeral store.
func Open(path string, options ...Option) (*Store, error) {
	cfg := storeConfig{cacheSize: 128}
	for _, option := range options {
		option(&cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pitwall.NewMemoryError("open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pitwall.NewMemoryError("migrate", err)
	}

	cache, err := lru.New[string, []pitwall.Fact](cfg.cacheSize)
	if err != nil {
		db.Close()
		return nil, pitwall.NewMemoryError("open", err)
	}

	return &Store{db: db, cache: cache}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Recall implements pitwall.Memory. It returns the subject's most recent
// facts; when the query mentions a stored entity, matching facts are
// moved to the front.
func (s *Store) Recall(ctx context.Context, subjectID, query string) ([]pitwall.Fact, error) {
	facts, ok := s.cache.Get(subjectID)
	if !ok {
		var err error
		facts, err = s.load(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(subjectID, facts)
	}
	return rankByQuery(facts, query), nil
}

func (s *Store) load(ctx context.Context, subjectID string) ([]pitwall.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, content, created_at FROM facts
		 WHERE subject_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		subjectID, recallLimit)
	if err != nil {
		return nil, pitwall.NewMemoryError("recall", err)
	}
	defer rows.Close()

	var facts []pitwall.Fact
	for rows.Next() {
		var f pitwall.Fact
		if err := rows.Scan(&f.Kind, &f.Content, &f.CreatedAt); err != nil {
			return nil, pitwall.NewMemoryError("recall", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, pitwall.NewMemoryError("recall", err)
	}
	return facts, nil
}

// Remember implements pitwall.Memory. Facts are stored in one transaction
// and the subject's cached recall is dropped.
func (s *Store) Remember(ctx context.Context, subjectID string, facts []pitwall.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pitwall.NewMemoryError("remember", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO facts (subject_id, kind, content, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return pitwall.NewMemoryError("remember", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		createdAt := f.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, subjectID, f.Kind, f.Content, createdAt); err != nil {
			return pitwall.NewMemoryError("remember", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return pitwall.NewMemoryError("remember", err)
	}

	s.cache.Remove(subjectID)
	return nil
}

// rankByQuery stable-sorts facts whose content appears in the query to
// the front. Matching is plain case-insensitive substring; the fact
// corpus is small enough that anything smarter would not pay.
func rankByQuery(facts []pitwall.Fact, query string) []pitwall.Fact {
	if query == "" || len(facts) == 0 {
		return facts
	}
	q := strings.ToLower(query)

	matched := make([]pitwall.Fact, 0, len(facts))
	rest := make([]pitwall.Fact, 0, len(facts))
	for _, f := range facts {
		if factMatches(f, q) {
			matched = append(matched, f)
		} else {
			rest = append(rest, f)
		}
	}
	return append(matched, rest...)
}

func factMatches(f pitwall.Fact, lowerQuery string) bool {
	for _, token := range strings.Fields(strings.ToLower(f.Content)) {
		if len(token) >= 3 && strings.Contains(lowerQuery, token) {
			return true
		}
	}
	return false
}
