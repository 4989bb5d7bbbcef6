// Package cache stores compiled programs in a local SQLite database,
// keyed by the SHA-256 of the source text. A hit skips compilation
// entirely; entries are validated on the way out, so a corrupt or
// stale row degrades to a miss instead of an error.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/AlhaqGH/PohLang-sub001/bytecode"
)

var log = commonlog.GetLogger("pohlang.cache")

// cborEncMode uses canonical encoding so metadata bytes are
// deterministic for identical inputs.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Meta describes a cached program.
type Meta struct {
	SourcePath string    `cbor:"source"`
	SourceSize int       `cbor:"size"`
	Version    uint16    `cbor:"version"`
	CompiledAt time.Time `cbor:"compiled-at"`
}

// Store is a compiled-program cache backed by one SQLite file.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Key returns the cache key for a source text.
func Key(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Open opens (or creates) the cache database at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		hash TEXT PRIMARY KEY,
		meta BLOB NOT NULL,
		bytecode BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating programs table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores a compiled program under the given key, replacing any
// previous entry.
func (s *Store) Put(key string, meta Meta, prog *bytecode.Program) error {
	data, err := bytecode.Serialize(prog)
	if err != nil {
		return fmt.Errorf("serializing program: %w", err)
	}
	metaBytes, err := cborEncMode.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, meta, bytecode) VALUES (?, ?, ?)",
		key, metaBytes, data,
	); err != nil {
		return fmt.Errorf("storing program: %w", err)
	}
	return nil
}

// Get loads a cached program. A missing key returns (nil, nil, nil).
// An entry that no longer deserializes cleanly (format version bump,
// corruption) is deleted and reported as a miss.
func (s *Store) Get(key string) (*bytecode.Program, *Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metaBytes, data []byte
	err := s.db.QueryRow(
		"SELECT meta, bytecode FROM programs WHERE hash = ?", key,
	).Scan(&metaBytes, &data)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading cache entry: %w", err)
	}

	prog, err := bytecode.Deserialize(data)
	if err != nil {
		log.Infof("evicting stale cache entry %s: %v", key[:12], err)
		if _, delErr := s.db.Exec("DELETE FROM programs WHERE hash = ?", key); delErr != nil {
			return nil, nil, fmt.Errorf("evicting stale entry: %w", delErr)
		}
		return nil, nil, nil
	}

	var meta Meta
	if err := cbor.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return prog, &meta, nil
}

// Delete removes an entry. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM programs WHERE hash = ?", key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Count returns the number of cached programs.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}
