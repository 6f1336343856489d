// Package store provides the durable SQLite layer: the memory ledger,
// the semantic answer cache, and the knowledge document index.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tutorcore/internal/logging"
)

// LocalStore wraps the SQLite database holding all durable state.
type LocalStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool // sqlite-vec available
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.migrate(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; using brute-force similarity")
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// detectVecExtension probes for the sqlite-vec extension. When the binary is
// built without the sqlite_vec tag the probe fails and we fall back to
// brute-force cosine over JSON-serialized embeddings.
func (s *LocalStore) detectVecExtension() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.vectorExt = true
		logging.StoreDebug("sqlite-vec version: %s", version)
	}
}

// HasVectorExt reports whether the sqlite-vec extension is loaded.
func (s *LocalStore) HasVectorExt() bool {
	return s.vectorExt
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// serializeEmbedding stores vectors as JSON arrays so rows stay inspectable
// with plain sqlite3 tooling.
func serializeEmbedding(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return string(data), nil
}

func deserializeEmbedding(data string) ([]float32, error) {
	if data == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
	}
	return vec, nil
}
