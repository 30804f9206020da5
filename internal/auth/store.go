package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const tokenName = "access_token"

// TokenStore holds at most one access token
type TokenStore interface {
	Save(token string) error
	Load() (string, bool, error)
	Clear() error
}

// MemoryStore keeps the token for the lifetime of the process only
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStore) Save(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != "", nil
}

func (m *MemoryStore) Clear() error {
	return m.Save("")
}

// SQLiteStore keeps the token across runs
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the credential database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createCredentialsTable := `
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		saved_at DATETIME
	);`

	if _, err := db.Exec(createCredentialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(token string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO credentials (name, token, saved_at) VALUES (?, ?, ?)",
		tokenName, token, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load() (string, bool, error) {
	var token string
	err := s.db.QueryRow("SELECT token FROM credentials WHERE name = ?", tokenName).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load token: %w", err)
	}
	return token, token != "", nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM credentials WHERE name = ?", tokenName); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Keeper places the token in durable or session-only storage, never both.
type Keeper struct {
	durable TokenStore
	session TokenStore
}

// NewKeeper creates a keeper over the two scopes
func NewKeeper(durable, session TokenStore) *Keeper {
	return &Keeper{durable: durable, session: session}
}

// Save stores token durably when remember is set, otherwise for this
// session only; the other scope is cleared.
func (k *Keeper) Save(token string, remember bool) error {
	keep, drop := k.session, k.durable
	if remember {
		keep, drop = k.durable, k.session
	}
	if err := drop.Clear(); err != nil {
		return err
	}
	return keep.Save(token)
}

// Token returns the stored token, preferring the session scope
func (k *Keeper) Token() (string, bool, error) {
	if token, ok, err := k.session.Load(); err != nil || ok {
		return token, ok, err
	}
	return k.durable.Load()
}

// Remembered reports whether the token lives in durable storage
func (k *Keeper) Remembered() (bool, error) {
	_, ok, err := k.durable.Load()
	return ok, err
}

// Logout clears both scopes
func (k *Keeper) Logout() error {
	return errors.Join(k.session.Clear(), k.durable.Clear())
}
