package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// AnalysisCacheEntry represents a cached face analysis result.
type AnalysisCacheEntry struct {
	FaceShape       string
	SuggestionsJSON string
}

// Look represents one generated hairstyle render stored in the history.
// ImageData is encrypted at rest and transparently decrypted on read.
type Look struct {
	ID         int64
	TelegramID int64
	FaceShape  string
	StyleName  string
	ImageData  []byte
	MIMEType   string
	CreatedAt  time.Time
}

// LookSummary is a history row without the image payload.
type LookSummary struct {
	ID        int64
	FaceShape string
	StyleName string
	CreatedAt time.Time
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// SessionStore defines the interface for bot persistence.
type SessionStore interface {
	// Analysis cache methods
	GetAnalysisCache(imageHash string) (*AnalysisCacheEntry, error)
	SetAnalysisCache(imageHash string, entry *AnalysisCacheEntry) error

	// Look history methods
	SaveLook(look *Look) error
	GetLook(telegramID, lookID int64) (*Look, error)
	ListLooks(telegramID int64, limit int) ([]LookSummary, error)
	DeleteLooks(telegramID int64) error

	// Allowed users methods
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)

	Close() error
}

// SQLiteStore implements SessionStore using SQLite with encrypted look images.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store.
// The dbPath is the path to the SQLite database file.
// The encryptionKey is used to encrypt/decrypt stored render images.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	analysisCacheQuery := `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		image_hash TEXT PRIMARY KEY,
		face_shape TEXT NOT NULL,
		suggestions TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(analysisCacheQuery); err != nil {
		return fmt.Errorf("failed to create analysis_cache table: %w", err)
	}

	looksQuery := `
	CREATE TABLE IF NOT EXISTS looks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL,
		face_shape TEXT NOT NULL,
		style_name TEXT NOT NULL,
		encrypted_image TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(looksQuery); err != nil {
		return fmt.Errorf("failed to create looks table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_looks_user ON looks(telegram_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create looks index: %w", err)
	}

	allowedUsersQuery := `
	CREATE TABLE IF NOT EXISTS allowed_users (
		telegram_id INTEGER PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		added_by INTEGER
	);
	`
	if _, err := s.db.Exec(allowedUsersQuery); err != nil {
		return fmt.Errorf("failed to create allowed_users table: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetAnalysisCache retrieves a cached analysis by image hash.
// Returns nil, nil on cache miss.
func (s *SQLiteStore) GetAnalysisCache(imageHash string) (*AnalysisCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry AnalysisCacheEntry
	err := s.db.QueryRow(
		"SELECT face_shape, suggestions FROM analysis_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&entry.FaceShape, &entry.SuggestionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cache: %w", err)
	}

	return &entry, nil
}

// SetAnalysisCache stores an analysis result by image hash.
func (s *SQLiteStore) SetAnalysisCache(imageHash string, entry *AnalysisCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO analysis_cache (image_hash, face_shape, suggestions)
		VALUES (?, ?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			face_shape = excluded.face_shape,
			suggestions = excluded.suggestions
	`, imageHash, entry.FaceShape, entry.SuggestionsJSON)
	if err != nil {
		return fmt.Errorf("failed to save analysis cache entry: %w", err)
	}

	return nil
}

// SaveLook stores a generated look with the image encrypted at rest.
// The look's ID is set on success.
func (s *SQLiteStore) SaveLook(look *Look) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encryptedImage, err := Encrypt(look.ImageData, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt look image: %w", err)
	}

	if look.CreatedAt.IsZero() {
		look.CreatedAt = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO looks (telegram_id, face_shape, style_name, encrypted_image, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, look.TelegramID, look.FaceShape, look.StyleName, encryptedImage, look.MIMEType, look.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save look: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get look id: %w", err)
	}
	look.ID = id

	return nil
}

// GetLook retrieves one look with its decrypted image.
// Returns nil, nil if no such look exists for the user.
func (s *SQLiteStore) GetLook(telegramID, lookID int64) (*Look, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var look Look
	var encryptedImage string
	err := s.db.QueryRow(`
		SELECT id, telegram_id, face_shape, style_name, encrypted_image, mime_type, created_at
		FROM looks WHERE telegram_id = ? AND id = ?
	`, telegramID, lookID).Scan(
		&look.ID, &look.TelegramID, &look.FaceShape, &look.StyleName,
		&encryptedImage, &look.MIMEType, &look.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query look: %w", err)
	}

	look.ImageData, err = Decrypt(encryptedImage, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt look image: %w", err)
	}

	return &look, nil
}

// ListLooks returns the user's most recent looks, newest first, without images.
func (s *SQLiteStore) ListLooks(telegramID int64, limit int) ([]LookSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, face_shape, style_name, created_at
		FROM looks WHERE telegram_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query looks: %w", err)
	}
	defer rows.Close()

	var looks []LookSummary
	for rows.Next() {
		var look LookSummary
		if err := rows.Scan(&look.ID, &look.FaceShape, &look.StyleName, &look.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan look row: %w", err)
		}
		looks = append(looks, look)
	}

	return looks, rows.Err()
}

// DeleteLooks removes all of a user's stored looks.
func (s *SQLiteStore) DeleteLooks(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM looks WHERE telegram_id = ?", telegramID); err != nil {
		return fmt.Errorf("failed to delete looks: %w", err)
	}
	return nil
}

// IsUserAllowed reports whether a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query allowed users: %w", err)
	}

	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO NOTHING
	`, telegramID, addedBy)
	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}

	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID); err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all whitelisted users.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &user.AddedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user row: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
