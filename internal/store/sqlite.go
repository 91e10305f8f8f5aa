// Package store persists user profiles, the interaction side-channel, and a
// warm-restart mirror of conversation contexts in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"veilbot/internal/domain"
)

// ErrIdentityWithoutAddress is returned by Upsert when a profile carries an
// fkey identity but no stealth address. Identity claims are only stored after
// a successful lookup, so this combination is always a caller bug.
var ErrIdentityWithoutAddress = errors.New("profile has fkey identity but no stealth address")

// SQLiteStore implements domain.ProfileStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id         TEXT PRIMARY KEY,
		fkey_id         TEXT,
		stealth_address TEXT,
		setup_status    TEXT NOT NULL DEFAULT 'new',
		last_updated    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_fkey ON profiles(fkey_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		payload     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS contexts (
		user_id         TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		data            TEXT NOT NULL,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, conversation_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) ByUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx,
		`SELECT user_id, fkey_id, stealth_address, setup_status, last_updated
		 FROM profiles WHERE user_id = ?`, userID))
}

func (s *SQLiteStore) ByIdentity(ctx context.Context, fkeyID string) (*domain.UserProfile, error) {
	if fkeyID == "" {
		return nil, nil
	}
	return s.scanProfile(s.db.QueryRowContext(ctx,
		`SELECT user_id, fkey_id, stealth_address, setup_status, last_updated
		 FROM profiles WHERE fkey_id = ?`, fkeyID))
}

func (s *SQLiteStore) scanProfile(row *sql.Row) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var fkey, addr sql.NullString
	err := row.Scan(&p.UserID, &fkey, &addr, &p.SetupStatus, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FkeyID = fkey.String
	p.StealthAddress = addr.String
	return &p, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, profile domain.UserProfile) error {
	if profile.FkeyID != "" && profile.StealthAddress == "" {
		return ErrIdentityWithoutAddress
	}
	if profile.LastUpdated.IsZero() {
		profile.LastUpdated = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, fkey_id, stealth_address, setup_status, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			fkey_id = excluded.fkey_id,
			stealth_address = excluded.stealth_address,
			setup_status = excluded.setup_status,
			last_updated = excluded.last_updated`,
		profile.UserID, nullable(profile.FkeyID), nullable(profile.StealthAddress),
		profile.SetupStatus, profile.LastUpdated,
	)
	return err
}

func (s *SQLiteStore) LogInteraction(ctx context.Context, userID, kind, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, kind, payload) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), userID, kind, payload,
	)
	return err
}

func (s *SQLiteStore) SaveContext(ctx context.Context, cc domain.ConversationContext) error {
	data, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (user_id, conversation_id, data, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, conversation_id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		cc.UserID, cc.ConversationID, string(data),
	)
	return err
}

func (s *SQLiteStore) LoadContexts(ctx context.Context) ([]domain.ConversationContext, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM contexts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationContext
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var cc domain.ConversationContext
		if err := json.Unmarshal([]byte(data), &cc); err != nil {
			s.logger.Warn("skipping unreadable context row", "err", err)
			continue
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
