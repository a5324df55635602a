package session

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// SQLStore keeps sessions in tbl_session. Only a BLAKE2b-256 digest of each
// token is stored.
type SQLStore struct {
	DB  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSQLStore(db *sql.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{
		DB:  db,
		ttl: ttl,
		now: time.Now,
	}
}

func hashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *SQLStore) NewSession() (Session, error) {
	return newSession(s.ttl, s.now())
}

func (s *SQLStore) GetSessionByToken(ctx context.Context, token string) (Session, error) {
	var sess Session
	var id string
	var data string

	query := `SELECT id, credential, data, expires_at, created_at FROM tbl_session WHERE token_hash = $1 AND expires_at > $2`
	row := s.DB.QueryRowContext(ctx, query, hashToken(token), s.now().UTC())
	if err := row.Scan(&id, &sess.Credential, &data, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to get session by token: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Session{}, fmt.Errorf("failed to parse session id: %w", err)
	}
	sess.ID = parsed

	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	sess.Token = token
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()

	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}

	return sess, nil
}

func (s *SQLStore) SaveSession(ctx context.Context, sess Session) (Session, error) {
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return Session{}, fmt.Errorf("failed to marshal session data: %w", err)
	}

	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
		sess.CreatedAt = s.now().UTC()
		if _, err := s.DB.ExecContext(ctx,
			`INSERT INTO tbl_session (id, token_hash, credential, data, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			sess.ID.String(), hashToken(sess.Token), sess.Credential, string(data), sess.ExpiresAt.UTC(), sess.CreatedAt,
		); err != nil {
			return Session{}, fmt.Errorf("failed to create session: %w", err)
		}
		return sess, nil
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE tbl_session SET credential = $1, data = $2, expires_at = $3 WHERE id = $4`,
		sess.Credential, string(data), sess.ExpiresAt.UTC(), sess.ID.String(),
	); err != nil {
		return Session{}, fmt.Errorf("failed to update session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) RegenerateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == uuid.Nil {
		return Session{}, fmt.Errorf("cannot regenerate token for new session")
	}

	newToken, err := GenerateToken()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate new session token: %w", err)
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE tbl_session SET token_hash = $1 WHERE token_hash = $2`,
		hashToken(newToken), hashToken(sess.Token),
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to regenerate session token: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return Session{}, ErrSessionNotFound
	}

	sess.Token = newToken
	return sess, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tbl_session WHERE token_hash = $1`, hashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM tbl_session WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
