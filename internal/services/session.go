package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
	// SessionCookieName is the cookie the signed session token travels in.
	SessionCookieName = "physiq_session"
)

// ErrInvalidToken is returned for tokens that fail signature or expiry checks.
var ErrInvalidToken = errors.New("invalid session token")

// SessionStore maps session ids to user ids. A user holds at most one
// session; creating a new one invalidates the old.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	// Lookup returns the session's user id, or ok=false when it is unknown or expired.
	Lookup(ctx context.Context, sessionID string) (userID string, ok bool, err error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionStore keeps sessions in Redis with a TTL.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Create invalidates any existing session for the user so the 7-day timer
// restarts from this login.
func (s *RedisSessionStore) Create(ctx context.Context, userID string) (string, error) {
	userSessionKey := UserSessionKeyPrefix + userID
	if old, err := s.client.Get(ctx, userSessionKey).Result(); err == nil && old != "" {
		s.client.Del(ctx, SessionKeyPrefix+old)
	}

	sessionID := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+sessionID, userID, SessionDuration)
	pipe.Set(ctx, userSessionKey, sessionID, SessionDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

func (s *RedisSessionStore) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	userID, err := s.client.Get(ctx, SessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sessionKey := SessionKeyPrefix + sessionID

	// Get user ID before deleting
	userID, err := s.client.Get(ctx, sessionKey).Result()
	if err == nil && userID != "" {
		s.client.Del(ctx, UserSessionKeyPrefix+userID)
	}
	return s.client.Del(ctx, sessionKey).Err()
}

// MemorySessionStore is a SessionStore for single-process deployments and tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	sessions map[string]memorySession
	byUser   map[string]string
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

func NewMemorySessionStore(clk clock.Clock) *MemorySessionStore {
	return &MemorySessionStore{
		clock:    clk,
		sessions: make(map[string]memorySession),
		byUser:   make(map[string]string),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[userID]; ok {
		delete(s.sessions, old)
	}
	sessionID := uuid.NewString()
	s.sessions[sessionID] = memorySession{userID: userID, expiresAt: s.clock.Now().Add(SessionDuration)}
	s.byUser[userID] = sessionID
	return sessionID, nil
}

func (s *MemorySessionStore) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	if !s.clock.Now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		delete(s.byUser, sess.userID)
		return "", false, nil
	}
	return sess.userID, true, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		delete(s.byUser, sess.userID)
		delete(s.sessions, sessionID)
	}
	return nil
}

// TokenSigner wraps session ids in HS256 tokens so cookies can't be forged
// by guessing ids.
type TokenSigner struct {
	secret []byte
	clock  clock.Clock
}

func NewTokenSigner(secret string, clk clock.Clock) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), clock: clk}
}

// Sign returns a token for sessionID that expires with the session.
func (t *TokenSigner) Sign(sessionID string) (string, error) {
	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    "physiq",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionDuration)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the session id it carries.
func (t *TokenSigner) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("physiq"),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

// SessionManager ties the session store to signed cookie tokens.
type SessionManager struct {
	store  SessionStore
	signer *TokenSigner
}

func NewSessionManager(store SessionStore, signer *TokenSigner) *SessionManager {
	return &SessionManager{store: store, signer: signer}
}

// Start opens a session for userID and returns the signed token.
func (m *SessionManager) Start(ctx context.Context, userID string) (string, error) {
	sessionID, err := m.store.Create(ctx, userID)
	if err != nil {
		return "", err
	}
	return m.signer.Sign(sessionID)
}

// Resolve returns the user id behind token, or "" when the token is invalid
// or the session has ended.
func (m *SessionManager) Resolve(ctx context.Context, token string) (string, error) {
	sessionID, err := m.signer.Parse(token)
	if err != nil {
		return "", nil
	}
	userID, ok, err := m.store.Lookup(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if !ok {
		return "", nil
	}
	return userID, nil
}

// End closes the session behind token. Invalid tokens are ignored.
func (m *SessionManager) End(ctx context.Context, token string) error {
	sessionID, err := m.signer.Parse(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, sessionID)
}
