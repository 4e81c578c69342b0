// Package sqlstore implements repository.Store on database/sql for
// PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3).
//
// Queries use $N placeholders, which both drivers accept, and always number
// them in order of first appearance so SQLite binds them positionally.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Dialect selects the SQL flavour of the underlying database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a repository.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	q       execer
	inTx    bool
}

var _ repository.Store = (*Store)(nil)

// New wraps db. Call Migrate before first use on a fresh database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, q: db}
}

// Migrate creates all tables and indexes if they don't exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == SQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect, err)
	}
	return nil
}

func (s *Store) Users() repository.UserRepository             { return s }
func (s *Store) Votes() repository.VoteRepository             { return s }
func (s *Store) Messages() repository.MessageRepository       { return s }
func (s *Store) Blocks() repository.BlockRepository           { return s }
func (s *Store) Rewards() repository.RewardRepository         { return s }
func (s *Store) Onboarding() repository.OnboardingRepository { return s }

// maxTxAttempts bounds how often Atomically reruns fn after Postgres aborts
// the transaction with a serialization failure or deadlock.
const maxTxAttempts = 3

// Atomically runs fn in a database transaction. Postgres transactions run
// SERIALIZABLE so concurrent check-then-act sequences cannot interleave; fn
// is rerun in a fresh transaction when Postgres rejects it as retryable, so
// it must not have side effects outside tx.
func (s *Store) Atomically(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	attempts := 1
	if s.dialect == Postgres {
		attempts = maxTxAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.runTx(ctx, fn); !isRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx repository.Store) error) error {
	opts := &sql.TxOptions{}
	if s.dialect == Postgres {
		opts.Isolation = sql.LevelSerializable
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, dialect: s.dialect, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports whether err is a Postgres serialization_failure or
// deadlock_detected, after which the whole transaction may be replayed.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation reports whether err is a unique/primary key violation
// from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// --- users ---

const userColumns = `id, username, password_hash, physique_category, gender, bio, profile_image,
	vote_count, monthly_votes, reward_points, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var category string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &category, &u.Gender, &u.Bio, &u.ProfileImage,
		&u.VoteCount, &u.MonthlyVotes, &u.RewardPoints, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.PhysiqueCategory = models.PhysiqueCategory(category)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = $1`, strings.ToLower(username)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Username, user.PasswordHash, string(user.PhysiqueCategory), user.Gender, user.Bio,
		user.ProfileImage, user.VoteCount, user.MonthlyVotes, user.RewardPoints, user.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE users SET username = $1, password_hash = $2, physique_category = $3, gender = $4,
			bio = $5, profile_image = $6, vote_count = $7, monthly_votes = $8, reward_points = $9
		WHERE id = $10
	`, user.Username, user.PasswordHash, string(user.PhysiqueCategory), user.Gender, user.Bio,
		user.ProfileImage, user.VoteCount, user.MonthlyVotes, user.RewardPoints, user.ID)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if filter.Category != "" {
		query += ` WHERE physique_category = $1`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) ResetMonthlyVotes(ctx context.Context) (int, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET monthly_votes = 0 WHERE monthly_votes <> 0`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- votes ---

func (s *Store) HasVote(ctx context.Context, voterID, targetID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM votes WHERE voter_id = $1 AND voted_for_id = $2)
	`, voterID, targetID).Scan(&exists)
	return exists, err
}

func (s *Store) InsertVote(ctx context.Context, vote models.Vote) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO votes (voter_id, voted_for_id, created_at) VALUES ($1, $2, $3)
	`, vote.VoterID, vote.VotedForID, vote.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (s *Store) VotesBy(ctx context.Context, voterID string) ([]models.Vote, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT voter_id, voted_for_id, created_at FROM votes
		WHERE voter_id = $1 ORDER BY created_at ASC, voted_for_id ASC
	`, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.VoterID, &v.VotedForID, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- messages ---

const messageColumns = `id, sender_id, receiver_id, content, created_at, read`

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.Read); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	return s.q.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, created_at, read)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt.UTC(), msg.Read).Scan(&msg.ID)
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	m, err := scanMessage(s.q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE messages SET read = $1 WHERE id = $2`, true, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY id ASC
	`, a, b)
}

func (s *Store) MessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY id ASC
	`, userID)
}

// --- blocks ---

func (s *Store) InsertBlock(ctx context.Context, block models.BlockedUser) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO blocked_users (blocker_id, blocked_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`, block.BlockerID, block.BlockedID, block.CreatedAt.UTC())
	return err
}

func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2
	`, blockerID, blockedID)
	return err
}

func (s *Store) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2)
	`, blockerID, blockedID).Scan(&exists)
	return exists, err
}

func (s *Store) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockedUser, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT blocker_id, blocked_id, created_at FROM blocked_users
		WHERE blocker_id = $1 ORDER BY id ASC
	`, blockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.BlockedUser{}
	for rows.Next() {
		var b models.BlockedUser
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- rewards ---

const rewardColumns = `id, name, description, points_required, stock, category, image`

func scanReward(row scanner) (*models.Reward, error) {
	var r models.Reward
	var category string
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.PointsRequired, &r.Stock, &category, &r.Image); err != nil {
		return nil, err
	}
	r.Category = models.RewardCategory(category)
	return &r, nil
}

func (s *Store) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	r, err := scanReward(s.q.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Store) InsertReward(ctx context.Context, reward *models.Reward) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rewards (id, position, name, description, points_required, stock, category, image)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM rewards), $2, $3, $4, $5, $6, $7)
	`, reward.ID, reward.Name, reward.Description, reward.PointsRequired, reward.Stock,
		string(reward.Category), reward.Image)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (s *Store) UpdateReward(ctx context.Context, reward *models.Reward) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE rewards SET name = $1, description = $2, points_required = $3, stock = $4,
			category = $5, image = $6
		WHERE id = $7
	`, reward.Name, reward.Description, reward.PointsRequired, reward.Stock,
		string(reward.Category), reward.Image, reward.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListRewards(ctx context.Context) ([]models.Reward, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rewardColumns+` FROM rewards ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- onboarding ---

func (s *Store) GetOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	var raw []byte
	err := s.q.QueryRowContext(ctx, `SELECT state FROM onboarding_states WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	var state models.OnboardingState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode onboarding state for %s: %w", userID, err)
	}
	state.UserID = userID
	normalizeTimes(&state)
	return &state, nil
}

func (s *Store) SaveOnboarding(ctx context.Context, state *models.OnboardingState) error {
	snapshot := *state
	snapshot.ShowCelebration = false
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode onboarding state: %w", err)
	}
	// lib/pq sends []byte as bytea, which jsonb rejects; pass text instead.
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO onboarding_states (user_id, state) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET state = excluded.state
	`, state.UserID, string(data))
	return err
}

func normalizeTimes(state *models.OnboardingState) {
	utc := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		u := t.UTC()
		return &u
	}
	state.CompletedAt = utc(state.CompletedAt)
	state.UserData.LastActive = utc(state.UserData.LastActive)
	for i := range state.UserData.Badges {
		state.UserData.Badges[i].EarnedAt = state.UserData.Badges[i].EarnedAt.UTC()
		state.UserData.Badges[i].ExpiresAt = utc(state.UserData.Badges[i].ExpiresAt)
	}
}
