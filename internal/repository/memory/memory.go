// Package memory is the in-process Store used for development, demos and
// tests. All collections live behind one RWMutex; Atomically holds the write
// lock for the whole callback and rolls writes back from an undo log when the
// callback fails.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
)

type state struct {
	users     map[string]*models.User
	usernames map[string]string // lower(username) -> id

	// votes is indexed by voter so duplicate checks only touch that voter's votes.
	votes map[string]map[string]models.Vote

	messages      []models.Message // messages[i].ID == i+1
	nextMessageID int64

	blocks map[string][]models.BlockedUser // blocker -> blocks in insertion order

	rewards     map[string]*models.Reward
	rewardOrder []string

	onboarding map[string]*models.OnboardingState
}

// Store is a concurrency-safe in-memory repository.Store.
type Store struct {
	mu   sync.RWMutex
	st   state
	root *view
}

// New creates an empty store.
func New() *Store {
	s := &Store{
		st: state{
			users:         make(map[string]*models.User),
			usernames:     make(map[string]string),
			votes:         make(map[string]map[string]models.Vote),
			nextMessageID: 1,
			blocks:        make(map[string][]models.BlockedUser),
			rewards:       make(map[string]*models.Reward),
			onboarding:    make(map[string]*models.OnboardingState),
		},
	}
	s.root = &view{s: s}
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Users() repository.UserRepository             { return s.root }
func (s *Store) Votes() repository.VoteRepository             { return s.root }
func (s *Store) Messages() repository.MessageRepository       { return s.root }
func (s *Store) Blocks() repository.BlockRepository           { return s.root }
func (s *Store) Rewards() repository.RewardRepository         { return s.root }
func (s *Store) Onboarding() repository.OnboardingRepository { return s.root }

// Atomically runs fn while holding the store's write lock.
func (s *Store) Atomically(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.root.Atomically(ctx, fn)
}

// view implements every repository interface. The root view takes the lock
// per call; a tx view runs under the lock already held by Atomically and
// records an undo entry for every write.
type view struct {
	s    *Store
	tx   bool
	undo []func()
}

func (v *view) Users() repository.UserRepository             { return v }
func (v *view) Votes() repository.VoteRepository             { return v }
func (v *view) Messages() repository.MessageRepository       { return v }
func (v *view) Blocks() repository.BlockRepository           { return v }
func (v *view) Rewards() repository.RewardRepository         { return v }
func (v *view) Onboarding() repository.OnboardingRepository { return v }

func (v *view) Atomically(ctx context.Context, fn func(tx repository.Store) error) error {
	if v.tx {
		return fn(v)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	tx := &view{s: v.s, tx: true}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (v *view) rollback() {
	for i := len(v.undo) - 1; i >= 0; i-- {
		v.undo[i]()
	}
	v.undo = nil
}

func (v *view) read() func() {
	if v.tx {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v *view) write() func() {
	if v.tx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) record(fn func()) {
	if v.tx {
		v.undo = append(v.undo, fn)
	}
}

// --- users ---

func (v *view) GetUser(ctx context.Context, id string) (*models.User, error) {
	defer v.read()()
	u, ok := v.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (v *view) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	defer v.read()()
	id, ok := v.s.st.usernames[strings.ToLower(username)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *v.s.st.users[id]
	return &out, nil
}

func (v *view) InsertUser(ctx context.Context, user *models.User) error {
	defer v.write()()
	st := &v.s.st
	key := strings.ToLower(user.Username)
	if _, ok := st.users[user.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := st.usernames[key]; ok {
		return repository.ErrConflict
	}
	u := *user
	st.users[u.ID] = &u
	st.usernames[key] = u.ID
	v.record(func() {
		delete(st.users, u.ID)
		delete(st.usernames, key)
	})
	return nil
}

func (v *view) UpdateUser(ctx context.Context, user *models.User) error {
	defer v.write()()
	st := &v.s.st
	prev, ok := st.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	oldKey := strings.ToLower(prev.Username)
	newKey := strings.ToLower(user.Username)
	if oldKey != newKey {
		if _, taken := st.usernames[newKey]; taken {
			return repository.ErrConflict
		}
	}
	old := *prev
	u := *user
	st.users[u.ID] = &u
	delete(st.usernames, oldKey)
	st.usernames[newKey] = u.ID
	v.record(func() {
		st.users[old.ID] = &old
		delete(st.usernames, newKey)
		st.usernames[oldKey] = old.ID
	})
	return nil
}

func (v *view) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	defer v.read()()
	out := make([]models.User, 0, len(v.s.st.users))
	for _, u := range v.s.st.users {
		if filter.Category != "" && u.PhysiqueCategory != filter.Category {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) ResetMonthlyVotes(ctx context.Context) (int, error) {
	defer v.write()()
	changed := make(map[string]int)
	for id, u := range v.s.st.users {
		if u.MonthlyVotes != 0 {
			changed[id] = u.MonthlyVotes
			u.MonthlyVotes = 0
		}
	}
	users := v.s.st.users
	v.record(func() {
		for id, n := range changed {
			users[id].MonthlyVotes = n
		}
	})
	return len(changed), nil
}

// --- votes ---

func (v *view) HasVote(ctx context.Context, voterID, targetID string) (bool, error) {
	defer v.read()()
	_, ok := v.s.st.votes[voterID][targetID]
	return ok, nil
}

func (v *view) InsertVote(ctx context.Context, vote models.Vote) error {
	defer v.write()()
	st := &v.s.st
	byVoter, ok := st.votes[vote.VoterID]
	if !ok {
		byVoter = make(map[string]models.Vote)
		st.votes[vote.VoterID] = byVoter
	}
	if _, dup := byVoter[vote.VotedForID]; dup {
		return repository.ErrConflict
	}
	byVoter[vote.VotedForID] = vote
	v.record(func() {
		delete(byVoter, vote.VotedForID)
	})
	return nil
}

func (v *view) VotesBy(ctx context.Context, voterID string) ([]models.Vote, error) {
	defer v.read()()
	out := make([]models.Vote, 0, len(v.s.st.votes[voterID]))
	for _, vote := range v.s.st.votes[voterID] {
		out = append(out, vote)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].VotedForID < out[j].VotedForID
	})
	return out, nil
}

// --- messages ---

func (v *view) InsertMessage(ctx context.Context, msg *models.Message) error {
	defer v.write()()
	st := &v.s.st
	msg.ID = st.nextMessageID
	st.nextMessageID++
	st.messages = append(st.messages, *msg)
	v.record(func() {
		st.messages = st.messages[:len(st.messages)-1]
		st.nextMessageID--
	})
	return nil
}

func (v *view) message(id int64) *models.Message {
	if id < 1 || id > int64(len(v.s.st.messages)) {
		return nil
	}
	return &v.s.st.messages[id-1]
}

func (v *view) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	defer v.read()()
	m := v.message(id)
	if m == nil {
		return nil, repository.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (v *view) MarkMessageRead(ctx context.Context, id int64) error {
	defer v.write()()
	m := v.message(id)
	if m == nil {
		return repository.ErrNotFound
	}
	if m.Read {
		return nil
	}
	m.Read = true
	st := &v.s.st
	v.record(func() {
		st.messages[id-1].Read = false
	})
	return nil
}

func (v *view) MessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	defer v.read()()
	var out []models.Message
	for _, m := range v.s.st.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (v *view) MessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	defer v.read()()
	var out []models.Message
	for _, m := range v.s.st.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- blocks ---

func (v *view) InsertBlock(ctx context.Context, block models.BlockedUser) error {
	defer v.write()()
	st := &v.s.st
	for _, b := range st.blocks[block.BlockerID] {
		if b.BlockedID == block.BlockedID {
			return nil
		}
	}
	st.blocks[block.BlockerID] = append(st.blocks[block.BlockerID], block)
	v.record(func() {
		list := st.blocks[block.BlockerID]
		st.blocks[block.BlockerID] = list[:len(list)-1]
	})
	return nil
}

func (v *view) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	defer v.write()()
	st := &v.s.st
	list := st.blocks[blockerID]
	for i, b := range list {
		if b.BlockedID != blockedID {
			continue
		}
		prev := append([]models.BlockedUser(nil), list...)
		st.blocks[blockerID] = append(list[:i:i], list[i+1:]...)
		v.record(func() {
			st.blocks[blockerID] = prev
		})
		return nil
	}
	return nil
}

func (v *view) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	defer v.read()()
	for _, b := range v.s.st.blocks[blockerID] {
		if b.BlockedID == blockedID {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockedUser, error) {
	defer v.read()()
	return append([]models.BlockedUser{}, v.s.st.blocks[blockerID]...), nil
}

// --- rewards ---

func (v *view) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	defer v.read()()
	r, ok := v.s.st.rewards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (v *view) InsertReward(ctx context.Context, reward *models.Reward) error {
	defer v.write()()
	st := &v.s.st
	if _, ok := st.rewards[reward.ID]; ok {
		return repository.ErrConflict
	}
	r := *reward
	st.rewards[r.ID] = &r
	st.rewardOrder = append(st.rewardOrder, r.ID)
	v.record(func() {
		delete(st.rewards, r.ID)
		st.rewardOrder = st.rewardOrder[:len(st.rewardOrder)-1]
	})
	return nil
}

func (v *view) UpdateReward(ctx context.Context, reward *models.Reward) error {
	defer v.write()()
	st := &v.s.st
	prev, ok := st.rewards[reward.ID]
	if !ok {
		return repository.ErrNotFound
	}
	old := *prev
	r := *reward
	st.rewards[r.ID] = &r
	v.record(func() {
		st.rewards[old.ID] = &old
	})
	return nil
}

func (v *view) ListRewards(ctx context.Context) ([]models.Reward, error) {
	defer v.read()()
	out := make([]models.Reward, 0, len(v.s.st.rewardOrder))
	for _, id := range v.s.st.rewardOrder {
		out = append(out, *v.s.st.rewards[id])
	}
	return out, nil
}

// --- onboarding ---

func (v *view) GetOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	defer v.read()()
	s, ok := v.s.st.onboarding[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOnboarding(s), nil
}

func (v *view) SaveOnboarding(ctx context.Context, state *models.OnboardingState) error {
	defer v.write()()
	st := &v.s.st
	prev, existed := st.onboarding[state.UserID]
	saved := cloneOnboarding(state)
	saved.ShowCelebration = false
	st.onboarding[state.UserID] = saved
	v.record(func() {
		if existed {
			st.onboarding[state.UserID] = prev
		} else {
			delete(st.onboarding, state.UserID)
		}
	})
	return nil
}

func cloneOnboarding(s *models.OnboardingState) *models.OnboardingState {
	out := *s
	out.CompletedSteps = append([]models.OnboardingStep{}, s.CompletedSteps...)
	out.UserData.Badges = append([]models.Badge{}, s.UserData.Badges...)
	out.UserData.Goals = append([]string(nil), s.UserData.Goals...)
	out.UserData.CompletedMissions = append([]string(nil), s.UserData.CompletedMissions...)
	out.UserData.TrainingStyles = append([]string(nil), s.UserData.TrainingStyles...)
	if s.UserData.LastActive != nil {
		t := *s.UserData.LastActive
		out.UserData.LastActive = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
