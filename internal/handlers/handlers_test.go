package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/handlers"
	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/onboarding"
	"github.com/AnshRaj112/physiq-backend/internal/repository/memory"
	"github.com/AnshRaj112/physiq-backend/internal/routes"
	"github.com/AnshRaj112/physiq-backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeUploader struct {
	folder, publicID string
}

func (f *fakeUploader) UploadImage(_ context.Context, file io.Reader, folder, publicID string) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	f.folder, f.publicID = folder, publicID
	return "https://cdn.example/" + publicID + ".png", nil
}

type testServer struct {
	*httptest.Server
	store      *memory.Store
	uploader   *fakeUploader
	onboarding *onboarding.Service
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	clk := clock.NewManual(time.Now().UTC())
	users := services.NewUserService(store, clk)
	sessions := services.NewSessionManager(services.NewMemorySessionStore(clk), services.NewTokenSigner("test-secret", clk))
	onb := onboarding.NewService(store.Onboarding(), clk, 50*time.Millisecond)
	t.Cleanup(onb.Close)
	uploader := &fakeUploader{}

	h := &handlers.Handler{
		Users:      users,
		Votes:      services.NewVoteService(store, clk),
		Messages:   services.NewMessageService(store, clk, true),
		Rewards:    services.NewRewardService(store),
		Onboarding: onb,
		Sessions:   sessions,
		Uploader:   uploader,
	}

	r := chi.NewRouter()
	r.Use(middleware.Session(services.SessionCookieName, sessions, users))
	routes.SetupRoutes(r, h, middleware.NewKeyedLimiter(rate.Inf, 1))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, uploader: uploader, onboarding: onb}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Token   string          `json:"token"`
	User    *models.User    `json:"user"`
	Error   *struct {
		Kind    string `json:"kind"`
		Deficit int    `json:"deficit"`
	} `json:"error"`
	State *models.OnboardingState `json:"state"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) signup(t *testing.T, username string) (string, *models.User) {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username":          username,
		"password":          "password123",
		"physique_category": "physique",
	})
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, env.Token)
	return env.Token, env.User
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	token, user := s.signup(t, "Marcus")
	assert.Equal(t, "marcus", user.Username)

	code, env := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me models.User
	decodeData(t, env, &me)
	assert.Equal(t, user.ID, me.ID)

	code, env = s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "marcus", "password": "password123", "physique_category": "physique",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "UsernameTaken", env.Error.Kind)

	code, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "marcus", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "InvalidCredentials", env.Error.Kind)

	code, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "MARCUS", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	fresh := env.Token

	// Logging in again replaced the signup session.
	code, _ = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/auth/logout", fresh, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/auth/me", fresh, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NotAuthenticated", env.Error.Kind)
}

func TestLogoutReleasesOnboardingMachine(t *testing.T) {
	s := newServer(t)
	token, _ := s.signup(t, "nina")

	code, _ := s.do(t, http.MethodPost, "/api/onboarding/next", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, s.onboarding.Active())

	code, _ = s.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, s.onboarding.Active())

	// Progress is kept across the logout.
	code, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nina", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/onboarding", env.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var st models.OnboardingState
	decodeData(t, env, &st)
	assert.Equal(t, models.StepCategory, st.CurrentStep)
}

func TestLoginSetsCookie(t *testing.T) {
	s := newServer(t)
	s.signup(t, "lena")

	body, _ := json.Marshal(map[string]string{"username": "lena", "password": "password123"})
	resp, err := http.Post(s.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == services.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/auth/me", nil)
	req.AddCookie(cookie)
	code, _ := s.send(t, req)
	assert.Equal(t, http.StatusOK, code)
}

func TestVoting(t *testing.T) {
	s := newServer(t)
	alice, _ := s.signup(t, "alice")
	_, bob := s.signup(t, "bob")

	code, env := s.do(t, http.MethodPost, "/api/users/"+bob.ID+"/vote", alice, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, http.MethodPost, "/api/users/"+bob.ID+"/vote", alice, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AlreadyVoted", env.Error.Kind)

	code, env = s.do(t, http.MethodGet, "/api/users/"+bob.ID+"/vote", alice, nil)
	require.Equal(t, http.StatusOK, code)
	var status map[string]bool
	decodeData(t, env, &status)
	assert.True(t, status["voted"])

	code, env = s.do(t, http.MethodGet, "/api/leaderboard?period=monthly&limit=1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var board []models.LeaderboardEntry
	decodeData(t, env, &board)
	require.Len(t, board, 1)
	assert.Equal(t, bob.ID, board[0].UserID)
	assert.Equal(t, 1, board[0].Score)

	code, _ = s.do(t, http.MethodGet, "/api/leaderboard?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/users/"+bob.ID+"/vote", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMessaging(t *testing.T) {
	s := newServer(t)
	alice, aliceUser := s.signup(t, "alice")
	bob, bobUser := s.signup(t, "bob")

	code, env := s.do(t, http.MethodPost, "/api/messages", alice, map[string]string{"receiver_id": bobUser.ID, "content": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "EmptyContent", env.Error.Kind)

	code, env = s.do(t, http.MethodPost, "/api/messages", alice, map[string]string{"receiver_id": bobUser.ID, "content": "Leg day?"})
	require.Equal(t, http.StatusCreated, code)
	var msg models.Message
	decodeData(t, env, &msg)
	assert.Equal(t, "Leg day?", msg.Content)

	code, env = s.do(t, http.MethodGet, "/api/messages/conversations", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var convs []models.Conversation
	decodeData(t, env, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, aliceUser.ID, convs[0].OtherUserID)
	assert.Equal(t, 1, convs[0].UnreadCount)

	// Only the receiver can mark it read.
	code, _ = s.do(t, http.MethodPut, "/api/messages/1/read", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPut, "/api/messages/1/read", bob, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPut, "/api/messages/abc/read", bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodGet, "/api/messages/"+aliceUser.ID, bob, nil)
	require.Equal(t, http.StatusOK, code)
	var thread []models.Message
	decodeData(t, env, &thread)
	require.Len(t, thread, 1)
	assert.True(t, thread[0].Read)

	code, _ = s.do(t, http.MethodPost, "/api/blocks/"+aliceUser.ID, bob, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodPost, "/api/messages", alice, map[string]string{"receiver_id": bobUser.ID, "content": "hello?"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "BlockedError", env.Error.Kind)

	code, env = s.do(t, http.MethodGet, "/api/blocks", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var blocks []models.BlockedUser
	decodeData(t, env, &blocks)
	require.Len(t, blocks, 1)

	code, _ = s.do(t, http.MethodDelete, "/api/blocks/"+aliceUser.ID, bob, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/messages", alice, map[string]string{"receiver_id": bobUser.ID, "content": "hello?"})
	assert.Equal(t, http.StatusCreated, code)

	code, env = s.do(t, http.MethodPost, "/api/blocks/"+bobUser.ID, bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "SelfBlock", env.Error.Kind)
}

func TestRewards(t *testing.T) {
	s := newServer(t)
	token, user := s.signup(t, "sofia")
	ctx := context.Background()

	require.NoError(t, s.store.Rewards().InsertReward(ctx, &models.Reward{ID: "shaker", Name: "Shaker", PointsRequired: 100, Stock: 2, Category: models.RewardProduct}))
	u, err := s.store.Users().GetUser(ctx, user.ID)
	require.NoError(t, err)
	u.RewardPoints = 50
	require.NoError(t, s.store.Users().UpdateUser(ctx, u))

	code, env := s.do(t, http.MethodGet, "/api/rewards?category=product", "", nil)
	require.Equal(t, http.StatusOK, code)
	var rewards []models.Reward
	decodeData(t, env, &rewards)
	assert.Len(t, rewards, 1)

	code, env = s.do(t, http.MethodGet, "/api/rewards?category=spa", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidCategory", env.Error.Kind)

	code, env = s.do(t, http.MethodPost, "/api/rewards/shaker/claim", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NotAuthenticated", env.Error.Kind)

	code, env = s.do(t, http.MethodPost, "/api/rewards/shaker/claim", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientPoints", env.Error.Kind)
	assert.Equal(t, 50, env.Error.Deficit)

	u.RewardPoints = 120
	require.NoError(t, s.store.Users().UpdateUser(ctx, u))
	code, env = s.do(t, http.MethodPost, "/api/rewards/shaker/claim", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, "Successfully claimed Shaker", env.Message)
}

func TestOnboarding(t *testing.T) {
	s := newServer(t)
	token, _ := s.signup(t, "kai")

	code, env := s.do(t, http.MethodGet, "/api/onboarding", token, nil)
	require.Equal(t, http.StatusOK, code)
	var st models.OnboardingState
	decodeData(t, env, &st)
	assert.Equal(t, models.StepWelcome, st.CurrentStep)

	code, env = s.do(t, http.MethodPost, "/api/onboarding/next", token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.Equal(t, models.StepCategory, st.CurrentStep)

	code, env = s.do(t, http.MethodPut, "/api/onboarding/step/bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidStep", env.Error.Kind)
	require.NotNil(t, env.State)
	assert.Equal(t, models.StepCategory, env.State.CurrentStep)

	code, env = s.do(t, http.MethodPost, "/api/onboarding/points", token, map[string]int{"points": 30})
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.Equal(t, 30, st.UserData.Points)

	code, env = s.do(t, http.MethodPost, "/api/onboarding/badges/first-post", token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.Len(t, st.UserData.Badges, 2)

	code, env = s.do(t, http.MethodPatch, "/api/onboarding/data", token, map[string]string{"gym_type": "home"})
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.Equal(t, "home", st.UserData.GymType)

	code, env = s.do(t, http.MethodPost, "/api/onboarding/activity", token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.Equal(t, 1, st.UserData.Streak)

	code, env = s.do(t, http.MethodPost, "/api/onboarding/celebrate", token, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &st)
	assert.True(t, st.ShowCelebration)

	code, _ = s.do(t, http.MethodPut, "/api/onboarding/step/complete", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/onboarding", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProfile(t *testing.T) {
	s := newServer(t)
	token, user := s.signup(t, "dev")

	code, env := s.do(t, http.MethodPut, "/api/users/me", token, map[string]string{"bio": "Classic physique", "physique_category": "bodybuilding"})
	require.Equal(t, http.StatusOK, code)
	var updated models.User
	decodeData(t, env, &updated)
	assert.Equal(t, "Classic physique", updated.Bio)
	assert.Equal(t, models.CategoryBodybuilding, updated.PhysiqueCategory)

	code, env = s.do(t, http.MethodGet, "/api/users?category=bodybuilding", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.User
	decodeData(t, env, &list)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].PasswordHash)

	code, _ = s.do(t, http.MethodGet, "/api/users/"+user.ID, "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/users/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="me.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/api/users/me/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	code, env = s.send(t, req)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &updated)
	assert.Equal(t, "https://cdn.example/"+user.ID+".png", updated.ProfileImage)
	assert.Equal(t, services.ProfileImageFolder, s.uploader.folder)
}
