package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/cache/memory"
	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
	"github.com/sekolahku/merit/internal/service"
)

// =============================================================================
// In-memory repositories and a full middleware-plus-routes stack for
// exercising the HTTP surface end to end, auth guards included.
// =============================================================================

const routeTestSecret = "handler-test-secret-0123456789"

type stubUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (m *stubUserRepo) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.NISN == user.NISN {
			return repository.ErrDuplicateKey
		}
		if user.Username != "" && strings.EqualFold(u.Username, user.Username) {
			return repository.ErrDuplicateKey
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *stubUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *stubUserRepo) GetByNISN(ctx context.Context, nisn string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.NISN == nisn {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *stubUserRepo) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *stubUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *stubUserRepo) List(ctx context.Context, filter repository.UserFilter, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.User
	for _, u := range m.users {
		if u.IsArchived && !filter.IncludeArchived {
			continue
		}
		clone := *u
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.User]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

func (m *stubUserRepo) ExistsByUsername(ctx context.Context, username string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != excludeID && strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *stubUserRepo) ExistsByNISN(ctx context.Context, nisn string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != excludeID && u.NISN == nisn {
			return true, nil
		}
	}
	return false, nil
}

func (m *stubUserRepo) AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	u.Points += delta
	return u.Points, nil
}

func (m *stubUserRepo) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (m *stubUserRepo) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubPointLogRepo struct {
	mu      sync.Mutex
	entries []*domain.PointLog
}

func (m *stubPointLogRepo) Create(ctx context.Context, entry *domain.PointLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *stubPointLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PointLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			clone := *e
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *stubPointLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) (*repository.ListResult[domain.PointLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.PointLog
	for _, e := range m.entries {
		if e.UserID == userID {
			clone := *e
			matched = append(matched, &clone)
		}
	}
	return &repository.ListResult[domain.PointLog]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

func (m *stubPointLogRepo) HasQuestEntrySince(ctx context.Context, userID, questID uuid.UUID, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.UserID == userID && e.QuestID != nil && *e.QuestID == questID && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type stubQuestRepo struct {
	mu     sync.Mutex
	quests map[uuid.UUID]*domain.Quest
}

func newStubQuestRepo() *stubQuestRepo {
	return &stubQuestRepo{quests: make(map[uuid.UUID]*domain.Quest)}
}

func (m *stubQuestRepo) Create(ctx context.Context, quest *domain.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *quest
	m.quests[quest.ID] = &clone
	return nil
}

func (m *stubQuestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (m *stubQuestRepo) Update(ctx context.Context, quest *domain.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quests[quest.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *quest
	m.quests[quest.ID] = &clone
	return nil
}

func (m *stubQuestRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quests, id)
	return nil
}

func (m *stubQuestRepo) List(ctx context.Context, filter repository.QuestFilter, opts repository.ListOptions) (*repository.ListResult[domain.Quest], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Quest
	for _, q := range m.quests {
		clone := *q
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.Quest]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (m *stubAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *stubAuditRepo) List(ctx context.Context, filter repository.AuditFilter, opts repository.ListOptions) (*repository.ListResult[domain.AuditLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.AuditLog
	for _, e := range m.entries {
		clone := *e
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.AuditLog]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

// routeEnv is an authenticated router over in-memory repositories.
type routeEnv struct {
	router http.Handler
	tokens *auth.TokenService
	users  *stubUserRepo
	quests *stubQuestRepo
}

func newRouteEnv(t *testing.T) *routeEnv {
	t.Helper()

	users := newStubUserRepo()
	quests := newStubQuestRepo()
	repos := &repository.Repositories{
		User:     users,
		PointLog: &stubPointLogRepo{},
		Quest:    quests,
		AuditLog: &stubAuditRepo{},
		Tx:       repository.NoopTxManager{},
	}

	cache := memory.NewCache()
	t.Cleanup(cache.Stop)

	logger := zerolog.Nop()
	points := service.NewPointService(repos, logger, service.NoopRecorder{})
	validator := service.NewValidator(repos.User, true)
	userSvc := service.NewUserService(repos, points, validator, cache, service.UserServiceOptions{
		BcryptCost: 4, // minimum cost keeps the tests fast
		UserTTL:    time.Minute,
		ListTTL:    time.Minute,
	}, logger, service.NoopRecorder{})
	questSvc := service.NewQuestService(repos, points, logger, service.NoopRecorder{})

	tokens, err := auth.NewTokenService(routeTestSecret, time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		NewUserHandler(userSvc, points, logger).RegisterRoutes(r)
		NewQuestHandler(questSvc, logger).RegisterRoutes(r)
	})

	return &routeEnv{router: r, tokens: tokens, users: users, quests: quests}
}

// seedUser stores a user directly and returns it with a signed token.
func (e *routeEnv) seedUser(t *testing.T, nisn string, roles ...domain.Role) (*domain.User, string) {
	t.Helper()

	user := domain.NewUser(nisn, "not-a-real-hash", roles)
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := e.tokens.Generate(user)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return user, token
}
