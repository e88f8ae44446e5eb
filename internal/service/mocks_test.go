package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// =============================================================================
// In-memory fakes shared by the service tests. They store entities in
// maps and honor the same not-found / duplicate semantics as the real
// drivers, with injectable error hooks for failure paths.
// =============================================================================

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*domain.User
	createErr error
	getErr    error
	updateErr error
	listErr   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (m *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
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

func (m *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *fakeUserRepo) GetByNISN(ctx context.Context, nisn string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.NISN == nisn {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *fakeUserRepo) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *fakeUserRepo) List(ctx context.Context, filter repository.UserFilter, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var matched []*domain.User
	for _, u := range m.users {
		if u.IsArchived && !filter.IncludeArchived {
			continue
		}
		if filter.Role != nil && !u.HasRole(*filter.Role) {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.FirstName), s) &&
				!strings.Contains(strings.ToLower(u.LastName), s) &&
				!strings.Contains(strings.ToLower(u.Username), s) &&
				!strings.Contains(u.NISN, s) {
				continue
			}
		}
		clone := *u
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if opts.Offset < len(matched) {
		matched = matched[opts.Offset:]
	} else {
		matched = nil
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return &repository.ListResult[domain.User]{
		Items:  matched,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

func (m *fakeUserRepo) ExistsByUsername(ctx context.Context, username string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != excludeID && strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeUserRepo) ExistsByNISN(ctx context.Context, nisn string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != excludeID && u.NISN == nisn {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeUserRepo) AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	u.Points += delta
	return u.Points, nil
}

func (m *fakeUserRepo) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.LockedUntil != nil && now.After(*u.LockedUntil) {
			u.LockedUntil = nil
			u.FailedLoginAttempts = 0
			n++
		}
	}
	return n, nil
}

func (m *fakeUserRepo) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.ResetTokenExpires != nil && now.After(*u.ResetTokenExpires) {
			u.ResetToken = ""
			u.ResetTokenExpires = nil
			u.ResetTokenAttempts = 0
			n++
		}
	}
	return n, nil
}

type fakePointLogRepo struct {
	mu        sync.Mutex
	entries   []*domain.PointLog
	createErr error
}

func newFakePointLogRepo() *fakePointLogRepo {
	return &fakePointLogRepo{}
}

func (m *fakePointLogRepo) Create(ctx context.Context, entry *domain.PointLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *fakePointLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PointLog, error) {
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

func (m *fakePointLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) (*repository.ListResult[domain.PointLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.PointLog
	for _, e := range m.entries {
		if e.UserID == userID {
			clone := *e
			matched = append(matched, &clone)
		}
	}
	total := int64(len(matched))
	if opts.Offset < len(matched) {
		matched = matched[opts.Offset:]
	} else {
		matched = nil
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &repository.ListResult[domain.PointLog]{Items: matched, Total: total, Offset: opts.Offset, Limit: opts.Limit}, nil
}

func (m *fakePointLogRepo) HasQuestEntrySince(ctx context.Context, userID, questID uuid.UUID, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.UserID == userID && e.QuestID != nil && *e.QuestID == questID && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// byUser returns the stored entries for a user, oldest first.
func (m *fakePointLogRepo) byUser(userID uuid.UUID) []*domain.PointLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PointLog
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

type fakeQuestRepo struct {
	mu     sync.Mutex
	quests map[uuid.UUID]*domain.Quest
}

func newFakeQuestRepo() *fakeQuestRepo {
	return &fakeQuestRepo{quests: make(map[uuid.UUID]*domain.Quest)}
}

func (m *fakeQuestRepo) Create(ctx context.Context, quest *domain.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *quest
	m.quests[quest.ID] = &clone
	return nil
}

func (m *fakeQuestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (m *fakeQuestRepo) Update(ctx context.Context, quest *domain.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quests[quest.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *quest
	m.quests[quest.ID] = &clone
	return nil
}

func (m *fakeQuestRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.quests, id)
	return nil
}

func (m *fakeQuestRepo) List(ctx context.Context, filter repository.QuestFilter, opts repository.ListOptions) (*repository.ListResult[domain.Quest], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Quest
	for _, q := range m.quests {
		if filter.Type != nil && q.Type != *filter.Type {
			continue
		}
		if filter.ActiveOnly && !q.Completable(time.Now().UTC()) {
			continue
		}
		clone := *q
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.Quest]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

type fakeAppealRepo struct {
	mu      sync.Mutex
	appeals map[uuid.UUID]*domain.Appeal
}

func newFakeAppealRepo() *fakeAppealRepo {
	return &fakeAppealRepo{appeals: make(map[uuid.UUID]*domain.Appeal)}
}

func (m *fakeAppealRepo) Create(ctx context.Context, appeal *domain.Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *appeal
	m.appeals[appeal.ID] = &clone
	return nil
}

func (m *fakeAppealRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appeals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *fakeAppealRepo) Update(ctx context.Context, appeal *domain.Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appeals[appeal.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *appeal
	m.appeals[appeal.ID] = &clone
	return nil
}

func (m *fakeAppealRepo) List(ctx context.Context, filter repository.AppealFilter, opts repository.ListOptions) (*repository.ListResult[domain.Appeal], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Appeal
	for _, a := range m.appeals {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		clone := *a
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.Appeal]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (m *fakeAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *fakeAuditRepo) List(ctx context.Context, filter repository.AuditFilter, opts repository.ListOptions) (*repository.ListResult[domain.AuditLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.AuditLog
	for _, e := range m.entries {
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		clone := *e
		matched = append(matched, &clone)
	}
	return &repository.ListResult[domain.AuditLog]{Items: matched, Total: int64(len(matched)), Offset: opts.Offset, Limit: opts.Limit}, nil
}

// byAction returns stored entries with the given action.
func (m *fakeAuditRepo) byAction(action string) []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditLog
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// newFakeRepos bundles fresh fakes into a repository set with a no-op
// transaction manager.
func newFakeRepos() (*repository.Repositories, *fakeUserRepo, *fakePointLogRepo, *fakeQuestRepo, *fakeAppealRepo, *fakeAuditRepo) {
	users := newFakeUserRepo()
	points := newFakePointLogRepo()
	quests := newFakeQuestRepo()
	appeals := newFakeAppealRepo()
	audits := newFakeAuditRepo()

	repos := &repository.Repositories{
		User:     users,
		PointLog: points,
		Quest:    quests,
		Appeal:   appeals,
		AuditLog: audits,
		Tx:       repository.NoopTxManager{},
	}
	return repos, users, points, quests, appeals, audits
}
