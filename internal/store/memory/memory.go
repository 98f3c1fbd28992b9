// Package memory implementa los repositorios sobre maps en memoria.
// Sirve para desarrollo y tests; el driver real es pg.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/idbridge/internal/domain"
)

// Store agrupa todos los repositorios en memoria bajo un solo lock.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*domain.User
	accounts  map[accountKey]*domain.Account
	creds     map[credKey]*domain.Credential
	providers map[string][]byte
}

type accountKey struct{ repo, id string }
type credKey struct{ repo, id string }

func New() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		accounts:  make(map[accountKey]*domain.Account),
		creds:     make(map[credKey]*domain.Credential),
		providers: make(map[string][]byte),
	}
}

func (s *Store) Users() domain.UserRepository             { return (*userRepo)(s) }
func (s *Store) Accounts() domain.AccountRepository       { return (*accountRepo)(s) }
func (s *Store) Credentials() domain.CredentialRepository { return (*credRepo)(s) }

// ─── users ───

type userRepo Store

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[u.ID]; exists {
		return domain.ErrAlreadyRegistered
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// ─── accounts ───

type accountRepo Store

func (r *accountRepo) Get(_ context.Context, repositoryID, accountID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountKey{repositoryID, accountID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(a), nil
}

func (r *accountRepo) Save(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[accountKey{a.RepositoryID, a.AccountID}] = copyAccount(a)
	return nil
}

func (r *accountRepo) SetUserID(_ context.Context, repositoryID, accountID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey{repositoryID, accountID}]
	if !ok {
		return domain.ErrNotFound
	}
	a.UserID = userID
	return nil
}

func (r *accountRepo) SetStatus(_ context.Context, repositoryID, accountID string, st domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey{repositoryID, accountID}]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = st
	return nil
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	if a.Attributes != nil {
		cp.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

// ─── credentials ───

type credRepo Store

func (r *credRepo) Get(_ context.Context, repositoryID, id string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[credKey{repositoryID, id}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *credRepo) Save(_ context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.creds[credKey{c.RepositoryID, c.ID}] = &cp
	return nil
}

// ─── provider configs (authority.ConfigStore) ───

func (s *Store) Get(_ context.Context, providerID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.providers[providerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (s *Store) Put(_ context.Context, providerID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.providers[providerID] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[providerID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.providers, providerID)
	return nil
}

func (s *Store) List(_ context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.providers))
	for k, v := range s.providers {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}
