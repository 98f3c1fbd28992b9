// Package user resuelve principals normalizados contra los usuarios y
// cuentas locales, y administra su ciclo de vida.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/principal"
)

var (
	// ErrAccountNotActive: la cuenta existe pero está LOCKED o INACTIVE.
	ErrAccountNotActive = errors.New("user: account not active")

	// ErrAccountUnknown: no hay cuenta para ese principal y el provider
	// no tiene alta automática.
	ErrAccountUnknown = errors.New("user: account unknown")
)

// ResolveOptions viene de la config del provider que autenticó.
type ResolveOptions struct {
	RepositoryID    string
	CreateOnMissing bool
}

// Resolver materializa el principal en {user, account} locales.
type Resolver struct {
	users    domain.UserRepository
	accounts domain.AccountRepository
	now      func() time.Time
}

func NewResolver(users domain.UserRepository, accounts domain.AccountRepository) *Resolver {
	return &Resolver{users: users, accounts: accounts, now: time.Now}
}

// Resolve busca la cuenta por {repositorio, subject}. Si existe refresca
// sus atributos y devuelve el user vinculado; si no existe y el provider
// permite alta automática, crea user y cuenta en el momento. La
// resolución es determinista: el mismo principal siempre llega al mismo
// user.
func (r *Resolver) Resolve(ctx context.Context, p *principal.Principal, opts ResolveOptions) (*domain.User, *domain.Account, error) {
	repoID := opts.RepositoryID
	if repoID == "" {
		repoID = p.Realm
	}

	acc, err := r.accounts.Get(ctx, repoID, p.PrincipalID)
	switch {
	case err == nil:
		return r.resolveExisting(ctx, p, acc)
	case domain.IsNotFound(err):
		if !opts.CreateOnMissing {
			return nil, nil, ErrAccountUnknown
		}
		return r.createUserAndAccount(ctx, p, repoID)
	default:
		return nil, nil, fmt.Errorf("load account: %w", err)
	}
}

func (r *Resolver) resolveExisting(ctx context.Context, p *principal.Principal, acc *domain.Account) (*domain.User, *domain.Account, error) {
	if acc.Status != domain.StatusActive {
		return nil, nil, fmt.Errorf("%w: %s", ErrAccountNotActive, acc.Status)
	}

	// Refresh de perfil en cada login: lo que afirma el provider hoy
	// pisa lo guardado.
	acc.Username = p.Username
	acc.Email = p.Email
	acc.EmailVerified = p.EmailVerified
	acc.Attributes = stringifyAttributes(p.Attributes)
	acc.UpdatedAt = r.now()
	if err := r.accounts.Save(ctx, acc); err != nil {
		return nil, nil, fmt.Errorf("refresh account: %w", err)
	}

	if acc.UserID == "" {
		return nil, acc, nil
	}
	u, err := r.users.GetByID(ctx, acc.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load linked user %s: %w", acc.UserID, err)
	}
	return u, acc, nil
}

func (r *Resolver) createUserAndAccount(ctx context.Context, p *principal.Principal, repoID string) (*domain.User, *domain.Account, error) {
	now := r.now()
	u := &domain.User{
		ID:            uuid.NewString(),
		Realm:         p.Realm,
		Username:      p.Username,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		CreatedAt:     now,
	}
	if err := r.users.Create(ctx, u); err != nil {
		// Colisión de UUID: jamás pisar al usuario existente. Se
		// reporta fuerte y el login falla.
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			logger.From(ctx).Error("uuid collision creating user",
				logger.UserID(u.ID), logger.Realm(p.Realm))
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	acc := &domain.Account{
		RepositoryID:  repoID,
		AccountID:     p.PrincipalID,
		UUID:          uuid.NewString(),
		UserID:        u.ID,
		Realm:         p.Realm,
		Authority:     string(p.Authority),
		Provider:      p.Provider,
		Username:      p.Username,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Status:        domain.StatusActive,
		Attributes:    stringifyAttributes(p.Attributes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.accounts.Save(ctx, acc); err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	logger.From(ctx).Info("user auto-provisioned",
		logger.UserID(u.ID), logger.Realm(p.Realm), logger.Provider(p.Provider))
	return u, acc, nil
}

func stringifyAttributes(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case bool:
			if t {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		case []string:
			if len(t) > 0 {
				out[k] = t[0]
			}
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
