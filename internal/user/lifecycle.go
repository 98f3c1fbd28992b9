package user

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

// Lifecycle aplica las transiciones de estado de cuenta. Las reglas viven
// en domain.Status; acá solo se cargan, validan y persisten.
type Lifecycle struct {
	accounts domain.AccountRepository
}

func NewLifecycle(accounts domain.AccountRepository) *Lifecycle {
	return &Lifecycle{accounts: accounts}
}

// SetStatus transiciona la cuenta al estado pedido. Transiciones ilegales
// retornan domain.ErrInvalidTransition sin tocar nada; mismo estado es
// no-op.
func (l *Lifecycle) SetStatus(ctx context.Context, repositoryID, accountID string, to domain.Status) (*domain.Account, error) {
	acc, err := l.accounts.Get(ctx, repositoryID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acc.Status == to {
		return acc, nil
	}
	if err := acc.Status.CheckTransition(to); err != nil {
		return nil, err
	}
	if err := l.accounts.SetStatus(ctx, repositoryID, accountID, to); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}

	logger.From(ctx).Info("account status changed",
		logger.String("repository_id", repositoryID),
		logger.Subject(accountID),
		logger.String("from", string(acc.Status)),
		logger.String("to", string(to)))

	acc.Status = to
	return acc, nil
}

func (l *Lifecycle) Lock(ctx context.Context, repositoryID, accountID string) (*domain.Account, error) {
	return l.SetStatus(ctx, repositoryID, accountID, domain.StatusLocked)
}

func (l *Lifecycle) Unlock(ctx context.Context, repositoryID, accountID string) (*domain.Account, error) {
	return l.SetStatus(ctx, repositoryID, accountID, domain.StatusActive)
}

func (l *Lifecycle) Deactivate(ctx context.Context, repositoryID, accountID string) (*domain.Account, error) {
	return l.SetStatus(ctx, repositoryID, accountID, domain.StatusInactive)
}

func (l *Lifecycle) Activate(ctx context.Context, repositoryID, accountID string) (*domain.Account, error) {
	return l.SetStatus(ctx, repositoryID, accountID, domain.StatusActive)
}

// Link vincula una cuenta huérfana a un user existente.
func (l *Lifecycle) Link(ctx context.Context, repositoryID, accountID, userID string) error {
	if _, err := l.accounts.Get(ctx, repositoryID, accountID); err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	return l.accounts.SetUserID(ctx, repositoryID, accountID, userID)
}
