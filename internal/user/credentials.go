package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/security/password"
	tokens "github.com/dropDatabas3/idbridge/internal/security/token"
)

// ErrCredentialNotActive: la credencial existe pero no sirve para
// autenticar (INACTIVE o REVOKED).
var ErrCredentialNotActive = errors.New("user: credential not active")

const (
	KindPassword = "password"
	KindAPIKey   = "apikey"
)

// CredentialService administra credenciales locales. Los secretos nunca
// se guardan en claro: passwords con argon2id, api keys con SHA-256.
type CredentialService struct {
	creds domain.CredentialRepository
	now   func() time.Time
}

func NewCredentialService(creds domain.CredentialRepository) *CredentialService {
	return &CredentialService{creds: creds, now: time.Now}
}

// SetPassword da de alta (o rota) la password del usuario.
func (s *CredentialService) SetPassword(ctx context.Context, repositoryID, userID, plain string) (*domain.Credential, error) {
	if plain == "" {
		return nil, fmt.Errorf("%w: password vacía", domain.ErrInvalidInput)
	}
	hash, err := password.Hash(password.Default, plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	c := &domain.Credential{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		UserID:       userID,
		Kind:         KindPassword,
		SecretHash:   hash,
		Status:       domain.CredentialActive,
		CreatedAt:    s.now(),
	}
	if err := s.creds.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	return c, nil
}

// IssueAPIKey genera una api key opaca y guarda su hash. El valor en
// claro se devuelve una única vez.
func (s *CredentialService) IssueAPIKey(ctx context.Context, repositoryID, userID string) (string, *domain.Credential, error) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", nil, err
	}
	c := &domain.Credential{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		UserID:       userID,
		Kind:         KindAPIKey,
		SecretHash:   tokens.SHA256Base64URL(raw),
		Status:       domain.CredentialActive,
		CreatedAt:    s.now(),
	}
	if err := s.creds.Save(ctx, c); err != nil {
		return "", nil, fmt.Errorf("save credential: %w", err)
	}
	return raw, c, nil
}

// Verify chequea un secreto contra la credencial. Solo credenciales
// ACTIVE autentican.
func (s *CredentialService) Verify(ctx context.Context, repositoryID, id, secret string) (*domain.Credential, error) {
	c, err := s.creds.Get(ctx, repositoryID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CredentialActive {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotActive, c.Status)
	}
	var ok bool
	switch c.Kind {
	case KindPassword:
		ok = password.Verify(secret, c.SecretHash)
	case KindAPIKey:
		ok = tokens.SHA256Base64URL(secret) == c.SecretHash
	}
	if !ok {
		return nil, fmt.Errorf("%w: secreto inválido", domain.ErrInvalidInput)
	}
	return c, nil
}

// SetStatus transiciona la credencial validando las reglas de domain.
func (s *CredentialService) SetStatus(ctx context.Context, repositoryID, id string, to domain.CredentialStatus) (*domain.Credential, error) {
	c, err := s.creds.Get(ctx, repositoryID, id)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if c.Status == to {
		return c, nil
	}
	if err := c.Status.CheckTransition(to); err != nil {
		return nil, err
	}
	c.Status = to
	if to == domain.CredentialRevoked {
		now := s.now()
		c.RevokedAt = &now
	}
	if err := s.creds.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	return c, nil
}

// Revoke es idempotente: revocar una credencial ya revocada no es error y
// no toca RevokedAt.
func (s *CredentialService) Revoke(ctx context.Context, repositoryID, id string) (*domain.Credential, error) {
	c, err := s.creds.Get(ctx, repositoryID, id)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if c.Status == domain.CredentialRevoked {
		return c, nil
	}
	c, err = s.SetStatus(ctx, repositoryID, id, domain.CredentialRevoked)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("credential revoked",
		logger.String("credential_id", id), logger.UserID(c.UserID))
	return c, nil
}
