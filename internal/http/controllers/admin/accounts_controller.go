package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idbridge/internal/domain"
	httperrors "github.com/dropDatabas3/idbridge/internal/http/errors"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/user"
)

// AccountsController administra estado de cuentas y credenciales.
type AccountsController struct {
	lifecycle   *user.Lifecycle
	credentials *user.CredentialService
}

func NewAccountsController(lc *user.Lifecycle, cs *user.CredentialService) *AccountsController {
	return &AccountsController{lifecycle: lc, credentials: cs}
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus maneja PUT /admin/realms/{realm}/accounts/{accountId}/status
//
// El realm de la URL es el repository id de la cuenta (particionado por
// realm salvo config explícita). Transición ilegal responde 409.
func (c *AccountsController) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repositoryID := chi.URLParam(r, "realm")
	accountID := chi.URLParam(r, "accountId")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	acc, err := c.lifecycle.SetStatus(ctx, repositoryID, accountID, domain.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			httperrors.WriteError(w, httperrors.ErrConflict.WithDetail(err.Error()))
		case domain.IsNotFound(err):
			httperrors.WriteError(w, httperrors.ErrNotFound)
		default:
			logger.From(ctx).Error("set account status failed",
				logger.Subject(accountID), logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

// RevokeCredential maneja POST /admin/realms/{realm}/credentials/{credentialId}/revoke
//
// Idempotente: revocar lo ya revocado responde 200 con el mismo recurso.
func (c *AccountsController) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repositoryID := chi.URLParam(r, "realm")
	credentialID := chi.URLParam(r, "credentialId")

	cred, err := c.credentials.Revoke(ctx, repositoryID, credentialID)
	if err != nil {
		if domain.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		logger.From(ctx).Error("revoke credential failed",
			logger.String("credential_id", credentialID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// SetCredentialStatus maneja PUT /admin/realms/{realm}/credentials/{credentialId}/status
func (c *AccountsController) SetCredentialStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repositoryID := chi.URLParam(r, "realm")
	credentialID := chi.URLParam(r, "credentialId")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	cred, err := c.credentials.SetStatus(ctx, repositoryID, credentialID, domain.CredentialStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			httperrors.WriteError(w, httperrors.ErrConflict.WithDetail(err.Error()))
		case domain.IsNotFound(err):
			httperrors.WriteError(w, httperrors.ErrNotFound)
		default:
			logger.From(ctx).Error("set credential status failed",
				logger.String("credential_id", credentialID), logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, cred)
}
