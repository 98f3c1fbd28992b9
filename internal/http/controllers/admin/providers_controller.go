// Package admin expone la API de administración de providers por realm.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idbridge/internal/audit"
	"github.com/dropDatabas3/idbridge/internal/authority"
	httperrors "github.com/dropDatabas3/idbridge/internal/http/errors"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

const maxProviderBodySize = 256 * 1024 // 256KB

// ProvidersController administra provider configs: alta CAS, baja y
// listado por realm.
type ProvidersController struct {
	registry *authority.Registry
	audit    *audit.Publisher
}

func NewProvidersController(registry *authority.Registry, pub *audit.Publisher) *ProvidersController {
	return &ProvidersController{registry: registry, audit: pub}
}

// List maneja GET /admin/realms/{realm}/providers
func (c *ProvidersController) List(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")

	configs, err := c.registry.List(r.Context(), realm)
	if err != nil {
		logger.From(r.Context()).Error("list providers failed",
			logger.Realm(realm), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, configs)
}

// Get maneja GET /admin/realms/{realm}/providers/{providerId}
func (c *ProvidersController) Get(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	providerID := chi.URLParam(r, "providerId")

	cfg, err := c.registry.Resolve(r.Context(), providerID)
	if err != nil || cfg.Realm != realm {
		httperrors.WriteError(w, httperrors.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Register maneja POST /admin/realms/{realm}/providers
//
// El alta es compare-and-set: Version debe coincidir con lo almacenado
// (0 para crear). Versión vieja responde 409 y no toca nada.
func (c *ProvidersController) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Providers.Register"))

	r.Body = http.MaxBytesReader(w, r.Body, maxProviderBodySize)
	defer r.Body.Close()

	var cfg authority.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	cfg.Realm = realm
	if err := cfg.Validate(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	stored, err := c.registry.Register(ctx, &cfg)
	if err != nil {
		switch {
		case errors.Is(err, authority.ErrStaleVersion):
			httperrors.WriteError(w, httperrors.ErrConflict.WithDetail("stale provider version"))
		default:
			log.Error("register provider failed", logger.Provider(cfg.ProviderID), logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	c.audit.Publish(ctx, audit.Event{
		Type:      audit.EventProviderRegistered,
		Realm:     realm,
		Authority: string(stored.Authority),
		Provider:  stored.ProviderID,
	})
	log.Info("provider registered",
		logger.Provider(stored.ProviderID), logger.Realm(realm),
		logger.Int64("version", stored.Version))

	writeJSON(w, http.StatusOK, stored)
}

// Unregister maneja DELETE /admin/realms/{realm}/providers/{providerId}
func (c *ProvidersController) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")
	providerID := chi.URLParam(r, "providerId")

	if err := c.registry.Unregister(ctx, providerID); err != nil {
		switch {
		case errors.Is(err, authority.ErrSystemRealm):
			httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("system realm provider"))
		case errors.Is(err, authority.ErrProviderNotFound):
			httperrors.WriteError(w, httperrors.ErrNotFound)
		default:
			logger.From(ctx).Error("unregister provider failed",
				logger.Provider(providerID), logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	c.audit.Publish(ctx, audit.Event{
		Type:     audit.EventProviderUnregistered,
		Realm:    realm,
		Provider: providerID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
