// Package auth expone los endpoints del flujo de login federado.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/flow"
	httperrors "github.com/dropDatabas3/idbridge/internal/http/errors"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

const sessionCookieName = "idbridge_session"

// Pages son los destinos post-flujo.
type Pages struct {
	// Landing recibe al usuario autenticado.
	Landing string
	// LoginError recibe los fallos clasificados (?error=<key>).
	LoginError string
}

// Controller maneja authorize y callback.
type Controller struct {
	service *flow.Service
	pages   Pages
}

func NewController(service *flow.Service, pages Pages) *Controller {
	if pages.Landing == "" {
		pages.Landing = "/"
	}
	if pages.LoginError == "" {
		pages.LoginError = "/login-error"
	}
	return &Controller{service: service, pages: pages}
}

// Authorize maneja GET /auth/{authority}/authorize/{providerId}.
//
// En esta ruta un provider inexistente es error de servidor: el link de
// login lo generamos nosotros, si apunta a una config que no existe el
// deployment está roto, no el request.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Authorize"))

	auth, err := authority.Parse(chi.URLParam(r, "authority"))
	if err != nil {
		log.Error("unknown authority on authorize path", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	providerID := chi.URLParam(r, "providerId")

	redirectURL, err := c.service.Authorize(ctx, auth, providerID)
	if err != nil {
		log.Error("authorize failed", logger.Provider(providerID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Callback maneja GET|POST /auth/{authority}/login/{providerId}.
//
// Callbacks malformados o con state inválido responden 400; el resto de
// los fallos redirige a la página de error con la key clasificada. El
// usuario nunca ve el payload upstream.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Callback"))

	auth, err := authority.Parse(chi.URLParam(r, "authority"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid_request"))
		return
	}
	providerID := chi.URLParam(r, "providerId")

	res, err := c.service.Callback(ctx, auth, providerID, r)
	if err != nil {
		var ae *flow.AuthError
		if errors.As(err, &ae) && ae.Key != flow.KeyInvalidRequest {
			c.redirectError(w, r, ae.Key)
			return
		}
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid_request"))
		return
	}

	if res.SessionToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    res.SessionToken,
			Path:     "/",
			Expires:  res.SessionExp,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}

	log.Debug("login completed", logger.Subject(res.Principal.PrincipalID))
	http.Redirect(w, r, c.pages.Landing, http.StatusFound)
}

// LoginError maneja GET /login-error cuando no hay página propia
// configurada.
func (c *Controller) LoginError(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("error")
	if key == "" {
		key = string(flow.KeyServerError)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "login failed: %s\n", key)
}

func (c *Controller) redirectError(w http.ResponseWriter, r *http.Request, key flow.ErrorKey) {
	u := c.pages.LoginError
	if parsed, err := url.Parse(u); err == nil {
		q := parsed.Query()
		q.Set("error", string(key))
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}
	http.Redirect(w, r, u, http.StatusFound)
}
