// Package router define las rutas HTTP del gateway.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/admin"
	authctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/auth"
	wkctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/wellknown"
	httperrors "github.com/dropDatabas3/idbridge/internal/http/errors"
	mw "github.com/dropDatabas3/idbridge/internal/http/middlewares"
)

// Deps contiene los controllers ya wireados.
type Deps struct {
	Auth      *authctrl.Controller
	Providers *adminctrl.ProvidersController
	Accounts  *adminctrl.AccountsController
	Wellknown *wkctrl.Controller
}

// New arma el router completo.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// ─── Flujo de login ───
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get("/auth/{authority}/authorize/{providerId}", deps.Auth.Authorize)
		r.Get("/auth/{authority}/login/{providerId}", deps.Auth.Callback)
		// SAML/SPID y Apple (form_post) vuelven por POST.
		r.Post("/auth/{authority}/login/{providerId}", deps.Auth.Callback)
		r.Get("/login-error", deps.Auth.LoginError)
	})

	// ─── Admin ───
	r.Route("/admin/realms/{realm}", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", deps.Providers.List)
			r.Post("/", deps.Providers.Register)
			r.Get("/{providerId}", deps.Providers.Get)
			r.Delete("/{providerId}", deps.Providers.Unregister)
		})
		r.Put("/accounts/{accountId}/status", deps.Accounts.SetStatus)
		r.Put("/credentials/{credentialId}/status", deps.Accounts.SetCredentialStatus)
		r.Post("/credentials/{credentialId}/revoke", deps.Accounts.RevokeCredential)
	})

	// ─── Descubrimiento y operación ───
	r.Get("/.well-known/idbridge-configuration", deps.Wellknown.Configuration)
	r.Get("/.well-known/jwks.json", deps.Wellknown.JWKS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Middlewares globales: request-id primero para que logging y recover
	// lo tengan en contexto.
	return mw.Chain(r, mw.WithRequestID(), mw.WithLogging(), mw.WithRecover())
}
