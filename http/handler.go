package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nutrilog/sessiond/identity"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/login"
	"github.com/nutrilog/sessiond/token"
)

type contextKey string

const credentialKey contextKey = "sessiond.credential"

// HandlerProperties contains the services the HTTP boundary exposes.
type HandlerProperties struct {
	Authenticator *login.Authenticator
	Issuer        *token.Issuer
	Cache         *identity.Cache
	Logger        logger.Logger
}

// Handler assembles the main HTTP handler. The boundary only parses
// requests and maps typed failures to status codes; all semantics live
// in the core services.
func Handler(props *HandlerProperties) http.Handler {
	h := &handler{
		auth:   props.Authenticator,
		issuer: props.Issuer,
		cache:  props.Cache,
		log:    props.Logger.WithSubsystem("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.handleLogin)
			r.Post("/factor", h.handleFactor)
			r.Post("/refresh", h.handleRefresh)
			r.Post("/logout", h.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(h.requireCredential)
				r.Post("/logout-all", h.handleLogoutAll)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCredential)
			r.Get("/identity/{principalID}", h.handleIdentity)
		})

		r.Get("/sys/metrics", h.handleMetrics)
	})

	return r
}

type handler struct {
	auth   *login.Authenticator
	issuer *token.Issuer
	cache  *identity.Cache
	log    logger.Logger
}

// requireCredential validates the bearer credential and stashes it in
// the request context.
func (h *handler) requireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			respondError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}

		cred, err := h.issuer.Validate(r.Context(), raw)
		if err != nil {
			h.log.Debug("credential rejected",
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.Err(err),
			)
			respondServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), credentialKey, cred)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func credentialFrom(ctx context.Context) *token.IssuedCredential {
	cred, _ := ctx.Value(credentialKey).(*token.IssuedCredential)
	return cred
}
