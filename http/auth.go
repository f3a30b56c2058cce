package http

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/login"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type factorRequest struct {
	PrincipalID string `json:"principal_id"`
	Code        string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken    string      `json:"access_token,omitempty"`
	RefreshToken   string      `json:"refresh_token,omitempty"`
	FactorRequired bool        `json:"factor_required,omitempty"`
	Principal      interface{} `json:"principal,omitempty"`
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.writeResult(w, r, result)
}

func (h *handler) handleFactor(w http.ResponseWriter, r *http.Request) {
	var req factorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.PrincipalID == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "principal_id and code are required")
		return
	}

	result, err := h.auth.CompleteFactor(r.Context(), req.PrincipalID, req.Code, r.RemoteAddr)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.writeResult(w, r, result)
}

func (h *handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken, r.RemoteAddr)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.writeResult(w, r, result)
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken, r.RemoteAddr); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	cred := credentialFrom(r.Context())
	if cred == nil {
		respondError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	count, err := h.auth.LogoutAll(r.Context(), cred.PrincipalID, r.RemoteAddr)
	if err != nil {
		h.log.Error("logout-all failed",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("principal_id", cred.PrincipalID),
			logger.Err(err),
		)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"revoked": count})
}

func (h *handler) writeResult(w http.ResponseWriter, r *http.Request, result *login.Result) {
	if result.FactorRequired {
		respondJSON(w, http.StatusAccepted, &tokenResponse{FactorRequired: true})
		return
	}

	h.log.Trace("issuing credential pair",
		logger.String("request_id", middleware.GetReqID(r.Context())),
	)
	respondJSON(w, http.StatusOK, &tokenResponse{
		AccessToken:  result.Tokens.Access.Signed,
		RefreshToken: result.Tokens.Refresh.Signed,
		Principal:    result.Principal,
	})
}
