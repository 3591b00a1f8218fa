package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/bytebot-auth/internal/http/errors"
	"github.com/pribylovaa/bytebot-auth/internal/http/middleware"
	"github.com/pribylovaa/bytebot-auth/internal/service"
)

// Signup обрабатывает POST /auth/signup: 201 + cookie с refresh-токеном.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, user, err := h.svc.Signup(r.Context(), service.SignupInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusCreated, newSessionResponse(user, pair.AccessToken))
}

// Login обрабатывает POST /auth/login: сессия либо требование второго фактора.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if res.MFARequired {
		writeJSON(w, http.StatusOK, mfaRequiredResponse{
			Success:         true,
			MFARequired:     true,
			MFASessionToken: res.MFASessionToken,
		})
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, newSessionResponse(res.User, res.Tokens.AccessToken))
}

// Refresh обрабатывает POST /auth/refresh: новый access-токен по cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := h.refreshFromCookie(r)
	if refresh == "" {
		apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
		return
	}

	access, user, err := h.svc.RotateFromRefresh(r.Context(), refresh)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access, User: user.View()})
}

// Logout обрабатывает POST /auth/logout: оба токена необязательны, cookie очищается всегда,
// кроме случая недоступного хранилища.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	access := middleware.TokenFromRequest(r)
	refresh := h.refreshFromCookie(r)

	if err := h.svc.Logout(r.Context(), access, refresh); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}
