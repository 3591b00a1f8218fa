package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/bytebot-auth/internal/http/errors"
)

// SetupMFA: POST /auth/mfa/setup (Session Gate).
func (h *Handlers) SetupMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	setup, err := h.svc.BeginMFASetup(r.Context(), p.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mfaSetupResponse{
		QRCode:     setup.QRCode,
		Secret:     setup.Secret,
		OTPAuthURL: setup.OTPAuthURL,
	})
}

// VerifyMFA обрабатывает POST /auth/mfa/verify (Session Gate): подтверждение setup кодом.
func (h *Handlers) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in mfaCodeRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, err := h.svc.ConfirmMFASetup(r.Context(), p.UserID, in.Code)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userMessageResponse{Message: "MFA enabled successfully", User: user.View()})
}

// DisableMFA: POST /auth/mfa/disable (Session Gate).
func (h *Handlers) DisableMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	user, err := h.svc.DisableMFA(r.Context(), p.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userMessageResponse{Message: "MFA disabled successfully", User: user.View()})
}

// VerifyMFALogin обрабатывает POST /auth/mfa/login-verify: второй шаг входа.
func (h *Handlers) VerifyMFALogin(w http.ResponseWriter, r *http.Request) {
	var in mfaLoginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, user, err := h.svc.VerifyMFALogin(r.Context(), in.MFASessionToken, in.Code)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, newSessionResponse(user, pair.AccessToken))
}
