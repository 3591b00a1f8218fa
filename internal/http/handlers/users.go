package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/bytebot-auth/internal/http/errors"
	"github.com/pribylovaa/bytebot-auth/internal/http/middleware"
	"github.com/pribylovaa/bytebot-auth/internal/service"
)

// Me: GET /user/me (Session Gate).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Profile(r.Context(), p.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: *view})
}

// UpdateMe: PATCH /user/me (Session Gate).
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in updateProfileRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), p.UserID, service.ProfileUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Image:     in.Image,
		Password:  in.Password,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userMessageResponse{Message: "Profile updated successfully", User: user.View()})
}

// principal достаёт субъекта из контекста; без него отвечает 401.
func principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
	}

	return p, ok
}
