package handlers

import "github.com/pribylovaa/bytebot-auth/internal/models"

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type mfaLoginRequest struct {
	Code            string `json:"code"`
	MFASessionToken string `json:"mfaSessionToken"`
}

// updateProfileRequest: nil-поля не меняются.
type updateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Image     *string `json:"image"`
	Password  *string `json:"password"`
}

type sessionResponse struct {
	Success     bool             `json:"success"`
	User        *models.UserView `json:"user,omitempty"`
	AccessToken string           `json:"accessToken,omitempty"`
}

type mfaRequiredResponse struct {
	Success         bool   `json:"success"`
	MFARequired     bool   `json:"mfaRequired"`
	MFASessionToken string `json:"mfaSessionToken"`
}

type refreshResponse struct {
	AccessToken string          `json:"accessToken"`
	User        models.UserView `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type userMessageResponse struct {
	Message string          `json:"message"`
	User    models.UserView `json:"user"`
}

type userResponse struct {
	User models.UserView `json:"user"`
}

type mfaSetupResponse struct {
	QRCode     string `json:"qrCode"`
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

func newSessionResponse(u *models.User, accessToken string) sessionResponse {
	v := u.View()
	return sessionResponse{Success: true, User: &v, AccessToken: accessToken}
}
