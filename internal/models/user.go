package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MFAMethod: основной способ второго фактора.
type MFAMethod string

const (
	MFAMethodNone  MFAMethod = "none"
	MFAMethodTOTP  MFAMethod = "totp"
	MFAMethodEmail MFAMethod = "email"
	MFAMethodSMS   MFAMethod = "sms"
)

// Valid сообщает, входит ли значение в допустимый набор.
func (m MFAMethod) Valid() bool {
	switch m {
	case MFAMethodNone, MFAMethodTOTP, MFAMethodEmail, MFAMethodSMS:
		return true
	default:
		return false
	}
}

// ErrInvalidMFAState: запись нарушает инвариант MFA.
var ErrInvalidMFAState = errors.New("mfa: enabled requires secret and primary method")

// MFA: состояние второго фактора пользователя.
//
// Переходы: disabled → pendingSetup (Secret задан, Enabled=false) → enabled → disabled.
type MFA struct {
	Enabled       bool
	Secret        string
	PrimaryMethod MFAMethod
}

// Validate проверяет инвариант: Enabled ⇒ Secret != "" и PrimaryMethod != none.
func (m MFA) Validate() error {
	method := m.PrimaryMethod
	if method == "" {
		method = MFAMethodNone
	}
	if !method.Valid() {
		return ErrInvalidMFAState
	}
	if m.Enabled && (m.Secret == "" || method == MFAMethodNone) {
		return ErrInvalidMFAState
	}

	return nil
}

// PendingSetup: секрет сгенерирован, но ещё не подтверждён кодом.
func (m MFA) PendingSetup() bool {
	return !m.Enabled && m.Secret != ""
}

// RefreshToken: запись об активном refresh-токене пользователя.
type RefreshToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PasswordHasher хэширует пароль при записи пользователя.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// User: учётная запись пользователя.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Image        string
	IsOnline     bool
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	RefreshTokens []RefreshToken
	MFA           MFA

	// pendingPassword: открытый пароль, ожидающий хэширования при записи.
	pendingPassword string
	passwordDirty   bool
}

// SetPassword запоминает новый пароль; хэш вычисляется в HashPendingPassword.
func (u *User) SetPassword(plain string) {
	u.pendingPassword = plain
	u.passwordDirty = true
}

// PasswordDirty сообщает, есть ли пароль, ожидающий хэширования.
func (u *User) PasswordDirty() bool {
	return u.passwordDirty
}

// HashPendingPassword хэширует пароль, если он был изменён через SetPassword.
// Вызывается хранилищем непосредственно перед записью.
func (u *User) HashPendingPassword(h PasswordHasher) error {
	if !u.passwordDirty {
		return nil
	}

	hash, err := h.Hash(u.pendingPassword)
	if err != nil {
		return err
	}

	u.PasswordHash = hash
	u.pendingPassword = ""
	u.passwordDirty = false

	return nil
}

// HasRefreshToken сообщает, содержится ли токен в наборе пользователя.
func (u *User) HasRefreshToken(token string) bool {
	for _, rt := range u.RefreshTokens {
		if rt.Token == token {
			return true
		}
	}

	return false
}

// DisplayName: имя для событий присутствия.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// UserView описывает проекцию пользователя для клиента, без хэша пароля,
// MFA-секрета и refresh-токенов.
type UserView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Image      string    `json:"image,omitempty"`
	IsOnline   bool      `json:"isOnline"`
	LastSeen   time.Time `json:"lastSeen"`
	MFAEnabled bool      `json:"mfaEnabled"`
	MFAMethod  MFAMethod `json:"mfaMethod"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// View строит клиентскую проекцию пользователя.
func (u *User) View() UserView {
	method := u.MFA.PrimaryMethod
	if method == "" {
		method = MFAMethodNone
	}

	return UserView{
		ID:         u.ID.String(),
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Image:      u.Image,
		IsOnline:   u.IsOnline,
		LastSeen:   u.LastSeen,
		MFAEnabled: u.MFA.Enabled,
		MFAMethod:  method,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
