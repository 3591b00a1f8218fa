package models

import "time"

// TokenPair: пара токенов сессии.
//
// Описание:
//   - AccessToken: короткоживущий JWT для доступа к API;
//   - RefreshToken: долгоживущий JWT, действительный, пока он записан
//     в наборе refresh-токенов пользователя;
//   - TokenID: общий jti обоих токенов, ключ отзыва;
//   - AccessExpiresAt/RefreshExpiresAt: моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenID          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
