// password реализует hash-on-write для учётных записей на bcrypt.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt хэширует пароли с фиксированной стоимостью.
type Bcrypt struct {
	cost int
}

// New создаёт хэшер; cost вне диапазона bcrypt заменяется на bcrypt.DefaultCost.
func New(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &Bcrypt{cost: cost}
}

// Hash хэширует пароль.
func (b *Bcrypt) Hash(plain string) (string, error) {
	const op = "password.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// Compare сравнивает пароль с хэшем.
func (b *Bcrypt) Compare(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
