package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

func hashBcrypt(plain string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

// verifyBcrypt relies on bcrypt's constant-time comparison.
func verifyBcrypt(encodedHash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plain)) == nil
}

func bcryptCost(encodedHash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}
