package auth

import "golang.org/x/crypto/bcrypt"

// PasswordVerifier checks a login password against a stored hash.
// Hashing itself happens where users are created, in the user store;
// the login path only ever compares.
type PasswordVerifier interface {
	// Compare returns nil when password matches hashedPassword.
	Compare(hashedPassword, password string) error
}

// BcryptVerifier is the production PasswordVerifier. Passwords are
// capped at 72 bytes at validation time because bcrypt ignores
// anything beyond that.
type BcryptVerifier struct{}

func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

func (v *BcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
