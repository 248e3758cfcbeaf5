package utils

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is the shortest password accepted on registration or reset.
const MinPasswordLength = 6

// HashPassword returns a bcrypt hash of the provided password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext equivalent.
// An empty hash never matches, so accounts created by email code alone cannot
// be entered with a blank password.
func CheckPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
