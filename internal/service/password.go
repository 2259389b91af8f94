package service

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a salted bcrypt hash. Cost asymmetry with guessing is
// the whole point; DefaultCost tracks the library's current recommendation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash. A
// malformed stored hash is an authentication failure, not a crash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
