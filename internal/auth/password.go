package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash for storage in the user directory.
// A non-positive cost falls back to the bcrypt default.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword checks a login attempt against the stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
