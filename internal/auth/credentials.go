package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrBadCredentials   = errors.New("bad credentials")
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

// Credentials is the single operator account the service trusts. The
// hash is provisioned out of band; there is no signup path.
type Credentials struct {
	Operator     string
	PasswordHash string
}

// Authenticate checks the operator name and password against the
// provisioned credentials.
func (c Credentials) Authenticate(operator, password string) error {
	if operator != c.Operator {
		return ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashPassword hashes a password using bcrypt. Used by provisioning
// tooling to mint the operator hash.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}
