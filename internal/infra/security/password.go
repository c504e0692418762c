// Package security supplies the credential primitives the account layer
// depends on: password hashing and opaque session tokens.
package security

import "golang.org/x/crypto/bcrypt"

// BcryptHasher hashes sign-up passwords with bcrypt. A zero value uses
// the library default cost; tests lower Cost to keep fixtures fast.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(out), err
}

// Compare reports a non-nil error when password does not match hash.
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
