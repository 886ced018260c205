// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DealerSubject is the fixed subject claim for dealer session tokens. There
// is exactly one dealer per session; players never authenticate (they only
// touch the workbook).
const DealerSubject = "dealer"

// Keys holds the ed25519 pair used to sign and verify session tokens. A
// fresh pair is generated per process; tokens do not survive a restart,
// which is fine for a single-sitting party game.
type Keys struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	expire  time.Duration
}

// NewKeys generates a runtime key pair. expire <= 0 disables expiry.
func NewKeys(expire time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Keys{private: priv, public: pub, expire: expire}, nil
}

// CreateToken signs a dealer session JWT.
func (k *Keys) CreateToken() (string, error) {
	claims := jwt.MapClaims{"sub": DealerSubject}
	if k.expire > 0 {
		claims["exp"] = time.Now().Add(k.expire).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.private)
}

// Authenticate verifies a token string and checks the dealer subject.
func (k *Keys) Authenticate(tokenString string) error {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.public, nil
	})
	if err != nil {
		return fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid jwt claims")
	}
	if sub, _ := claims["sub"].(string); sub != DealerSubject {
		return fmt.Errorf("unexpected subject")
	}
	return nil
}
