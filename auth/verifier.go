package auth

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TonniChopper/Project-Manager/domain"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims is the access-token payload issued by the auth service.
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens and produces the Principal
// bound to a connection. Token issuance lives in the auth service; this
// side only checks.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *Verifier) Verify(token string) (domain.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, v.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, ErrTokenExpired
		}
		return domain.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.TokenType != "access" {
		return domain.Principal{}, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return domain.Principal{}, ErrMissingSubject
	}

	return domain.Principal{
		UserID:   UserID(claims.Subject),
		Username: claims.Subject,
	}, nil
}

func (v *Verifier) key(t *jwt.Token) (any, error) {
	return v.secret, nil
}

// UserID derives a stable numeric id from the username. Tokens carry
// only the subject; the id space matches what the REST side derives
// until user ids are minted by the database.
func UserID(username string) int64 {
	h := fnv.New64a()
	h.Write([]byte(username))
	return int64(h.Sum64() % 1000000)
}
