package web

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDClaim = "userId"
	roleClaim   = "role"
	adminRole   = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID int64
	Admin  bool
}

// TokenValidator verifies HS256 bearer tokens issued by the account service.
type TokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *TokenValidator) Identify(tokenString string) (Identity, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, ok := parseUserID(claims[userIDClaim])
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, userIDClaim)
	}
	role, _ := claims[roleClaim].(string)
	return Identity{UserID: userID, Admin: role == adminRole}, nil
}

func parseUserID(claim any) (int64, bool) {
	switch id := claim.(type) {
	case float64:
		if id >= 1 && id == math.Trunc(id) {
			return int64(id), true
		}
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
