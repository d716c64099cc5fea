package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ninechan-dev/ninechan/shared/domain"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

type JwtService interface {
	NewToken(id domain.Identity) (string, error)
	DecodeToken(jwtStr string) (*jwt.Token, error)
	TTL() time.Duration
}

type Jwt struct {
	secretKey string
	ttl       time.Duration
}

func New(secretKey string, ttl time.Duration) JwtService {
	return &Jwt{secretKey, ttl}
}

func (j *Jwt) TTL() time.Duration {
	return j.ttl
}

func (j *Jwt) NewToken(id domain.Identity) (string, error) {
	claims := jwt.MapClaims{}
	claims["cid"] = id.ClientId
	claims["name"] = id.Username
	claims["avatar"] = id.AvatarURL
	claims["exp"] = time.Now().Add(j.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		logger.Log.Error("can't sign identity token", "error", err)
		return "", errors.New("Can't create token")
	}

	return tokenString, nil
}

func (j *Jwt) DecodeToken(jwtStr string) (*jwt.Token, error) {
	token, err := jwt.Parse(jwtStr, func(token *jwt.Token) (interface{}, error) {
		// Verify signing algorithm
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, &internal_errors.ErrorWithStatusCode{Message: fmt.Sprintf("Unexpected signing method: %v", token.Header["alg"]), StatusCode: http.StatusUnauthorized}
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		logger.Log.Debug("identity token rejected", "error", err)
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid token signature", StatusCode: http.StatusUnauthorized}
	}

	if !token.Valid {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid identity token", StatusCode: http.StatusUnauthorized}
	}

	return token, nil
}

// IdentityFromToken reads the identity claims written by NewToken.
func IdentityFromToken(token *jwt.Token) (domain.Identity, bool) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, false
	}
	cid, ok := claims["cid"].(string)
	if !ok || cid == "" {
		return domain.Identity{}, false
	}
	name, ok := claims["name"].(string)
	if !ok {
		return domain.Identity{}, false
	}
	avatar, _ := claims["avatar"].(string)
	return domain.Identity{ClientId: cid, Username: name, AvatarURL: avatar}, true
}
