package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultAgentTokenTTL = 8 * time.Hour

// Agent is the identity carried inside a console access token.
type Agent struct {
	ID    string
	Email string
}

// CreateAgentToken signs a short-lived HS256 access token for the
// support console.
func CreateAgentToken(agent Agent, secret []byte, validUntil int64) (string, error) {
	if agent.ID == "" {
		return "", errors.New("agent id is required")
	}

	if validUntil == 0 {
		validUntil = time.Now().Add(DefaultAgentTokenTTL).Unix()
	}

	claims := jwt.MapClaims{
		"id":    agent.ID,
		"email": agent.Email,
		"exp":   validUntil,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAgentToken validates a console access token and returns the
// agent identity embedded in it.
func ParseAgentToken(tokenString string, secret []byte) (Agent, error) {
	if len(tokenString) == 0 {
		return Agent{}, errors.New("token string is empty")
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Agent{}, fmt.Errorf("unauthorized: %v", err)
	}
	if !parsed.Valid {
		return Agent{}, errors.New("token is not valid - unauthorized")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Agent{}, errors.New("claims of unauthorized type")
	}

	id, _ := claims["id"].(string)
	email, _ := claims["email"].(string)
	if id == "" {
		return Agent{}, errors.New("token missing agent id")
	}

	return Agent{ID: id, Email: email}, nil
}
