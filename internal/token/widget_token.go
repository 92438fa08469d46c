package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWidgetTokenTTL keeps a widget token valid long enough for a
// visitor to leave the page and come back to the same conversation.
const DefaultWidgetTokenTTL = 7 * 24 * time.Hour

// WidgetClaims bind a widget token to one customer and one session.
// A token signed for session A can never post into session B.
type WidgetClaims struct {
	CustomerID string `json:"customerId"`
	SessionID  string `json:"sessionId"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

// WidgetSigner issues and verifies HMAC-SHA256 widget tokens.
type WidgetSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewWidgetSigner(secret []byte) *WidgetSigner {
	return &WidgetSigner{
		secret: secret,
		ttl:    DefaultWidgetTokenTTL,
		now:    time.Now,
	}
}

func (s *WidgetSigner) WithTTL(ttl time.Duration) *WidgetSigner {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func (s *WidgetSigner) WithClock(now func() time.Time) *WidgetSigner {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *WidgetSigner) Sign(customerID, sessionID string) (string, error) {
	if customerID == "" || sessionID == "" {
		return "", errors.New("customer and session ids are required")
	}

	issued := s.now().UTC()
	claims := WidgetClaims{
		CustomerID: customerID,
		SessionID:  sessionID,
		IssuedAt:   issued.Unix(),
		ExpiresAt:  issued.Add(s.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, s.secret)
	if _, err := mac.Write(payload); err != nil {
		return "", err
	}
	signature := mac.Sum(nil)

	payloadPart := base64.RawURLEncoding.EncodeToString(payload)
	sigPart := base64.RawURLEncoding.EncodeToString(signature)

	return fmt.Sprintf("%s.%s", payloadPart, sigPart), nil
}

func (s *WidgetSigner) Verify(token string) (WidgetClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return WidgetClaims{}, errors.New("empty token")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return WidgetClaims{}, errors.New("invalid token format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return WidgetClaims{}, fmt.Errorf("decode payload: %w", err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return WidgetClaims{}, fmt.Errorf("decode signature: %w", err)
	}

	mac := hmac.New(sha256.New, s.secret)
	if _, err := mac.Write(payload); err != nil {
		return WidgetClaims{}, fmt.Errorf("sign payload: %w", err)
	}

	if !hmac.Equal(sig, mac.Sum(nil)) {
		return WidgetClaims{}, errors.New("signature mismatch")
	}

	var claims WidgetClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return WidgetClaims{}, fmt.Errorf("unmarshal claims: %w", err)
	}

	if claims.CustomerID == "" || claims.SessionID == "" {
		return WidgetClaims{}, errors.New("token missing identifiers")
	}

	if claims.ExpiresAt != 0 && s.now().Unix() > claims.ExpiresAt {
		return WidgetClaims{}, errors.New("token expired")
	}

	return claims, nil
}
