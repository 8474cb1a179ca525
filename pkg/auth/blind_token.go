package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const blindTokenLifetime = time.Hour

// BlindTokenClaims tie an auth request to the session key exchange. Zinc
// signs over the client's X25519 public value and a one-time blinding
// nonce, so the egress can later check the pairing without learning the
// account identity behind it.
type BlindTokenClaims struct {
	PublicValue   string `json:"public_value"`
	BlindingNonce string `json:"blinding_nonce"`
	jwt.RegisteredClaims
}

// blindToken mints the token attached to blind-signed auth requests. The
// nonce is fresh per token; replaying a token re-binds nothing.
func (c *Client) blindToken(publicValue string) (string, error) {
	key, err := c.blindSigningKey()
	if err != nil {
		return "", err
	}

	var nonce [16]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate blinding nonce: %w", err)
	}

	now := time.Now()
	claims := &BlindTokenClaims{
		PublicValue:   publicValue,
		BlindingNonce: base64.StdEncoding.EncodeToString(nonce[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "krypton",
			Audience:  jwt.ClaimStrings{"zinc"},
			Subject:   c.cfg.ServiceType,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(blindTokenLifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
}

// blindSigningKey returns the client's ephemeral P-256 signing key,
// generating it on first use. The key never leaves the process and dies
// with the client.
func (c *Client) blindSigningKey() (*ecdsa.PrivateKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signingKey == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate blind signing key: %w", err)
		}
		c.signingKey = key
	}
	return c.signingKey, nil
}

// ParseBlindToken verifies a token against this client's signing key.
func (c *Client) ParseBlindToken(tokenString string) (*BlindTokenClaims, error) {
	key, err := c.blindSigningKey()
	if err != nil {
		return nil, err
	}
	var claims BlindTokenClaims
	if _, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return key.Public(), nil
	}, jwt.WithAudience("zinc"), jwt.WithIssuer("krypton")); err != nil {
		return nil, fmt.Errorf("parse blind token: %w", err)
	}
	return &claims, nil
}
