// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package warden

import (
	"crypto/rsa"
	"encoding/json"
	"os"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/services/config"
)

// GrantSigningData holds the key material for approval grant signing.
type GrantSigningData struct {
	Duration   time.Duration
	Method     jwt.SigningMethod
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Key        []byte
}

// NewGrantSigningData builds the grant signing data from the token signing
// configuration. A configuration without a signing method disables grants
// and yields nil signing data.
func NewGrantSigningData(c *config.TokenSigning) (*GrantSigningData, error) {
	if c.Method == "" {
		return nil, nil
	}

	sd := &GrantSigningData{Duration: c.Duration}
	switch c.Method {
	case "hmac":
		sd.Method = jwt.SigningMethodHS256
		if c.Key == "" {
			return nil, errors.Errorf("empty token signing key for hmac method")
		}
		sd.Key = []byte(c.Key)
	case "rsa":
		if c.PrivateKeyPath == "" {
			return nil, errors.Errorf("token signing private key file for rsa method not defined")
		}
		if c.PublicKeyPath == "" {
			return nil, errors.Errorf("token signing public key file for rsa method not defined")
		}

		sd.Method = jwt.SigningMethodRS256
		privateKeyData, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading token signing private key")
		}
		sd.PrivateKey, err = jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing token signing private key")
		}
		publicKeyData, err := os.ReadFile(c.PublicKeyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading token signing public key")
		}
		sd.PublicKey, err = jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing token signing public key")
		}
	default:
		return nil, errors.Errorf("unknown token signing method: %q", c.Method)
	}

	return sd, nil
}

// GenerateGrant signs an approval grant covering the provided lock tokens.
func GenerateGrant(sd *GrantSigningData, tokens []string) (string, error) {
	if sd == nil {
		return "", errors.Errorf("token signing isn't configured")
	}

	tokensj, err := json.Marshal(tokens)
	if err != nil {
		return "", errors.WithStack(err)
	}

	token := jwt.NewWithClaims(sd.Method, jwt.MapClaims{
		"exp":   time.Now().Add(sd.Duration).Unix(),
		"locks": string(tokensj),
	})

	var key any
	switch sd.Method {
	case jwt.SigningMethodRS256:
		key = sd.PrivateKey
	case jwt.SigningMethodHS256:
		key = sd.Key
	default:
		return "", errors.Errorf("unsupported signing method %q", sd.Method.Alg())
	}

	signed, err := token.SignedString(key)
	return signed, errors.WithStack(err)
}

// VerifyGrant verifies an approval grant and returns the lock tokens it
// covers. An expired or tampered grant is rejected.
func VerifyGrant(sd *GrantSigningData, grant string) ([]string, error) {
	if sd == nil {
		return nil, errors.Errorf("token signing isn't configured")
	}

	token, err := jwt.Parse(grant, func(token *jwt.Token) (any, error) {
		if token.Method != sd.Method {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		switch sd.Method {
		case jwt.SigningMethodRS256:
			return sd.PublicKey, nil
		case jwt.SigningMethodHS256:
			return sd.Key, nil
		}
		return nil, errors.Errorf("unsupported signing method %q", sd.Method.Alg())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid approval grant")
	}
	if !token.Valid {
		return nil, errors.Errorf("invalid approval grant")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Errorf("invalid approval grant: malformed claims")
	}
	locksClaim, ok := claims["locks"].(string)
	if !ok {
		return nil, errors.Errorf("invalid approval grant: no locks claim")
	}

	var tokens []string
	if err := json.Unmarshal([]byte(locksClaim), &tokens); err != nil {
		return nil, errors.Wrapf(err, "invalid approval grant: malformed locks claim")
	}

	return tokens, nil
}
