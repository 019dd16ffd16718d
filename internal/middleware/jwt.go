package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeySource returns the RSA verification key for a key id.
type KeySource interface {
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWTVerifier validates Cognito access or id tokens locally against the
// user pool's JWKS. The identity is the sub claim.
type JWTVerifier struct {
	keys        KeySource
	issuer      string
	appClientID string
}

func NewJWTVerifier(keys KeySource, issuer, appClientID string) *JWTVerifier {
	return &JWTVerifier{keys: keys, issuer: issuer, appClientID: appClientID}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenStr string) (string, error) {
	var keyErr error
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)

	if errors.Is(keyErr, ErrKeySetUnavailable) {
		return "", keyErr
	}
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}

	if !v.clientMatches(claims) {
		return "", fmt.Errorf("%w: token not issued for this client", ErrUnauthenticated)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub claim not found", ErrUnauthenticated)
	}

	return sub, nil
}

// clientMatches accepts id tokens (aud) and access tokens (client_id).
func (v *JWTVerifier) clientMatches(claims jwt.MapClaims) bool {
	if v.appClientID == "" {
		return true
	}
	if clientID, ok := claims["client_id"].(string); ok {
		return clientID == v.appClientID
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == v.appClientID {
			return true
		}
	}
	return false
}

// CognitoJWKSURL returns the JWKS URL for the given Cognito User Pool.
func CognitoJWKSURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, userPoolID)
}

// CognitoIssuer returns the expected issuer for the given Cognito User Pool.
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

var _ TokenVerifier = (*JWTVerifier)(nil)
