package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func testClaims(purpose string) *Claims {
	now := time.Now()
	return &Claims{
		Email:          "ada@example.com",
		SessionPurpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			Subject:   "user_1",
			Audience:  []string{"entitlements"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestVerifier_VerifyAccessToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewVerifier(&key.PublicKey, "identity", "entitlements")

	t.Run("valid access token", func(t *testing.T) {
		claims, err := v.VerifyAccessToken(signToken(t, key, testClaims("access")))
		require.NoError(t, err)
		assert.Equal(t, "user_1", claims.UserID())
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		_, err := v.VerifyAccessToken(signToken(t, key, testClaims("refresh")))
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := testClaims("access")
		c.Audience = []string{"other"}
		_, err := v.VerifyAccessToken(signToken(t, key, c))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		c := testClaims("access")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.VerifyAccessToken(signToken(t, key, c))
		assert.Error(t, err)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = v.VerifyAccessToken(signToken(t, other, testClaims("access")))
		assert.Error(t, err)
	})
}

func TestParseRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub, err := ParseRSAPublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
	pub, err = ParseRSAPublicKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = ParseRSAPublicKey([]byte("not pem"))
	assert.Error(t, err)
}
