package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

func testClaims() Claims {
	return Claims{
		UserID:         7,
		OpenID:         "open-7",
		Username:       "alice",
		Role:           storage.RoleAdmin,
		SessionVersion: 2,
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec, err := NewTokenCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)

	token, err := codec.Issue(testClaims(), time.Hour)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(clock.t.Add(time.Hour)))
	got.ExpiresAt = time.Time{}
	assert.Equal(t, testClaims(), got)
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec, err := NewTokenCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)

	token, err := codec.Issue(testClaims(), time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueDefaultTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec, err := NewTokenCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)

	token, err := codec.Issue(testClaims(), 0)
	require.NoError(t, err)
	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(clock.t.Add(DefaultTTL)))
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer, err := NewTokenCodec(testSecret)
	require.NoError(t, err)
	other, err := NewTokenCodec([]byte("a-completely-different-secret-value"))
	require.NoError(t, err)

	token, err := issuer.Issue(testClaims(), time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMalformedAndForeignTokens(t *testing.T) {
	codec, err := NewTokenCodec(testSecret)
	require.NoError(t, err)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	sign := func(t *testing.T, method jwt.SigningMethod, claims jwt.Claims, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	cases := map[string]string{
		"garbage": "not.a.token",
		"empty":   "",
		"missing identity": sign(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"userId": 1, "exp": exp.Unix(),
		}, testSecret),
		"userId as string": sign(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"userId": "1", "openId": "o", "username": "u", "role": "user", "exp": exp.Unix(),
		}, testSecret),
		"no expiry": sign(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"userId": 1, "openId": "o", "username": "u", "role": "user",
		}, testSecret),
		"HS512": sign(t, jwt.SigningMethodHS512, jwt.MapClaims{
			"userId": 1, "openId": "o", "username": "u", "role": "user", "exp": exp.Unix(),
		}, testSecret),
		"alg none": sign(t, jwt.SigningMethodNone, jwt.MapClaims{
			"userId": 1, "openId": "o", "username": "u", "role": "user", "exp": exp.Unix(),
		}, jwt.UnsafeAllowNoneSignatureType),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyTokenWithoutSessionVersion(t *testing.T) {
	codec, err := NewTokenCodec(testSecret)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": 3, "openId": "o-3", "username": "carol", "role": "user",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UserID)
	assert.Zero(t, got.SessionVersion)
}

func TestNewTokenCodecCopiesSecret(t *testing.T) {
	secret := []byte("mutable-secret-value-for-the-test")
	codec, err := NewTokenCodec(secret)
	require.NoError(t, err)
	assert.Equal(t, "mutable-secret-value-for-the-test", string(secret))

	token, err := codec.Issue(testClaims(), time.Hour)
	require.NoError(t, err)
	for i := range secret {
		secret[i] = 0
	}
	_, err = codec.Verify(token)
	assert.NoError(t, err)
}

func TestNewTokenCodecEmptySecret(t *testing.T) {
	_, err := NewTokenCodec(nil)
	assert.Error(t, err)
}
