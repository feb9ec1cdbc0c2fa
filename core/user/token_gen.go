package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// token purposes; a token minted for one purpose never verifies for another.
const (
	purposePasswordReset = "password-reset"
	purposeMagicLink     = "magic-link"
)

var (
	salt    = []byte("quizera.backend.core.user.token_gen")
	nowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

func (svc *Service) tokenTimeout(purpose string) time.Duration {
	if purpose == purposeMagicLink {
		return svc.conf.Server.MagicLinkTimeoutDelta
	}
	return svc.conf.Server.PasswordResetTimeoutDelta
}

// makeToken generates a signed one-time token for a given User and purpose.
// The token is invalidated by any change to the user's password hash or last login.
func (svc *Service) makeToken(usr User, purpose string) (string, error) {
	return svc.makeTokenWithTimestamp(usr, purpose, numSecondsSince2001(nowFunc()))
}

// verifyToken checks that a one-time token for a given User and purpose is valid.
func (svc *Service) verifyToken(usr User, token, purpose string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := svc.makeTokenWithTimestamp(usr, purpose, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numSecondsSince2001(nowFunc()) - ts) > int(svc.tokenTimeout(purpose)/time.Second) {
		return errTokenExpired
	}
	return nil
}

func (svc *Service) makeTokenWithTimestamp(usr User, purpose string, ts int) (string, error) {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := svc.sign(hashValue(usr, purpose, ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numSecondsSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Seconds()))
}

func (svc *Service) sign(val []byte) (string, error) {
	key := sha256.Sum256(append(salt, svc.conf.SecretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func hashValue(usr User, purpose string, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(purpose)
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
