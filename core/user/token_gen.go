package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID returns the URL-safe form of the user ID carried in reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// ResetTokens issues and checks password reset tokens.
// A token reads "<issued unix minute, base36>.<mac>" and only holds while the account is unchanged:
// a new password, a login, a school move or a deactivation all void it.
type ResetTokens struct {
	key    []byte
	maxAge time.Duration
}

func NewResetTokens(secretKey string, maxAge time.Duration) ResetTokens {
	key := sha256.Sum256([]byte("scholarise/password-reset/" + secretKey))
	return ResetTokens{key: key[:], maxAge: maxAge}
}

// Make issues a token for usr, stamped with the current time.
func (rt ResetTokens) Make(usr User) string {
	return rt.make(usr, core.NowFunc().Unix()/60)
}

// Verify returns errInvalidToken for forged or stale tokens and errTokenExpired past maxAge.
func (rt ResetTokens) Verify(usr User, token string) error {
	stamp, _, ok := strings.Cut(token, ".")
	if !ok || stamp == "" {
		return errInvalidToken
	}
	issued, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil || issued < 0 {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(rt.make(usr, issued)), []byte(token)) {
		return errInvalidToken
	}
	age := time.Duration(core.NowFunc().Unix()/60-issued) * time.Minute
	if age > rt.maxAge {
		return errTokenExpired
	}
	return nil
}

func (rt ResetTokens) make(usr User, minute int64) string {
	mac := hmac.New(sha256.New, rt.key)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(minute))
	mac.Write(buf[:])
	for _, field := range []string{usr.ID, usr.SchoolID, strconv.FormatBool(usr.IsActive)} {
		mac.Write([]byte(field))
		mac.Write([]byte{0})
	}
	mac.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		mac.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339Nano)))
	}
	return strconv.FormatInt(minute, 36) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
