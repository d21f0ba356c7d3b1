package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avsnarang/scholarise/core"
)

func TestResetTokens(t *testing.T) {
	maxAge := 3 * 24 * time.Hour
	tokens := NewResetTokens("secret", maxAge)

	now := time.Now()
	usr := User{
		ID:        "d3b0e3a2-8a0a-4d43-9d7e-6d0b1c7e2f11",
		SchoolID:  "1f6b0e5c-2b7d-4c1a-9b1e-3c2d4e5f6a7b",
		Name:      "T",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken := tokens.Make(usr)

	core.NowFunc = func() time.Time { return time.Now().Add(-maxAge - time.Hour) }
	expiredToken := tokens.Make(usr)
	core.NowFunc = time.Now

	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)
	deactivated := usr
	deactivated.IsActive = false
	moved := usr
	moved.SchoolID = "other"

	tests := []struct {
		name    string
		tokens  ResetTokens
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", tokens: tokens, usr: usr, wantErr: errInvalidToken},
		{name: "no separator", tokens: tokens, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "bad stamp", tokens: tokens, usr: usr, token: "??.sig", wantErr: errInvalidToken},
		{name: "forged signature", tokens: tokens, usr: usr, token: "zz1.c2lnbmF0dXJl", wantErr: errInvalidToken},
		{name: "other secret key", tokens: NewResetTokens("other", maxAge), usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "user logged in since", tokens: tokens, usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "user deactivated", tokens: tokens, usr: deactivated, token: validToken, wantErr: errInvalidToken},
		{name: "user moved school", tokens: tokens, usr: moved, token: validToken, wantErr: errInvalidToken},
		{name: "expired token", tokens: tokens, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", tokens: tokens, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.tokens.Verify(tt.usr, tt.token))
		})
	}

	t.Run("password change voids the token", func(t *testing.T) {
		changed := usr
		_ = changed.SetPassword("new")
		assert.Equal(t, errInvalidToken, tokens.Verify(changed, validToken))
	})
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "d3b0e3a2-8a0a-4d43-9d7e-6d0b1c7e2f11"}
	id, err := decodeUID(EncodeUID(usr))
	assert.NoError(t, err)
	assert.Equal(t, usr.ID, id)
}
