package user

import (
	"testing"
	"time"

	"github.com/quizera/backend/core"
)

func newTokenTestService() *Service {
	return &Service{
		conf: &core.Config{
			SecretKey: []byte("f3q0-njr)wxu$+82=pk&vhsm5(q!d)#*"),
			Server: core.ServerConfig{
				PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
				MagicLinkTimeoutDelta:     15 * time.Minute,
			},
		},
	}
}

func newTokenTestUser(t *testing.T) User {
	t.Helper()

	usr := User{
		ID:        "3e8cdafc-84d5-4b25-8d4f-547e495eb816",
		CompanyID: "c1",
		Name:      "Hero",
		Username:  "heroic",
		Email:     "hero@test.cd",
	}
	if err := usr.SetPassword("LolC@t123"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	return usr
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "3e8cdafc-84d5-4b25-8d4f-547e495eb816"}

	uid := EncodeUID(usr)
	id, err := decodeUID(uid)
	if err != nil {
		t.Fatalf("decodeUID() failed: %v", err)
	}
	if id != usr.ID {
		t.Errorf("decodeUID() = %s; want %s", id, usr.ID)
	}

	if _, err = decodeUID("not base64!!"); err == nil {
		t.Error("decodeUID() should fail on malformed input")
	}
}

func Test_service_verifyToken(t *testing.T) {
	svc := newTokenTestService()
	usr := newTokenTestUser(t)

	validToken, err := svc.makeToken(usr, purposePasswordReset)
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}
	magicToken, err := svc.makeToken(usr, purposeMagicLink)
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}

	// mint tokens in the past
	expiredFor := func(timeout time.Duration, purpose string) string {
		nowFunc = func() time.Time { return time.Now().Add(-(timeout + 24*time.Hour)) }
		defer func() { nowFunc = time.Now }()

		token, err := svc.makeToken(usr, purpose)
		if err != nil {
			t.Fatalf("makeToken() failed: %v", err)
		}
		return token
	}
	expiredReset := expiredFor(svc.conf.Server.PasswordResetTimeoutDelta, purposePasswordReset)
	expiredMagic := expiredFor(svc.conf.Server.MagicLinkTimeoutDelta, purposeMagicLink)

	// the same user after a password change or a login
	changedPwd := usr
	if err = changedPwd.SetPassword("An0ther@Pwd"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	loggedIn := usr
	loggedIn.LastLogin = time.Now().UTC()

	tests := []struct {
		name    string
		usr     User
		token   string
		purpose string
		wantErr error
	}{
		{name: "empty token", usr: usr, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "no separator", usr: usr, token: "lol", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "bad timestamp encoding", usr: usr, token: "l0l!-sig", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "tampered signature", usr: usr, token: validToken + "lol", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "wrong purpose: reset token on magic link", usr: usr, token: validToken, purpose: purposeMagicLink, wantErr: errInvalidToken},
		{name: "wrong purpose: magic token on reset", usr: usr, token: magicToken, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "wrong user", usr: User{ID: "other", PasswordHash: usr.PasswordHash}, token: validToken, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "password changed since", usr: changedPwd, token: validToken, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "logged in since", usr: loggedIn, token: validToken, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "expired reset token", usr: usr, token: expiredReset, purpose: purposePasswordReset, wantErr: errTokenExpired},
		{name: "expired magic token", usr: usr, token: expiredMagic, purpose: purposeMagicLink, wantErr: errTokenExpired},
		{name: "valid reset token", usr: usr, token: validToken, purpose: purposePasswordReset},
		{name: "valid magic token", usr: usr, token: magicToken, purpose: purposeMagicLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.verifyToken(tt.usr, tt.token, tt.purpose); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_service_tokenTimeout(t *testing.T) {
	svc := newTokenTestService()

	if got := svc.tokenTimeout(purposeMagicLink); got != svc.conf.Server.MagicLinkTimeoutDelta {
		t.Errorf("tokenTimeout() = %v; want %v", got, svc.conf.Server.MagicLinkTimeoutDelta)
	}
	if got := svc.tokenTimeout(purposePasswordReset); got != svc.conf.Server.PasswordResetTimeoutDelta {
		t.Errorf("tokenTimeout() = %v; want %v", got, svc.conf.Server.PasswordResetTimeoutDelta)
	}
}

// a magic-link token minted just inside its window still verifies while the
// reset timeout would also have allowed it; the shorter window must win.
func Test_service_magicLinkWindow(t *testing.T) {
	svc := newTokenTestService()
	usr := newTokenTestUser(t)

	nowFunc = func() time.Time { return time.Now().Add(-30 * time.Minute) }
	token, err := svc.makeToken(usr, purposeMagicLink)
	nowFunc = time.Now
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}

	if err := svc.verifyToken(usr, token, purposeMagicLink); err != errTokenExpired {
		t.Errorf("verifyToken() error = %v, wantErr %v", err, errTokenExpired)
	}
}
