package tests

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	echoapi "github.com/quizera/backend/apps/api/echo"
	"github.com/quizera/backend/core/user"
	emailsvc "github.com/quizera/backend/services/email"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	cpy := createCompany(t, "Test Co", "test-co")
	student := createUser(t, cpy, "Hero", "heroic", "hero@test.cd", "LolC@t123", []string{user.RoleStudent}, true)
	createUser(t, cpy, "N Dog", "ndogzz", "ndog@test.cd", "LolC@t123", []string{user.RoleStudent}, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndogzz", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login with username", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "LolC@t123"}),
		},
		{
			name: "login with email", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)

	cpy := createCompany(t, "Test Co", "test-co")
	student := createUser(t, cpy, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)
	naughty := createUser(t, cpy, "N Dog", "ndogzz", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	// a token whose original issuance is older than the refresh threshold
	now := time.Now()
	unrefreshableClaims := echoapi.GetUserClaims(student, conf, now.Add(-2*conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims, conf)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)

	cpyA := createCompany(t, "Co A", "co-a")
	cpyB := createCompany(t, "Co B", "co-b")
	admin := createUser(t, cpyA, "Admin", "theadmin", "admin@a.cd", "", user.AdminRoles, true)
	student := createUser(t, cpyA, "Hero", "heroic", "hero@a.cd", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)

	newUsr := func(name, uname, email string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			CompanyID:       cpyB.ID, // must be ignored; accounts join the caller's company
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        "LolC@t123",
			PasswordConfirm: "LolC@t123",
			Roles:           roles,
		})
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "weak password", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "New User", Email: "new@a.cd", Password: "lol", PasswordConfirm: "lol",
			}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "duplicate email", token: adminToken, wantCode: http.StatusBadRequest,
			body:     newUsr("Copy Cat", "copycat", student.Email),
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "cannot grant roles above own", token: getToken(t, createUser(t, cpyA, "Teach", "teachr", "teach@a.cd", "", []string{user.RoleTeacher, user.RoleAdmin}, true)),
			body: newUsr("Sneaky", "sneaky", "sneaky@a.cd", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "created in own company", token: adminToken, wantCode: http.StatusCreated,
			body: newUsr("New User", "newuser", "new@a.cd", user.RoleStudent),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if usr.CompanyID != cpyA.ID {
					t.Errorf("failed! CompanyID = %s; want %s", usr.CompanyID, cpyA.ID)
				}
				if !usr.IsActive {
					t.Error("failed! new user should be active")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	cpyA := createCompany(t, "Co A", "co-a")
	cpyB := createCompany(t, "Co B", "co-b")

	adminA := createUser(t, cpyA, "Admin A", "admin_a", "admin@a.cd", "", user.AdminRoles, true)
	teacherA := createUser(t, cpyA, "Teacher A", "teach_a", "teach@a.cd", "", []string{user.RoleTeacher}, true)
	studentA := createUser(t, cpyA, "Student A", "stud_a", "stud@a.cd", "", []string{user.RoleStudent}, true)
	naughtyA := createUser(t, cpyA, "N Dog", "ndog_a", "ndog@a.cd", "", []string{user.RoleStudent}, false)

	// company B users must never leak into company A's listings
	createUser(t, cpyB, "Admin B", "admin_b", "admin@b.cd", "", user.AdminRoles, true)
	createUser(t, cpyB, "Student B", "stud_b", "stud@b.cd", "", []string{user.RoleStudent}, true)

	adminToken := getToken(t, adminA)
	empty := marchallList(t, []interface{}{}...)
	bPtr := func(b bool) *bool { return &b }

	path := func(search string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", "false")
			if *isActive {
				v.Set("is_active", "true")
			}
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, studentA), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all is company-scoped", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, adminA, teacherA, studentA, naughtyA),
		},
		{name: "search (unknown)", path: path("lol", nil), token: adminToken, wantData: empty},
		{name: "search matches other company only", path: path("admin@b.cd", nil), token: adminToken, wantData: empty},
		{name: "search=teach", path: path("teach", nil), token: adminToken, wantData: marchallList(t, teacherA)},
		{name: "role=student:", path: path("", nil, user.RoleStudent), token: adminToken, wantData: marchallList(t, studentA, naughtyA)},
		{name: "role=admin:", path: path("", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, adminA)},
		{name: "is_active=false", path: path("", bPtr(false)), token: adminToken, wantData: marchallList(t, naughtyA)},
		{
			name: "role & is_active", path: path("", bPtr(true), user.RoleStudent), token: adminToken,
			wantData: marchallList(t, studentA),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)

	cpyA := createCompany(t, "Co A", "co-a")
	cpyB := createCompany(t, "Co B", "co-b")
	adminA := createUser(t, cpyA, "Admin A", "admin_a", "admin@a.cd", "", user.AdminRoles, true)
	studentA := createUser(t, cpyA, "Student A", "stud_a", "stud@a.cd", "", []string{user.RoleStudent}, true)
	otherA := createUser(t, cpyA, "Other A", "other_a", "other@a.cd", "", []string{user.RoleStudent}, true)
	studentB := createUser(t, cpyB, "Student B", "stud_b", "stud@b.cd", "", []string{user.RoleStudent}, true)

	adminToken := getToken(t, adminA)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodGet, path: "/v1/users/" + studentA.ID,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "user can retrieve self", method: http.MethodGet, path: "/v1/users/" + studentA.ID,
			token: getToken(t, studentA), wantCode: http.StatusOK, wantData: marchallObj(t, studentA),
		},
		{
			name: "user cannot retrieve others", method: http.MethodGet, path: "/v1/users/" + otherA.ID,
			token: getToken(t, studentA), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "admin can retrieve member", method: http.MethodGet, path: "/v1/users/" + studentA.ID,
			token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, studentA),
		},
		{
			name: "admin cannot reach other company's user", method: http.MethodGet, path: "/v1/users/" + studentB.ID,
			token: adminToken, wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "non-admin cannot change roles", method: http.MethodPut, path: "/v1/users/" + studentA.ID,
			token: getToken(t, studentA), body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "non-admin can change own name", method: http.MethodPut, path: "/v1/users/" + studentA.ID,
			token: getToken(t, studentA), body: marchallObj(t, user.UpdateUser{Name: "Student Prime"}),
			wantCode: http.StatusOK,
		},
		{
			name: "admin cannot delete self", method: http.MethodDelete, path: "/v1/users/" + adminA.ID,
			token: adminToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin deletes member", method: http.MethodDelete, path: "/v1/users/" + otherA.ID,
			token: adminToken, wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	if _, err := usrRepo.GetUserByID(otherA.ID); err != user.ErrNotFound {
		t.Errorf("GetUserByID() error = %v, want %v", err, user.ErrNotFound)
	}
	if usr, err := usrRepo.GetUserByID(studentA.ID); err != nil || usr.Name != "Student Prime" {
		t.Errorf("failed to update name; usr = %+v, err = %v", usr, err)
	}
}

func Test_userApi_passwordResetFlow(t *testing.T) {
	app := setup(t)

	cpy := createCompany(t, "Test Co", "test-co")
	student := createUser(t, cpy, "Hero", "heroic", "hero@test.cd", "LolC@t123", []string{user.RoleStudent}, true)

	emailsvc.SentMessages = nil // reset

	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	// request: unknown email gets the same response, but no email goes out
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.EmailRequest{Email: "lol@test.cd"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)
	if len(emailsvc.SentMessages) > 0 {
		t.Fatalf("failed! len(SentMessages) = %d; want 0", len(emailsvc.SentMessages))
	}

	// request: known email
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.EmailRequest{Email: student.Email}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	if to := emailsvc.SentMessages[0].To[0]; to != (mail.Address{Name: student.Name, Address: student.Email}) {
		t.Errorf("failed! To = %v", to)
	}

	// dig the uid & token out of the emailed link
	link, err := url.Parse(lastSentEmailPath(t))
	if err != nil {
		t.Fatalf("url.Parse() failed: %v", err)
	}
	uid, token := link.Query().Get("uid"), link.Query().Get("token")
	if uid == "" || token == "" {
		t.Fatalf("failed! link %q misses uid or token", link)
	}

	// confirm: tampered token
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: uid, Password: "Upd@ted1Lol", PasswordConfirm: "Upd@ted1Lol"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid token"})}, rec)

	// confirm: valid token
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "Upd@ted1Lol", PasswordConfirm: "Upd@ted1Lol"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
	}, rec)

	// the new password logs in
	req, rec = newRequest(http.MethodPost, "/v1/users/login",
		marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "Upd@ted1Lol"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	// the consumed token no longer verifies (password hash changed)
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "An0ther@Pwd", PasswordConfirm: "An0ther@Pwd"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid token"})}, rec)
}

func Test_userApi_magicLoginFlow(t *testing.T) {
	app := setup(t)

	cpy := createCompany(t, "Test Co", "test-co")
	student := createUser(t, cpy, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)

	emailsvc.SentMessages = nil // reset

	// request the link
	req, rec := newRequest(http.MethodPost, "/v1/users/magic-link", marchallObj(t, echoapi.EmailRequest{Email: student.Email}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with a link to log in."}),
	}, rec)
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}

	link, err := url.Parse(lastSentEmailPath(t))
	if err != nil {
		t.Fatalf("url.Parse() failed: %v", err)
	}
	uid, token := link.Query().Get("uid"), link.Query().Get("token")

	// exchange the link for a JWT
	req, rec = newRequest(http.MethodPost, "/v1/users/magic-login", marchallObj(t, user.MagicLogin{Token: token, UID: uid}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var respData echoapi.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if respData.Token == "" {
		t.Fatal("failed! empty token")
	}

	// the JWT belongs to the student
	claims := new(echoapi.Claims)
	if _, err := jwt.ParseWithClaims(respData.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(conf.SecretKey), nil
	}); err != nil {
		t.Fatalf("jwt.ParseWithClaims() failed: %v", err)
	}
	if claims.Subject != student.ID {
		t.Errorf("failed! Subject = %s; want %s", claims.Subject, student.ID)
	}

	// a magic-link token cannot confirm a password reset (purpose scoped)
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "Upd@ted1Lol", PasswordConfirm: "Upd@ted1Lol"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid token"})}, rec)
}
