package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/quizera/backend/apps/api/echo"
	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/company"
	"github.com/quizera/backend/core/quiz"
	"github.com/quizera/backend/core/realtime"
	"github.com/quizera/backend/core/user"
	appfs "github.com/quizera/backend/fs"
	emailsvc "github.com/quizera/backend/services/email"
	dummydb "github.com/quizera/backend/storage/database/dummy"
)

var (
	conf *core.Config

	usrRepo  user.Repository
	cpyRepo  company.Repository
	quizRepo quiz.Repository

	usrSvc  *user.Service
	cpySvc  *company.Service
	quizSvc *quiz.Service
	hub     *realtime.Hub

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) echoapi.Server {
	t.Helper()

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	cpyRepo = dummydb.NewCompanyRepository(db)
	quizRepo = dummydb.NewQuizRepository(db)

	conf = core.NewConfig()
	conf.Debug = false
	conf.TestMode = true

	logger := nopLogger{}

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, logger, conf)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	bus := realtime.NewMemoryBus()
	hub = realtime.NewHub(bus, logger)

	usrSvc = user.NewService(usrRepo, mailSvc, conf, validate)
	cpySvc = company.NewService(cpyRepo, usrSvc, validate)
	quizSvc = quiz.NewService(quizRepo, bus, logger, validate)

	// set up server
	return echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			CompanySvc:     cpySvc,
			QuizSvc:        quizSvc,
			Hub:            hub,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func createCompany(t *testing.T, name, slug string) company.Company {
	t.Helper()

	now := time.Now().UTC()
	cpy, err := cpyRepo.CreateCompany(company.Company{
		Name:      name,
		Slug:      slug,
		Settings:  company.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createCompany() failed: %v", err)
	}
	return cpy
}

func createUser(
	t *testing.T,
	cpy company.Company,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		CompanyID: cpy.ID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := usrRepo.CreateUser(usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createModule(t *testing.T, cpy company.Company, title string, position int) quiz.Module {
	t.Helper()

	now := time.Now().UTC()
	mod, err := quizRepo.CreateModule(quiz.Module{
		CompanyID: cpy.ID,
		Title:     title,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createModule() failed: %v", err)
	}
	return mod
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(usr, conf)
	token, err := echoapi.GenerateToken(claims, conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// lastSentEmailPath digs the templated link path out of the most recently
// sent email.
func lastSentEmailPath(t *testing.T) string {
	t.Helper()

	if len(emailsvc.SentMessages) == 0 {
		t.Fatal("no emails were sent")
	}
	msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
	data, ok := msg.TemplateData.(struct {
		User user.User
		Path string
	})
	if !ok {
		t.Fatalf("unexpected template data: %T", msg.TemplateData)
	}
	return data.Path
}
