package user

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/quizera/backend/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim     = .7
	pwdAttrSimTag = "pwdtoosim"
	pwdAttrSimTxt = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
)

// InitValidators registers the user-domain validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	validate.RegisterStructValidation(updateUserStructValidation, UpdateUser{})
	validate.RegisterStructValidation(resetPasswordStructValidation, ResetUserPassword{})

	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimTxt)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// allRolesValidation checks that all given roles are known.
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		known := append([]string(nil), AllRoles...)
		sort.Strings(known)
		for _, role := range roles {
			i := sort.SearchStrings(known, role)
			if i >= len(known) || known[i] != role {
				return false
			}
		}
		return true
	}
	return false
}

func newUserStructValidation(sl validator.StructLevel) {
	nu := sl.Current().Interface().(NewUser)
	validatePassword(sl, nu.Password, nu.Name, nu.Username, nu.Email)
}

func updateUserStructValidation(sl validator.StructLevel) {
	uu := sl.Current().Interface().(UpdateUser)
	if uu.Password != "" {
		validatePassword(sl, uu.Password, uu.Name, uu.Username, uu.Email)
	}
}

func resetPasswordStructValidation(sl validator.StructLevel) {
	rp := sl.Current().Interface().(ResetUserPassword)
	validatePassword(sl, rp.Password)
}

// validatePassword applies the password policy; attrs are user attributes the
// password may not resemble.
func validatePassword(sl validator.StructLevel, pwd string, attrs ...string) {
	if pwd == "" {
		return
	}

	if len(pwd) < pwdMinLen {
		sl.ReportError(pwd, "password", "Password", pwdMinLenTag, "")
	}
	if strings.IndexFunc(pwd, unicode.IsSpace) >= 0 {
		sl.ReportError(pwd, "password", "Password", pwdNoSpaceTag, "")
	}
	if isAllNumeric(pwd) {
		sl.ReportError(pwd, "password", "Password", pwdNotAllNumTag, "")
	}

	lowerPwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		matcher := difflib.NewMatcher(strings.Split(lowerPwd, ""), strings.Split(strings.ToLower(attr), ""))
		if matcher.QuickRatio() > pwdMaxSim {
			sl.ReportError(pwd, "password", "Password", pwdAttrSimTag, "")
			break
		}
	}

	if i := sort.SearchStrings(commonPasswords, lowerPwd); i < len(commonPasswords) && commonPasswords[i] == lowerPwd {
		sl.ReportError(pwd, "password", "Password", pwdNoCommonTag, "")
	}
}

func isAllNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// commonPasswords must stay sorted; see validatePassword.
var commonPasswords = []string{
	"1q2w3e4r", "1qaz2wsx", "aa123456", "abc123456", "access123",
	"adminadmin", "baseball1", "basketball", "changeme1", "charlie1",
	"computer1", "dragon123", "football1", "iloveyou1", "jennifer1",
	"letmein12", "liverpool", "master123", "michael12", "monkey123",
	"p4ssw0rd", "passw0rd", "password", "password1", "password12",
	"password123", "princess1", "q1w2e3r4", "qwerty123", "qwertyuiop",
	"secret123", "shadow123", "starwars1", "sunshine1", "superman1",
	"trustno1", "welcome12", "welcome123", "whatever1", "zaq12wsx",
}
