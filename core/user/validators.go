package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/avsnarang/scholarise/core"
)

const (
	commonPasswordsPath = "assets/common-passwords.txt.gz"

	allRolesTag        = "allroles"
	usernameOrEmailTag = "username_or_email"

	pwdMinLen        = 8
	pwdMaxSimilarity = .7
	pwdMinLenTag     = "pwdminlen"
	pwdNoSpaceTag    = "pwdnospace"
	pwdNotAllNumTag  = "pwdnotallnum"
	pwdComplexityTag = "pwdcplx"
	pwdAttrSimTag    = "pwdtoosim"
	pwdNoCommonTag   = "pwdnocommon"
)

// commonPasswords holds lowercased entries of the bundled list.
var commonPasswords map[string]struct{}

// passwordCandidate is a password with the account attributes it must not resemble.
type passwordCandidate struct {
	pwd   string
	attrs []string
}

// passwordRules are checked in order; the first failing rule is reported.
var passwordRules = []struct {
	tag  string
	text string
	ok   func(c passwordCandidate) bool
}{
	{pwdMinLenTag, fmt.Sprintf("password must contain at least %d characters", pwdMinLen), func(c passwordCandidate) bool {
		return len([]rune(c.pwd)) >= pwdMinLen
	}},
	{pwdNoSpaceTag, "password must not contain whitespace", func(c passwordCandidate) bool {
		return strings.IndexFunc(c.pwd, unicode.IsSpace) < 0
	}},
	{pwdNotAllNumTag, "password cannot be entirely numeric", func(c passwordCandidate) bool {
		return strings.IndexFunc(c.pwd, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
	}},
	{pwdComplexityTag, "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character", hasCharClasses},
	{pwdAttrSimTag, "password cannot be similar to user attributes", func(c passwordCandidate) bool {
		for _, attr := range c.attrs {
			if similarity(c.pwd, attr) >= pwdMaxSimilarity {
				return false
			}
		}
		return true
	}},
	{pwdNoCommonTag, "password is too common", func(c passwordCandidate) bool {
		_, common := commonPasswords[strings.ToLower(c.pwd)]
		return !common
	}},
}

func hasCharClasses(c passwordCandidate) bool {
	var upper, lower, digit, special bool
	for _, r := range c.pwd {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}

func similarity(pwd, attr string) float64 {
	if attr == "" {
		return 0
	}
	a := strings.Split(strings.ToLower(pwd), "")
	b := strings.Split(strings.ToLower(attr), "")
	return difflib.NewMatcher(a, b).QuickRatio()
}

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, func(fl validator.FieldLevel) bool {
		roles, ok := fl.Field().Interface().([]string)
		if !ok {
			return false
		}
		for _, role := range roles {
			if !core.StringInSlice(role, AllRoles) {
				return false
			}
		}
		return true
	})
	core.RegisterCustomTranslation(validate, translator, allRolesTag, "invalid roles")

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, "one of username or email is required")
	for _, rule := range passwordRules {
		core.RegisterCustomTranslation(validate, translator, rule.tag, rule.text)
	}
}

// LoadCommonPasswords reads the gzipped list of common passwords, one per line.
func LoadCommonPasswords(fsys fs.FS, logger core.Logger) {
	pwds, err := readCommonPasswords(fsys)
	if err != nil {
		logger.Error("loading common passwords: "+err.Error(), err)
		return
	}
	commonPasswords = pwds
}

func readCommonPasswords(fsys fs.FS) (map[string]struct{}, error) {
	file, err := fsys.Open(commonPasswordsPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	pwds := make(map[string]struct{}, 1024)
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
			pwds[pwd] = struct{}{}
		}
	}
	return pwds, scanner.Err()
}

func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if usr.Username == "" && usr.Email == "" {
			sl.ReportError(usr.Username, "username", "Username", usernameOrEmailTag, "")
			sl.ReportError(usr.Email, "email", "Email", usernameOrEmailTag, "")
		}
		checkPassword(sl, passwordCandidate{usr.Password, []string{usr.Name, usr.Username, usr.Email}})
	case UpdateUser:
		if usr.Password != "" {
			checkPassword(sl, passwordCandidate{usr.Password, []string{usr.Name, usr.Username, usr.Email}})
		}
	case ResetUserPassword:
		if usr.Password != "" {
			checkPassword(sl, passwordCandidate{pwd: usr.Password})
		}
	}
}

func checkPassword(sl validator.StructLevel, c passwordCandidate) {
	for _, rule := range passwordRules {
		if !rule.ok(c) {
			sl.ReportError(c.pwd, "password", "Password", rule.tag, "")
			return
		}
	}
}
