package services

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/skillpath/backend/libs/apperr"
)

// passwordRegex lists the character classes a password must contain
var passwordRegex = []*regexp.Regexp{
	regexp.MustCompile(`[a-z]`),
	regexp.MustCompile(`[A-Z]`),
	regexp.MustCompile(`[0-9]`),
}

// newValidator builds the request validator with the custom "password" and "httpurl" rules registered
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "password", validatePassword)
	mustRegister(v, "httpurl", validateHTTPURL)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %q validation: %v", tag, err))
	}
}

func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	for _, regex := range passwordRegex {
		if !regex.MatchString(password) {
			return false
		}
	}
	return true
}

// validateHTTPURL accepts absolute http(s) URLs with a host
func validateHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validateStruct runs the validator and reports the first failing field as ValidationFailed
func validateStruct(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Wrap(apperr.ValidationFailed, err, "invalid request")
	}

	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "gt":
		msg = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "email":
		msg = "invalid email format"
	case "url":
		msg = fmt.Sprintf("%s must be a valid URL", field)
	case "httpurl":
		msg = fmt.Sprintf("%s must be an absolute http or https URL", field)
	case "password":
		msg = "password must contain at least one uppercase letter, one lowercase letter and one number"
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return apperr.Wrap(apperr.ValidationFailed, err, msg)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
