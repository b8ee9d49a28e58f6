// Package forms declares the input forms of the portal and validates them
// with English messages keyed by JSON field name.
package forms

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"noorstitching.org/internal/attendance"
	"noorstitching.org/internal/backend"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	notBlankTag         = "notblank"
	attendanceStatusTag = "attendance_status"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterValidation(attendanceStatusTag, validStatus)
	registerCustomTranslations(notBlankTag, attendanceStatusTag)
}

// A noop register func is enough; the default translations are already in.
func registerCustomTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "this field cannot be blank"
	case attendanceStatusTag:
		return "must be one of present, absent or leave"
	}
	return ""
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func validStatus(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := attendance.ParseStatus(s)
	return err == nil
}

// ValidationError lists the invalid fields of a form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Check validates a form struct.
func Check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := out.Fields[name]; seen {
			continue
		}
		out.Fields[name] = fe.Translate(translator)
	}
	return out
}

// Login is the credentials form.
type Login struct {
	Username string `json:"username" validate:"notblank,max=150"`
	Password string `json:"password" validate:"required,max=128"`
	Next     string `json:"next,omitempty" validate:"omitempty,startswith=/"`
}

// PasswordReset asks for a reset link.
type PasswordReset struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetConfirm sets a new password from a reset link.
type PasswordResetConfirm struct {
	UID             string `json:"uid" validate:"notblank"`
	Token           string `json:"token" validate:"notblank"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// AttendanceSelect picks a batch and a day.
type AttendanceSelect struct {
	Batch int64  `json:"batch" validate:"required,gt=0"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
}

// Day parses Date.
func (f AttendanceSelect) Day() (time.Time, error) {
	return time.Parse(backend.DateLayout, f.Date)
}

// AttendanceStatus toggles one student.
type AttendanceStatus struct {
	Student int64  `json:"student" validate:"required,gt=0"`
	Status  string `json:"status" validate:"required,attendance_status"`
}

// ThemePreference stores the display theme.
type ThemePreference struct {
	Theme string `json:"theme" validate:"required,oneof=light dark system"`
}
