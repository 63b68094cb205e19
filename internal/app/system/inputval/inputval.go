// Package inputval validates request payloads with go-playground/validator
// and turns failures into Spanish messages keyed by the field's label.
package inputval

import (
	"net/mail"
	"net/url"
	"reflect"
	"strings"

	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"
)

var (
	validate *validator.Validate
	trans    ut.Translator
)

// custom tags
const (
	notBlankTag    = "notblank"
	httpURLTag     = "httpurl"
	courseStateTag = "coursestate"
	levelTag       = "courselevel"
	userTypeTag    = "usertype"
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_es := es.New()
	uni := ut.New(_es, _es)
	trans, _ = uni.GetTranslator("es")
	_ = es_translations.RegisterDefaultTranslations(validate, trans)

	// Prefer the label tag, then the JSON name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if l := fld.Tag.Get("label"); l != "" {
			return l
		}
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		if s, ok := fl.Field().Interface().(string); ok {
			return strings.TrimSpace(s) != ""
		}
		return false
	})
	_ = validate.RegisterValidation(httpURLTag, stringRule(IsValidHTTPURL))
	_ = validate.RegisterValidation(courseStateTag, stringRule(func(s string) bool {
		return models.IsValidCourseState(normalize.CourseState(s))
	}))
	_ = validate.RegisterValidation(levelTag, stringRule(func(s string) bool {
		return models.IsValidLevel(normalize.Level(s))
	}))
	_ = validate.RegisterValidation(userTypeTag, stringRule(func(s string) bool {
		return models.IsValidUserType(normalize.UserType(s))
	}))

	custom := map[string]string{
		notBlankTag:    "{0} no puede estar vacío.",
		httpURLTag:     "{0} debe ser una URL http o https.",
		courseStateTag: "{0} debe ser Activo, Inactivo o Borrador.",
		levelTag:       "{0} debe ser Principiante, Intermedio o Avanzado.",
		userTypeTag:    "{0} debe ser estudiante, maestro o administrador.",
	}
	for tag, text := range custom {
		registerText(tag, text)
	}
}

func stringRule(ok func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, isStr := fl.Field().Interface().(string)
		return isStr && ok(s)
	}
}

func registerText(tag, text string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, text, true) },
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, err := ut.T(tag, fe.Field())
			if err != nil {
				return fe.Field() + ": " + tag
			}
			return msg
		})
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result collects the failures of one Validate call.
type Result struct {
	Errors []FieldError `json:"errors"`
}

// HasErrors reports whether any rule failed.
func (r *Result) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if !r.HasErrors() {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validate runs the validate tags of v.
func Validate(v any) *Result {
	r := &Result{}
	err := validate.Struct(v)
	if err == nil {
		return r
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		r.Errors = append(r.Errors, FieldError{Message: err.Error()})
		return r
	}
	for _, fe := range errs {
		r.Errors = append(r.Errors, FieldError{Field: fe.Field(), Message: fe.Translate(trans)})
	}
	return r
}

// IsValidEmail reports whether s is a bare address (no display name) with a
// well-formed local part and domain.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	local, domain := s[:at], s[at+1:]
	return dotAtomOK(local) && dotAtomOK(domain)
}

func dotAtomOK(s string) bool {
	return s != "" &&
		!strings.HasPrefix(s, ".") &&
		!strings.HasSuffix(s, ".") &&
		!strings.Contains(s, "..")
}

// IsValidHTTPURL reports whether s is an absolute http(s) URL with a host.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
