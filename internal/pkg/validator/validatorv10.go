package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/lo"
)

var pdfSignature = []byte("%PDF")

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// V10Validator implements Validator using go-playground/validator v10.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError is a field-to-message map returned when validation fails.
//
// Keys are field names in snake_case to match typical JSON conventions.
type V10ValidationError map[string]string

// Error implements the error interface.
func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}

	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Values returns the field error map.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// NewV10Validator constructs a V10Validator with English translations and custom rules.
func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}

	if err := registerRules(validate, enTrans); err != nil {
		return nil, err
	}

	return &V10Validator{
		validate:   validate,
		translator: enTrans,
	}, nil
}

// Validate validates a struct and returns a V10ValidationError on failure.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	return V10ValidationError(lo.SliceToMap(fieldErrs, func(fe validator.FieldError) (string, string) {
		return lo.SnakeCase(fe.Field()), fe.Translate(v.translator)
	}))
}

// rule is a custom validation tag with its English message. The message
// receives the field name as {0}.
type rule struct {
	tag     string
	message string
	check   validator.Func
}

var customRules = []rule{
	{tag: "pdf", message: "{0} must be a PDF document", check: isPDF},
}

// isPDF accepts a file name ending in .pdf or a payload carrying the PDF
// signature.
func isPDF(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch {
	case field.Kind() == reflect.String:
		return strings.EqualFold(path.Ext(field.String()), ".pdf")
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		return bytes.HasPrefix(field.Bytes(), pdfSignature)
	default:
		return false
	}
}

func registerRules(validate *validator.Validate, trans ut.Translator) error {
	for _, r := range customRules {
		if err := validate.RegisterValidation(r.tag, r.check); err != nil {
			return err
		}

		addMessage := func(ut ut.Translator) error {
			return ut.Add(r.tag, r.message, false)
		}
		if err := validate.RegisterTranslation(r.tag, trans, addMessage, translateField); err != nil {
			return err
		}
	}
	return nil
}

func translateField(trans ut.Translator, fe validator.FieldError) string {
	msg, err := trans.T(fe.Tag(), fe.Field())
	if err != nil {
		slog.Warn("warning: error translating", "tag", fe.Tag(), "field", fe.Field(), "error", err)
		return fe.Error()
	}
	return msg
}
