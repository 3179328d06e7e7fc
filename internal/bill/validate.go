package bill

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	frtranslations "github.com/go-playground/validator/v10/translations/fr"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields under their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("billdate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})

	translator, _ = ut.New(frLocale, frLocale).GetTranslator("fr")
	if err := frtranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	registerTranslation("billdate", "{0} doit être une date au format AAAA-MM-JJ")
}

func registerTranslation(tag, text string) {
	err := validate.RegisterTranslation(tag, translator,
		func(t ut.Translator) error {
			return t.Add(tag, text, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
	if err != nil {
		panic(err)
	}
}

// ValidationError lists the invalid fields of a bill with a French message for each
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return "invalid bill: " + strings.Join(msgs, "; ")
}

// Validate checks a bill about to be submitted
func (b *Bill) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating bill: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(translator)
	}
	return &ValidationError{Fields: fields}
}

// validateEmail checks that an upload names its owner. The address format is the session's business.
func validateEmail(email string) error {
	err := validate.Var(email, "required")
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating email: %w", err)
	}
	return &ValidationError{Fields: map[string]string{"email": "email" + verrs[0].Translate(translator)}}
}
