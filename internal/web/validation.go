package web

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/JonMunkholm/tablegate/internal/core"
)

// CreateTableRequest is the body of POST /create-table.
type CreateTableRequest struct {
	TableName string            `json:"tableName" validate:"required"`
	Columns   []core.ColumnSpec `json:"columns" validate:"required,dive"`
}

// newValidator returns a validator reporting JSON field names with English messages.
func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	uni := ut.New(en.New(), en.New())
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, trans)

	return v, trans
}

// translateValidation flattens validator errors into one sorted message.
func translateValidation(err error, trans ut.Translator) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, m := range verrs.Translate(trans) {
		msgs = append(msgs, m)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// topLevelMissing reports whether validation failed on the request's own
// fields rather than inside a column spec.
func topLevelMissing(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Namespace() == "CreateTableRequest.tableName" || fe.Namespace() == "CreateTableRequest.columns" {
			return true
		}
	}
	return false
}
