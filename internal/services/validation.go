package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Renal37/storefront/internal/models"
	"github.com/go-playground/validator/v10"
)

// newValidator возвращает валидатор, который называет поля по их json-тегам.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// toValidationError превращает первую ошибку валидатора в ValidationError с путём поля.
func toValidationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("ошибка валидации: %w", err)
	}

	fe := fieldErrors[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	return &models.ValidationError{Field: field, Message: describeRule(fe)}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "email":
		return "некорректный email"
	case "oneof":
		return "допустимые значения: " + fe.Param()
	case "min":
		return "минимум " + fe.Param()
	case "max":
		return "максимум " + fe.Param()
	default:
		return "не прошло проверку " + fe.Tag()
	}
}
