package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout: формат дат рождения и дат заказов (dd/MM/yyyy).
const DateLayout = "02/01/2006"

// RequiredEmailDomain: почта клиентов, импортёров и поставщиков обязана быть на этом домене.
const RequiredEmailDomain = "@gmail.com"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// dmy: строгая дата dd/MM/yyyy без «переноса» 31/02 на март.
		_ = v.RegisterValidation("dmy", func(fl validator.FieldLevel) bool {
			return IsValidDate(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// IsValidDate проверяет строку на формат dd/MM/yyyy. Пробелы по краям не допускаются:
// дата сохраняется в том виде, в каком пришла.
func IsValidDate(raw string) bool {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return false
	}
	return t.Format(DateLayout) == raw
}

// validateStruct прогоняет struct-теги и переводит первую ошибку в ValidationError.
func validateStruct(entity string, s any) error {
	err := fieldValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return &ValidationError{
			Entity: entity,
			Field:  fe.Field(),
			Rule:   rule,
			Value:  fmt.Sprint(fe.Value()),
		}
	}
	return fmt.Errorf("validate %s: %w", entity, err)
}

// validateVar проверяет одно значение по тегу; используется сеттерами.
func validateVar(entity, field string, value any, tag string) error {
	if err := fieldValidator().Var(value, tag); err != nil {
		return &ValidationError{Entity: entity, Field: field, Rule: tag, Value: fmt.Sprint(value)}
	}
	return nil
}
