package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind: вид сущности не зарегистрирован.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrIdentifierPrefix: идентификатор не начинается с префикса своего вида.
	ErrIdentifierPrefix = errors.New("identifier prefix mismatch")
	// ErrIdentifierSuffix: числовой суффикс идентификатора не разбирается.
	ErrIdentifierSuffix = errors.New("identifier suffix is not a positive number")
	// ErrNotFound возвращается, если сущность не найдена в репозитории.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists: сущность с таким идентификатором уже сохранена.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrLineItemNotFound: позиция не принадлежит заказу.
	ErrLineItemNotFound = errors.New("line item not found")
	// ErrLineItemExists: позиция с таким ID уже есть в заказе.
	ErrLineItemExists = errors.New("line item already exists")
	// ErrForeignLineItem: позиция привязана к другому заказу.
	ErrForeignLineItem = errors.New("line item belongs to another order")
	// ErrTotalMismatch: сохранённая сумма заказа расходится с суммой позиций.
	ErrTotalMismatch = errors.New("order total does not match line items sum")
	// ErrCountMismatch: счётчик позиций расходится с их количеством.
	ErrCountMismatch = errors.New("order item count does not match line items")
	// ErrMoneyOverflow: сумма не помещается в int64 минимальных единиц.
	ErrMoneyOverflow = errors.New("money amount overflows")
	// ErrQueryNotConstructible: источник данных не умеет строить запрос по такому полю.
	ErrQueryNotConstructible = errors.New("query not constructible")
	// ErrDataSourceUnavailable: источник данных не смог выполнить запрос.
	ErrDataSourceUnavailable = errors.New("data source unavailable")
)

// InvalidIdentifierError: явный идентификатор не разбирается для своего вида.
type InvalidIdentifierError struct {
	Kind  Kind
	Value string
	Err   error
}

func (e *InvalidIdentifierError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid %s identifier %q", e.Kind, e.Value)
	}
	return fmt.Sprintf("invalid %s identifier %q: %v", e.Kind, e.Value, e.Err)
}

func (e *InvalidIdentifierError) Unwrap() error {
	return e.Err
}

// ValidationError: поле нарушает доменное правило. Значение не подменяется дефолтом.
type ValidationError struct {
	Entity string
	Field  string
	Rule   string
	Value  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Entity != "" {
		b.WriteString(" for ")
		b.WriteString(e.Entity)
	}
	fmt.Fprintf(&b, ": field %s violates %q", e.Field, e.Rule)
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	return b.String()
}

// ReportQueryError: коллаборатор не смог построить или выполнить запрос отчёта.
type ReportQueryError struct {
	Report string
	Term   string
	Err    error
}

func (e *ReportQueryError) Error() string {
	return fmt.Sprintf("report %s (term %q): %v", e.Report, e.Term, e.Err)
}

func (e *ReportQueryError) Unwrap() error {
	return e.Err
}

// IsInvalidIdentifier проверяет, является ли ошибка ошибкой разбора идентификатора.
func IsInvalidIdentifier(err error) bool {
	var target *InvalidIdentifierError
	return errors.As(err, &target)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsReportQuery проверяет, является ли ошибка ошибкой отчёта.
func IsReportQuery(err error) bool {
	var target *ReportQueryError
	return errors.As(err, &target)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
