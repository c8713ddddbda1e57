package errors

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Code standardizes failure semantics across components.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeValidation          Code = "validation"
	CodeExternalProvider    Code = "external_provider"
	CodeConflict            Code = "conflict"
	CodePartialBatchFailure Code = "partial_batch_failure"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal"
)

// Error is the canonical coded error.
type Error struct {
	Code    Code
	Op      string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code Code, op, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// WithDetails returns e with details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e == nil || len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func NotFound(op, format string, args ...any) error {
	return NewError(CodeNotFound, op, fmt.Sprintf(format, args...), nil)
}

func Validation(op, format string, args ...any) error {
	return NewError(CodeValidation, op, fmt.Sprintf(format, args...), nil)
}

func Conflict(op string, cause error) error {
	return NewError(CodeConflict, op, causeMessage(cause), cause)
}

func ExternalProvider(op string, cause error) error {
	return NewError(CodeExternalProvider, op, causeMessage(cause), cause)
}

func Timeout(op string, cause error) error {
	return NewError(CodeTimeout, op, causeMessage(cause), cause)
}

func PartialBatchFailure(op string, failed, total int) error {
	return NewError(CodePartialBatchFailure, op, fmt.Sprintf("%d of %d items failed", failed, total), nil).
		WithDetails(map[string]any{"failed": failed, "total": total})
}

// IsCode reports whether err (or anything it wraps) carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the outermost code, or "" when err is uncoded.
func CodeOf(err error) Code {
	var coded *Error
	if !As(err, &coded) || coded == nil {
		return ""
	}
	return coded.Code
}

// MapDBError translates driver/ORM failures into coded errors.
func MapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	if Is(err, gorm.ErrRecordNotFound) {
		return NewError(CodeNotFound, op, err.Error(), err)
	}
	if IsUniqueViolation(err) {
		return NewError(CodeConflict, op, err.Error(), err)
	}
	return NewError(CodeInternal, op, err.Error(), err)
}

// IsUniqueViolation detects unique-constraint failures across postgres and sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if As(err, &pgErr) && strings.TrimSpace(pgErr.Code) == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key")
}

// Payload is the JSON shape persisted in errorJson columns.
type Payload struct {
	Code    Code           `json:"code"`
	Op      string         `json:"op,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToPayload renders any error to its persisted shape.
func ToPayload(err error) *Payload {
	if err == nil {
		return nil
	}
	var coded *Error
	if As(err, &coded) && coded != nil {
		msg := coded.Message
		if msg == "" {
			msg = err.Error()
		}
		return &Payload{Code: coded.Code, Op: coded.Op, Message: msg, Details: coded.Details}
	}
	return &Payload{Code: CodeInternal, Message: err.Error()}
}

// JSON marshals ToPayload(err); nil for a nil error.
func JSON(err error) []byte {
	p := ToPayload(err)
	if p == nil {
		return nil
	}
	b, mErr := json.Marshal(p)
	if mErr != nil {
		b, _ = json.Marshal(Payload{Code: CodeInternal, Message: err.Error()})
	}
	return b
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
