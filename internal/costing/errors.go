package costing

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindInvalidInput  Kind = "INVALID_INPUT"
	KindNotFound      Kind = "NOT_FOUND"
	KindUnavailable   Kind = "UNAVAILABLE"
	KindCycleDetected Kind = "CYCLE_DETECTED"
	KindAmbiguousBOM  Kind = "AMBIGUOUS_BOM"
	KindInternal      Kind = "INTERNAL"
)

// Repository 实现返回的哨兵错误
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("data store unavailable")
)

// Error 成本计算错误
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf 返回错误分类，非 *Error 视为 INTERNAL
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断错误分类
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify 将仓储层错误映射为 *Error，已是 *Error 时原样返回
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return wrapError(KindNotFound, err, "%s", op)
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindUnavailable, err, "%s", op)
	default:
		return wrapError(KindInternal, err, "%s", op)
	}
}
