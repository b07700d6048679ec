package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CodeError carries a stable numeric code plus a client-safe message.
// Detail is for server-side logs only and must never reach a client event.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// WithDetail returns a copy carrying extra server-side detail.
func (e *CodeError) WithDetail(detail string) *CodeError {
	r := e.clone()
	if r.Detail == "" {
		r.Detail = detail
	} else {
		r.Detail += ", " + detail
	}
	return r
}

// WrapMsg is WithDetail with formatting.
func (e *CodeError) WrapMsg(format string, args ...any) *CodeError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// Is matches by code so errors.Is(err, ErrThrottled) works across WithDetail copies.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// ===== taxonomy =====

const (
	CodeInternal    = 1000
	CodeValidation  = 1400
	CodeAuth        = 1401
	CodeConnLimit   = 1403
	CodeThrottled   = 1429
	CodePersistence = 1500
	CodeGeneration  = 1502
)

var (
	ErrInternal    = New(CodeInternal, "internal error")
	ErrValidation  = New(CodeValidation, "invalid request")
	ErrAuth        = New(CodeAuth, "authentication failed")
	ErrConnLimit   = New(CodeConnLimit, "connection limit reached")
	ErrThrottled   = New(CodeThrottled, "rate limit exceeded")
	ErrPersistence = New(CodePersistence, "storage unavailable")
	ErrGeneration  = New(CodeGeneration, "generation failed")
)

// AsCode extracts the CodeError from err, or falls back to ErrInternal.
// The returned value is safe to expose through Code and Msg only.
func AsCode(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternal.WithDetail(err.Error())
}
