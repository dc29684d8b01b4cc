package qdrant

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// OperationErrorCode classifies a failed call against the Qdrant REST API.
type OperationErrorCode string

const (
	OperationErrorValidation        OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed      OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed      OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed   OperationErrorCode = "transport_failed"
	OperationErrorTimeout           OperationErrorCode = "timeout"
	OperationErrorQueryFailed       OperationErrorCode = "query_failed"
)

// OperationError carries the index operation (upsert, query, bootstrap_verify, ...) and,
// for HTTP failures, the response status.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant: operation failed"
	}
	var b strings.Builder
	b.WriteString("qdrant ")
	b.WriteString(e.Operation)
	b.WriteString(": ")
	b.WriteString(string(e.Code))
	if e.StatusCode != 0 {
		b.WriteString(" status=")
		b.WriteString(strconv.Itoa(e.StatusCode))
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Unreachable reports whether the server never produced an answer, or answered that it
// is not serving.
func (e *OperationError) Unreachable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case OperationErrorTransportFailed, OperationErrorTimeout:
		return true
	case OperationErrorQueryFailed:
		return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusBadGateway
	}
	return false
}

// IsCode reports whether err wraps an OperationError with the given code.
func IsCode(err error, code OperationErrorCode) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == code
}

// IsUnreachable reports whether err wraps an OperationError for an index that could not
// be reached.
func IsUnreachable(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Unreachable()
}

func isStatus(err error, status int) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == status
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}

func statusErr(op string, status int, msg string) error {
	return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: status, Message: msg}
}
