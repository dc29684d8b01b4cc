package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindStorage         ErrorKind = "storage_error"
	KindCaption         ErrorKind = "caption_error"
	KindEmbedding       ErrorKind = "embedding_error"
	KindIndexDimension  ErrorKind = "index_dimension_error"
	KindIndex           ErrorKind = "index_error"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindCatalog         ErrorKind = "catalog_error"
	KindUnknown         ErrorKind = "unknown"
)

var (
	ErrStorage         = errors.New("storage error")
	ErrCaption         = errors.New("caption error")
	ErrEmbedding       = errors.New("embedding error")
	ErrIndexDimension  = errors.New("index dimension error")
	ErrIndex           = errors.New("index error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCatalog         = errors.New("catalog error")
)

var kindSentinels = map[ErrorKind]error{
	KindStorage:         ErrStorage,
	KindCaption:         ErrCaption,
	KindEmbedding:       ErrEmbedding,
	KindIndexDimension:  ErrIndexDimension,
	KindIndex:           ErrIndex,
	KindInvalidArgument: ErrInvalidArgument,
	KindCatalog:         ErrCatalog,
}

// Error is the typed failure every adapter and pipeline returns.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "domain error"
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches the sentinel for e.Kind, so errors.Is(err, ErrCaption) works through wrapping.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newError(kind ErrorKind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func StorageError(op string, cause error, format string, args ...any) error {
	return newError(KindStorage, op, cause, format, args...)
}

func CaptionError(op string, cause error, format string, args ...any) error {
	return newError(KindCaption, op, cause, format, args...)
}

func EmbeddingError(op string, cause error, format string, args ...any) error {
	return newError(KindEmbedding, op, cause, format, args...)
}

func IndexDimensionError(op string, want, got int) error {
	return newError(KindIndexDimension, op, nil, "vector dimension mismatch: expected=%d got=%d", want, got)
}

func IndexError(op string, cause error, format string, args ...any) error {
	return newError(KindIndex, op, cause, format, args...)
}

func InvalidArgument(op string, format string, args ...any) error {
	return newError(KindInvalidArgument, op, nil, format, args...)
}

func CatalogError(op string, cause error, format string, args ...any) error {
	return newError(KindCatalog, op, cause, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
