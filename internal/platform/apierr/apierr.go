package apierr

import (
	"errors"
	"fmt"
	"net/http"

	types "github.com/yungbote/imagerag/internal/domain"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From maps err to an API error. An *Error already in the chain wins; domain kinds
// map to their status; anything else is a 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	kind := types.KindOf(err)
	switch kind {
	case types.KindInvalidArgument:
		return New(http.StatusBadRequest, string(kind), err)
	case types.KindIndexDimension:
		return New(http.StatusUnprocessableEntity, string(kind), err)
	case types.KindStorage, types.KindCaption, types.KindEmbedding, types.KindIndex:
		return New(http.StatusBadGateway, string(kind), err)
	case types.KindCatalog:
		return New(http.StatusInternalServerError, string(kind), err)
	default:
		return New(http.StatusInternalServerError, "internal_error", err)
	}
}
