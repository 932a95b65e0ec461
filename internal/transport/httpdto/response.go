package httpdto

import (
	situation_errors "situation-room/pkg/errors"
)

type Response[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
	Args    []string `json:"args,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewFaultResponse renders err for clients. Faults keep their code and
// positional arguments; anything else is reported under fallbackCode.
func NewFaultResponse(err error, fallbackCode string) Response[any] {
	if f, ok := situation_errors.AsFault(err); ok {
		return Response[any]{
			Success: false,
			Error:   f.Message(),
			Code:    f.Code,
			Args:    f.StringArgs(),
		}
	}
	return NewErrorResponse(err.Error(), fallbackCode)
}
