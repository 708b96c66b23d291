package domain

import "errors"

// Sentinel errors for the application. Callers wrap them with context using
// fmt.Errorf("...: %w", err) and the transport boundaries match with errors.Is.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidCounterpart = errors.New("invalid counterpart")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("resource already exists")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrAggregationFailed  = errors.New("aggregation failed")
	ErrInternal           = errors.New("internal server error")
)
