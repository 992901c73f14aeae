package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidTTL       = errors.New("redlease: ttl must be positive")
	ErrAlreadyEnrolled  = errors.New("redlease: lease already enrolled")
	ErrNoBus            = errors.New("redlease: no notification bus configured")
	ErrUnknownTaskType  = errors.New("redlease: unknown task type")
	ErrDuplicateHandler = errors.New("redlease: duplicate task type handler")
)
