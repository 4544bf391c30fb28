package loan

import "errors"

var (
	ErrNotFound       = errors.New("loan not found")
	ErrNotActive      = errors.New("loan is not active")
	ErrInvalidAmount  = errors.New("payment amount must be greater than zero")
	ErrAlreadySettled = errors.New("loan already settled")
	ErrInvalidInput   = errors.New("invalid loan input")
)
