package transaction

import "errors"

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidState       = errors.New("invalid transaction state")
	ErrAlreadySettled     = errors.New("transaction already settled")
	ErrStaleState         = errors.New("transaction state changed concurrently")
	ErrReferenceConflict  = errors.New("could not allocate a unique reference")
	ErrDuplicateReference = errors.New("transaction reference already exists")
)
