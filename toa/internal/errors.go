package internal

import "errors"

var (
	ErrUnknownMessage     = errors.New("unknown message id")
	ErrDuplicateMessage   = errors.New("message id already registered")
	ErrAlreadyFinal       = errors.New("message already has its final sequence number")
	ErrUnknownDestination = errors.New("sender is not a destination of the message")
	ErrQueueClosed        = errors.New("deliver queue closed")
)
