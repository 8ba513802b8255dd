package toa

import "errors"

var (
	ErrEmptyDestination = errors.New("group address has no members")
	ErrNilMessage       = errors.New("nil message")
	ErrNoDestination    = errors.New("message has no destination")
	ErrNotStarted       = errors.New("protocol not started")
	ErrNoLocalAddress   = errors.New("local address not assigned")
	ErrInvalidConfig    = errors.New("invalid config")
)
