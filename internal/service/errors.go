package service

import "errors"

// ErrInvalidInput marks errors caused by the caller's input rather than by
// storage or scheduling.
var ErrInvalidInput = errors.New("invalid input")

// ErrEventNotFound is returned when an event id does not exist.
var ErrEventNotFound = errors.New("event not found")
