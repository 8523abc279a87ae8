package errors

import "errors"

var (
	ErrTableOccupied             = errors.New("table occupied")
	ErrSessionMismatch           = errors.New("session mismatch")
	ErrSessionNotOpen            = errors.New("session not open")
	ErrSessionNotAwaitingPayment = errors.New("session not awaiting payment")
	ErrVersionConflict           = errors.New("version conflict")
	ErrInvalidTransition         = errors.New("invalid transition")
	ErrAttemptInFlight           = errors.New("payment attempt in flight")
	ErrAlreadyTerminal           = errors.New("attempt already terminal")
	ErrNotFound                  = errors.New("not found")
	ErrDishNotFound              = errors.New("dish not found")
	ErrEmptyItems                = errors.New("empty items")
)
