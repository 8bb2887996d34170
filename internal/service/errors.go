package service

import "errors"

var (
	// ErrEventNotFound indicates the event does not exist or belongs to
	// another user.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventAlreadyCompleted indicates a completion was already recorded
	// for the event.
	ErrEventAlreadyCompleted = errors.New("event already completed")

	// ErrLockAlreadyArmed indicates another event's lock session is armed.
	// At most one lock is armed at a time.
	ErrLockAlreadyArmed = errors.New("another lock session is already armed")

	// ErrLockNotArmed indicates no armed session exists for the operation.
	ErrLockNotArmed = errors.New("no armed lock session")

	// ErrInvalidPIN indicates the override PIN did not match.
	ErrInvalidPIN = errors.New("invalid emergency PIN")

	// ErrOverrideLockedOut indicates three consecutive PIN failures; the
	// override stays refused until a natural trigger unlocks the session.
	ErrOverrideLockedOut = errors.New("emergency override locked out")

	// ErrRemoteUnavailable indicates the remote store stayed unreachable
	// after retries and the caller got a degraded local-only answer.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)
