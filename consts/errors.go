package consts

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMessageNotFound = errors.New("message not found")

	ErrDBNotFound        = errors.New("not found")
	ErrDBUniqueViolation = errors.New("unique violation")
	// ErrDBBusy signals transient storage contention: the write could not
	// proceed right now but may succeed on retry.
	ErrDBBusy = errors.New("storage busy")

	// ErrDeliveryFailed is returned after the retry budget for a single
	// persisted delivery has been exhausted.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrTransportUnavailable is returned when the outbound relay could not
	// be reached. The Sent copy has already been persisted at that point.
	ErrTransportUnavailable = errors.New("outbound transport unavailable")

	ErrMessageTooLarge = errors.New("message too large")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
